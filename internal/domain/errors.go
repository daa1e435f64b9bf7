package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего кода способа оплаты/доставки.
	ErrServiceCodeRequired = errors.New("service code is required")
	// Ошибка неизвестного типа способа.
	ErrServiceTypeInvalid = errors.New("service type must be payment or delivery")
	// Ошибка отсутствующего кода провайдера у способа.
	ErrServiceProviderRequired = errors.New("service provider is required")
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующей привязки заказа к способу оплаты.
	ErrServiceIDRequired = errors.New("service_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка неизвестного статуса оплаты.
	ErrPaymentStatusInvalid = errors.New("payment status is not supported")

	// ErrServiceNotFound возвращается, если способ не найден в хранилище.
	ErrServiceNotFound = errors.New("service not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidOperator сигнализирует о неизвестном операторе сравнения.
	// Это ошибка вызывающего кода, не повторяется.
	ErrInvalidOperator = errors.New("invalid compare operator")
	// ErrProviderUnavailable — для типа способа не зарегистрирован провайдер.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
)

// GatewayError — непрозрачная ошибка платёжного шлюза. Ядро её не
// интерпретирует: при process она поднимается вызывающему, при
// updateSync/updatePush превращается в неуспешный транспортный ответ.
type GatewayError struct {
	Provider string
	Err      error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Provider, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError оборачивает ошибку шлюза с указанием провайдера.
func NewGatewayError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &GatewayError{Provider: provider, Err: err}
}

// IsGatewayError проверяет, пришла ли ошибка от шлюза.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}
