package domain

import (
	"context"
	"net/url"
)

// ServiceRepository — поисковый бэкенд по способам оплаты/доставки.
// Search исполняет собранный фильтр и возвращает страницу результатов и
// общее число совпадений без учёта пагинации.
type ServiceRepository interface {
	Search(ctx context.Context, filter Filter) ([]Service, int, error)
	// FindByCode возвращает запись по уникальному коду или ErrServiceNotFound.
	FindByCode(ctx context.Context, code string) (Service, error)
	// Get возвращает запись по идентификатору или ErrServiceNotFound.
	Get(ctx context.Context, id string) (Service, error)
}

// OrderRepository — хранилище заказов. Save применяет optimistic locking:
// при несовпадении версии возвращается ErrOrderVersionConflict, за счёт чего
// конкурирующие уведомления шлюза не применяют один переход дважды.
type OrderRepository interface {
	Create(ctx context.Context, order Order) error
	Get(ctx context.Context, id string) (Order, error)
	Save(ctx context.Context, order Order) error
}

// Feature — флаг возможности провайдера, запрашиваемый через IsImplemented.
type Feature string

const (
	// FeatureQueryPayment — провайдер умеет активно опрашивать шлюз о статусе.
	FeatureQueryPayment Feature = "query_payment"
	// FeaturePushNotifications — шлюз шлёт асинхронные уведомления.
	FeaturePushNotifications Feature = "push_notifications"
	// FeatureRecurring — провайдер поддерживает повторные списания.
	FeatureRecurring Feature = "recurring"
)

// Endpoints — адреса, которые внедряются в конфигурацию провайдера на шаге
// process: страница возврата, страница успеха и endpoint для уведомлений.
type Endpoints struct {
	SelfURL    string
	SuccessURL string
	UpdateURL  string
}

// PaymentForm описывает форму перенаправления на шлюз. nil-форма означает,
// что оплата завершилась синхронно и взаимодействие не требуется.
type PaymentForm struct {
	Action string
	Method string
	Fields map[string]string
}

// Notification — входящее асинхронное уведомление шлюза в транспортно-
// нейтральном виде.
type Notification struct {
	Headers map[string]string
	Params  url.Values
	Body    []byte
}

// NotificationResponse — транспортный ответ шлюзу на уведомление.
type NotificationResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// PushResult — итог разбора уведомления: какой заказ и в какой статус
// перевести. nil-результат означает дубликат или нерелевантное уведомление.
type PushResult struct {
	OrderID       string
	Status        PaymentStatus
	TransactionID string
}

// Provider — шлюзовый обработчик, привязанный ровно к одному Service.
// Резолвится на лету и никогда не персистится.
type Provider interface {
	// Service возвращает запись способа, к которой привязан провайдер.
	Service() Service
	// IsImplemented отвечает, поддерживает ли провайдер возможность.
	IsImplemented(feature Feature) bool
	// ProcessPayment готовит форму перенаправления или nil при синхронном
	// завершении. Статус заказа здесь не меняется.
	ProcessPayment(ctx context.Context, order Order, endpoints Endpoints, params url.Values) (*PaymentForm, error)
	// ReconcileSync сверяет заказ с параметрами возврата покупателя.
	// nil-заказ означает, что обновление не применимо (дубликат/чужой заказ).
	ReconcileSync(ctx context.Context, order Order, params url.Values) (*Order, error)
	// HandleNotification разбирает push-уведомление шлюза и формирует
	// транспортный ответ для него.
	HandleNotification(ctx context.Context, n Notification) (*PushResult, NotificationResponse, error)
	// QueryPayment активно запрашивает шлюз о текущем статусе платежа.
	// Требует FeatureQueryPayment.
	QueryPayment(ctx context.Context, order Order) (*Order, error)
}

// OrderEffects — внешний хук побочных эффектов заказа (списание стока,
// погашение купона). Вызывается реконсилером ровно один раз на каждый
// успешно применённый переход статуса.
type OrderEffects interface {
	Apply(ctx context.Context, order Order) error
}

// OrderEffectsFunc адаптирует функцию под OrderEffects.
type OrderEffectsFunc func(ctx context.Context, order Order) error

// Apply вызывает обёрнутую функцию.
func (f OrderEffectsFunc) Apply(ctx context.Context, order Order) error {
	return f(ctx, order)
}
