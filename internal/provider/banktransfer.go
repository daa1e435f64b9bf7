package provider

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/vladislavdragonenkov/psp/internal/domain"
)

// CodeBankTransfer — код провайдера банковского перевода в реестре.
const CodeBankTransfer = "banktransfer"

// bankTransfer — провайдер оплаты банковским переводом. Взаимодействия со
// шлюзом нет: process завершается синхронно без формы, заказ остаётся в
// ожидании до ручного подтверждения перевода.
type bankTransfer struct {
	svc domain.Service
}

// NewBankTransfer — фабрика для регистрации в реестре.
func NewBankTransfer(svc domain.Service) (domain.Provider, error) {
	return &bankTransfer{svc: svc}, nil
}

func (p *bankTransfer) Service() domain.Service {
	return p.svc
}

// IsImplemented: банковский перевод не умеет ни push-уведомления, ни
// активный опрос статуса.
func (p *bankTransfer) IsImplemented(domain.Feature) bool {
	return false
}

// ProcessPayment завершается синхронно: форма перенаправления не нужна.
func (p *bankTransfer) ProcessPayment(_ context.Context, _ domain.Order, _ domain.Endpoints, _ url.Values) (*domain.PaymentForm, error) {
	return nil, nil
}

// ReconcileSync переводит начатую оплату в ожидание перевода. Для любых
// других статусов обновление не применимо.
func (p *bankTransfer) ReconcileSync(_ context.Context, order domain.Order, _ url.Values) (*domain.Order, error) {
	if order.PaymentStatus != domain.PaymentStatusUnfinished {
		return nil, nil
	}
	updated := order
	updated.PaymentStatus = domain.PaymentStatusPending
	return &updated, nil
}

// HandleNotification не поддерживается: у перевода нет шлюза-отправителя.
func (p *bankTransfer) HandleNotification(_ context.Context, _ domain.Notification) (*domain.PushResult, domain.NotificationResponse, error) {
	resp := domain.NotificationResponse{
		StatusCode:  http.StatusNotImplemented,
		ContentType: "text/plain",
		Body:        []byte("push notifications are not supported"),
	}
	return nil, resp, nil
}

func (p *bankTransfer) QueryPayment(_ context.Context, _ domain.Order) (*domain.Order, error) {
	return nil, domain.NewGatewayError(CodeBankTransfer, errors.New("payment query is not supported"))
}

var _ domain.Provider = (*bankTransfer)(nil)
