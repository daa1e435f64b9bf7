package provider

import (
	"context"
	"net/http"
	"net/url"

	"github.com/vladislavdragonenkov/psp/internal/domain"
)

// Mock — конфигурируемая заглушка Provider для тестов реконсилера.
type Mock struct {
	Svc      domain.Service
	Features map[domain.Feature]bool

	Form       *domain.PaymentForm
	ProcessErr error

	SyncResult *domain.Order
	SyncErr    error

	PushResult *domain.PushResult
	PushResp   domain.NotificationResponse
	PushErr    error

	QueryResult *domain.Order
	QueryErr    error

	ProcessCalls int
	SyncCalls    int
	PushCalls    int
	QueryCalls   int
}

// NewMock возвращает mock, привязанный к записи способа.
func NewMock(svc domain.Service) *Mock {
	return &Mock{
		Svc:      svc,
		Features: make(map[domain.Feature]bool),
		PushResp: domain.NotificationResponse{
			StatusCode:  http.StatusOK,
			ContentType: "text/plain",
			Body:        []byte("OK"),
		},
	}
}

// Factory регистрирует один и тот же mock под любым кодом способа.
func (m *Mock) Factory() Factory {
	return func(domain.Service) (domain.Provider, error) {
		return m, nil
	}
}

func (m *Mock) Service() domain.Service {
	return m.Svc
}

func (m *Mock) IsImplemented(feature domain.Feature) bool {
	return m.Features[feature]
}

func (m *Mock) ProcessPayment(context.Context, domain.Order, domain.Endpoints, url.Values) (*domain.PaymentForm, error) {
	m.ProcessCalls++
	return m.Form, m.ProcessErr
}

func (m *Mock) ReconcileSync(context.Context, domain.Order, url.Values) (*domain.Order, error) {
	m.SyncCalls++
	if m.SyncResult == nil {
		return nil, m.SyncErr
	}
	updated := *m.SyncResult
	return &updated, m.SyncErr
}

func (m *Mock) HandleNotification(context.Context, domain.Notification) (*domain.PushResult, domain.NotificationResponse, error) {
	m.PushCalls++
	return m.PushResult, m.PushResp, m.PushErr
}

func (m *Mock) QueryPayment(context.Context, domain.Order) (*domain.Order, error) {
	m.QueryCalls++
	if m.QueryResult == nil {
		return nil, m.QueryErr
	}
	updated := *m.QueryResult
	return &updated, m.QueryErr
}

var _ domain.Provider = (*Mock)(nil)
