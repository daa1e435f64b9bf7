package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/psp/internal/domain"
)

// CodeRedirect — код провайдера hosted-page шлюза в реестре.
const CodeRedirect = "redirect"

// Ключи конфигурации способа, которые читает redirect-провайдер.
const (
	cfgGatewayURL = "gateway_url"
	cfgStatusURL  = "status_url"
	cfgSecret     = "secret"
	cfgMerchantID = "merchant_id"
)

// Статусы, которыми отвечает шлюз.
var redirectStatusMap = map[string]domain.PaymentStatus{
	"paid":     domain.PaymentStatusCompleted,
	"pending":  domain.PaymentStatusPending,
	"open":     domain.PaymentStatusUnfinished,
	"failed":   domain.PaymentStatusRefused,
	"canceled": domain.PaymentStatusCanceled,
}

// redirect — провайдер шлюза с hosted payment page: покупатель уходит на
// страницу шлюза по форме, итог приходит синхронным возвратом и/или
// push-уведомлением, статус можно опросить активно.
type redirect struct {
	svc    domain.Service
	client *http.Client
}

// NewRedirect — фабрика для регистрации в реестре.
func NewRedirect(svc domain.Service) (domain.Provider, error) {
	return &redirect{
		svc:    svc,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (p *redirect) Service() domain.Service {
	return p.svc
}

// IsImplemented: активный опрос доступен только при настроенном status_url.
func (p *redirect) IsImplemented(feature domain.Feature) bool {
	switch feature {
	case domain.FeaturePushNotifications:
		return true
	case domain.FeatureQueryPayment:
		return p.svc.ConfigValue(cfgStatusURL, "") != ""
	default:
		return false
	}
}

// ProcessPayment собирает форму перенаправления на страницу шлюза.
// Endpoint'ы возврата внедряются в поля формы; статус заказа не меняется.
func (p *redirect) ProcessPayment(_ context.Context, order domain.Order, endpoints domain.Endpoints, params url.Values) (*domain.PaymentForm, error) {
	action := p.svc.ConfigValue(cfgGatewayURL, "")
	if action == "" {
		return nil, domain.NewGatewayError(CodeRedirect, fmt.Errorf("service %s has no %s configured", p.svc.Code, cfgGatewayURL))
	}

	fields := map[string]string{
		"merchant":    p.svc.ConfigValue(cfgMerchantID, ""),
		"order":       order.ID,
		"amount":      strconv.FormatInt(order.AmountMinor, 10),
		"currency":    order.Currency,
		"return_url":  endpoints.SelfURL,
		"success_url": endpoints.SuccessURL,
		"notify_url":  endpoints.UpdateURL,
	}
	for key := range params {
		fields[key] = params.Get(key)
	}
	fields["signature"] = p.sign(order.ID, fields["amount"], order.Currency)

	return &domain.PaymentForm{
		Action: action,
		Method: http.MethodPost,
		Fields: fields,
	}, nil
}

// ReconcileSync сверяет заказ с параметрами возврата покупателя. Чужой заказ,
// неизвестный статус и повтор уже применённого терминального статуса дают
// nil: обновление не применимо.
func (p *redirect) ReconcileSync(_ context.Context, order domain.Order, params url.Values) (*domain.Order, error) {
	if params.Get("order") != order.ID {
		return nil, nil
	}
	status, ok := redirectStatusMap[strings.ToLower(params.Get("status"))]
	if !ok {
		return nil, nil
	}
	if status == order.PaymentStatus && order.PaymentStatus.Terminal() {
		return nil, nil
	}

	updated := order
	updated.PaymentStatus = status
	if txn := params.Get("txn"); txn != "" {
		updated.TransactionID = txn
	}
	return &updated, nil
}

// HandleNotification разбирает push-уведомление шлюза. Подпись обязательна:
// уведомление без корректной подписи отклоняется транспортным 400 и не
// порождает перехода.
func (p *redirect) HandleNotification(_ context.Context, n domain.Notification) (*domain.PushResult, domain.NotificationResponse, error) {
	orderID := n.Params.Get("order")
	rawStatus := strings.ToLower(n.Params.Get("status"))
	txn := n.Params.Get("txn")

	expected := p.sign(orderID, rawStatus, txn)
	if !hmac.Equal([]byte(expected), []byte(n.Params.Get("signature"))) {
		resp := domain.NotificationResponse{
			StatusCode:  http.StatusBadRequest,
			ContentType: "text/plain",
			Body:        []byte("invalid signature"),
		}
		return nil, resp, nil
	}

	status, ok := redirectStatusMap[rawStatus]
	if !ok || orderID == "" {
		resp := domain.NotificationResponse{
			StatusCode:  http.StatusOK,
			ContentType: "text/plain",
			Body:        []byte("ignored"),
		}
		return nil, resp, nil
	}

	result := &domain.PushResult{
		OrderID:       orderID,
		Status:        status,
		TransactionID: txn,
	}
	resp := domain.NotificationResponse{
		StatusCode:  http.StatusOK,
		ContentType: "text/plain",
		Body:        []byte("OK"),
	}
	return result, resp, nil
}

// QueryPayment опрашивает шлюз о текущем статусе платежа. Любая транспортная
// или протокольная ошибка поднимается как GatewayError без интерпретации.
func (p *redirect) QueryPayment(ctx context.Context, order domain.Order) (*domain.Order, error) {
	statusURL := p.svc.ConfigValue(cfgStatusURL, "")
	if statusURL == "" {
		return nil, domain.NewGatewayError(CodeRedirect, fmt.Errorf("service %s has no %s configured", p.svc.Code, cfgStatusURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL+"?order="+url.QueryEscape(order.ID), nil)
	if err != nil {
		return nil, domain.NewGatewayError(CodeRedirect, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, domain.NewGatewayError(CodeRedirect, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewGatewayError(CodeRedirect, fmt.Errorf("status query returned %d", resp.StatusCode))
	}

	var payload struct {
		Status string `json:"status"`
		Txn    string `json:"txn"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, domain.NewGatewayError(CodeRedirect, err)
	}

	status, ok := redirectStatusMap[strings.ToLower(payload.Status)]
	if !ok {
		return nil, domain.NewGatewayError(CodeRedirect, fmt.Errorf("unknown gateway status %q", payload.Status))
	}

	updated := order
	updated.PaymentStatus = status
	if payload.Txn != "" {
		updated.TransactionID = payload.Txn
	}
	return &updated, nil
}

// sign считает HMAC-SHA256 по полям через "|" с секретом способа.
func (p *redirect) sign(parts ...string) string {
	mac := hmac.New(sha256.New, []byte(p.svc.ConfigValue(cfgSecret, "")))
	mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

var _ domain.Provider = (*redirect)(nil)
