package integration

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/psp/internal/domain"
	"github.com/vladislavdragonenkov/psp/internal/provider"
	"github.com/vladislavdragonenkov/psp/internal/reconcile"
	"github.com/vladislavdragonenkov/psp/internal/storage/memory"
)

const gatewaySecret = "integration-secret"

// countingEffects фиксирует вызовы хука эффектов заказа.
type countingEffects struct {
	calls int
}

func (e *countingEffects) Apply(_ context.Context, _ domain.Order) error {
	e.calls++
	return nil
}

// PaymentLifecycleTestSuite тестирует полный платёжный цикл: process →
// возврат покупателя → push-уведомление шлюза.
type PaymentLifecycleTestSuite struct {
	suite.Suite
	orders     domain.OrderRepository
	reconciler *reconcile.Reconciler
	effects    *countingEffects
}

func (suite *PaymentLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	services := memory.NewServiceRepository(domain.Service{
		ID:       "svc-cardgate",
		Code:     "cardgate",
		Type:     domain.ServiceTypePayment,
		Name:     "Card gateway",
		Provider: provider.CodeRedirect,
		Status:   1,
		Position: 10,
		Config: map[string]string{
			"gateway_url": "https://pay.example.com/hosted",
			"merchant_id": "m-1",
			"secret":      gatewaySecret,
		},
	})

	registry := provider.NewRegistry()
	registry.Register(provider.CodeRedirect, provider.NewRedirect)

	suite.orders = memory.NewOrderRepository()
	suite.effects = &countingEffects{}
	suite.reconciler = reconcile.NewWithoutMetrics(
		suite.orders,
		provider.NewResolver(services, registry, logger),
		suite.effects,
		logger,
	)
}

func (suite *PaymentLifecycleTestSuite) createOrder() domain.Order {
	now := time.Now().UTC()
	order := domain.Order{
		ID:            "order-1",
		CustomerID:    "customer-1",
		ServiceID:     "svc-cardgate",
		PaymentStatus: domain.PaymentStatusUnfinished,
		Currency:      "EUR",
		AmountMinor:   4999,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(suite.T(), suite.orders.Create(context.Background(), order))
	return order
}

func sign(parts ...string) string {
	mac := hmac.New(sha256.New, []byte(gatewaySecret))
	mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

func (suite *PaymentLifecycleTestSuite) TestCheckoutThenSyncReturn() {
	ctx := context.Background()
	order := suite.createOrder()

	endpoints := domain.Endpoints{
		SelfURL:    "https://shop.example.com/gateways/cardgate/return/order-1",
		SuccessURL: "https://shop.example.com/thanks",
		UpdateURL:  "https://shop.example.com/gateways/cardgate/push",
	}

	form, err := suite.reconciler.Process(ctx, order.ID, order.ServiceID, endpoints, nil)
	suite.Require().NoError(err)
	suite.Require().NotNil(form)
	suite.Equal("https://pay.example.com/hosted", form.Action)
	suite.Equal(http.MethodPost, form.Method)
	suite.Equal("order-1", form.Fields["order"])
	suite.Equal("4999", form.Fields["amount"])
	suite.NotEmpty(form.Fields["signature"])

	// Покупатель возвращается со страницы шлюза с итогом оплаты.
	params := url.Values{
		"order":  {"order-1"},
		"status": {"paid"},
		"txn":    {"tx-100"},
	}
	final, err := suite.reconciler.UpdateSync(ctx, "cardgate", order.ID, params)
	suite.Require().NoError(err)
	suite.Require().NotNil(final)
	suite.Equal(domain.PaymentStatusCompleted, final.PaymentStatus)
	suite.Equal("tx-100", final.TransactionID)
	suite.Equal(1, suite.effects.calls)

	stored, err := suite.orders.Get(ctx, order.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.PaymentStatusCompleted, stored.PaymentStatus)
	suite.Equal(int64(1), stored.Version)
}

func (suite *PaymentLifecycleTestSuite) TestPushNotificationFlow() {
	ctx := context.Background()
	order := suite.createOrder()

	notification := domain.Notification{Params: url.Values{
		"order":     {order.ID},
		"status":    {"paid"},
		"txn":       {"tx-200"},
		"signature": {sign(order.ID, "paid", "tx-200")},
	}}

	resp, err := suite.reconciler.UpdatePush(ctx, "cardgate", notification)
	suite.Require().NoError(err)
	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.Equal(1, suite.effects.calls)

	stored, err := suite.orders.Get(ctx, order.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.PaymentStatusCompleted, stored.PaymentStatus)
	suite.Equal("tx-200", stored.TransactionID)

	// Шлюз повторяет доставку: ack без повторных эффектов.
	resp, err = suite.reconciler.UpdatePush(ctx, "cardgate", notification)
	suite.Require().NoError(err)
	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.Equal(1, suite.effects.calls)
}

func (suite *PaymentLifecycleTestSuite) TestForgedPushIsRejected() {
	ctx := context.Background()
	order := suite.createOrder()

	notification := domain.Notification{Params: url.Values{
		"order":     {order.ID},
		"status":    {"paid"},
		"signature": {"forged"},
	}}

	resp, err := suite.reconciler.UpdatePush(ctx, "cardgate", notification)
	suite.Require().NoError(err)
	suite.Equal(http.StatusBadRequest, resp.StatusCode)
	suite.Equal(0, suite.effects.calls)

	stored, err := suite.orders.Get(ctx, order.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.PaymentStatusUnfinished, stored.PaymentStatus)
}

func (suite *PaymentLifecycleTestSuite) TestLatePushCannotRegressTerminalStatus() {
	ctx := context.Background()
	order := suite.createOrder()

	paid := domain.Notification{Params: url.Values{
		"order":     {order.ID},
		"status":    {"paid"},
		"signature": {sign(order.ID, "paid", "")},
	}}
	_, err := suite.reconciler.UpdatePush(ctx, "cardgate", paid)
	suite.Require().NoError(err)
	suite.Equal(1, suite.effects.calls)

	// Запоздавшее pending-уведомление о том же платеже.
	pending := domain.Notification{Params: url.Values{
		"order":     {order.ID},
		"status":    {"pending"},
		"signature": {sign(order.ID, "pending", "")},
	}}
	resp, err := suite.reconciler.UpdatePush(ctx, "cardgate", pending)
	suite.Require().NoError(err)
	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.Equal(1, suite.effects.calls)

	stored, err := suite.orders.Get(ctx, order.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.PaymentStatusCompleted, stored.PaymentStatus)
}

func (suite *PaymentLifecycleTestSuite) TestSyncReturnForForeignOrderIsIgnored() {
	ctx := context.Background()
	order := suite.createOrder()

	params := url.Values{
		"order":  {"someone-elses-order"},
		"status": {"paid"},
	}
	final, err := suite.reconciler.UpdateSync(ctx, "cardgate", order.ID, params)
	suite.Require().NoError(err)
	suite.Nil(final)
	suite.Equal(0, suite.effects.calls)
}

func TestPaymentLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(PaymentLifecycleTestSuite))
}
