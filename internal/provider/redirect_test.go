package provider_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/vladislavdragonenkov/psp/internal/domain"
	"github.com/vladislavdragonenkov/psp/internal/provider"
)

const redirectSecret = "test-secret"

func makeRedirectService(config map[string]string) domain.Service {
	if config == nil {
		config = map[string]string{}
	}
	if _, ok := config["secret"]; !ok {
		config["secret"] = redirectSecret
	}
	if _, ok := config["gateway_url"]; !ok {
		config["gateway_url"] = "https://pay.example.com/hosted"
	}
	return domain.Service{
		ID: "s1", Code: "cardgate", Type: domain.ServiceTypePayment,
		Provider: provider.CodeRedirect, Status: 1, Config: config,
	}
}

// signParts повторяет схему подписи шлюза: HMAC-SHA256 по полям через "|".
func signParts(parts ...string) string {
	mac := hmac.New(sha256.New, []byte(redirectSecret))
	mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestRedirectProcessPayment_BuildsForm(t *testing.T) {
	prov, err := provider.NewRedirect(makeRedirectService(map[string]string{"merchant_id": "m-1"}))
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}

	order := domain.Order{ID: "o-1", Currency: "EUR", AmountMinor: 2500, PaymentStatus: domain.PaymentStatusUnfinished}
	endpoints := domain.Endpoints{
		SelfURL:    "https://shop.example.com/return",
		SuccessURL: "https://shop.example.com/thanks",
		UpdateURL:  "https://shop.example.com/push",
	}

	form, err := prov.ProcessPayment(context.Background(), order, endpoints, url.Values{"locale": {"nl"}})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if form == nil {
		t.Fatal("expected a redirect form")
	}
	if form.Action != "https://pay.example.com/hosted" || form.Method != http.MethodPost {
		t.Fatalf("unexpected form target: %s %s", form.Method, form.Action)
	}
	if form.Fields["order"] != "o-1" || form.Fields["amount"] != "2500" || form.Fields["currency"] != "EUR" {
		t.Fatalf("order fields are wrong: %v", form.Fields)
	}
	if form.Fields["notify_url"] != endpoints.UpdateURL {
		t.Fatalf("notify_url not injected: %v", form.Fields)
	}
	if form.Fields["locale"] != "nl" {
		t.Fatalf("extra params must pass through: %v", form.Fields)
	}
	if form.Fields["signature"] != signParts("o-1", "2500", "EUR") {
		t.Fatalf("signature mismatch: %s", form.Fields["signature"])
	}
}

func TestRedirectProcessPayment_NoGatewayURL(t *testing.T) {
	svc := makeRedirectService(nil)
	svc.Config["gateway_url"] = ""
	prov, _ := provider.NewRedirect(svc)

	_, err := prov.ProcessPayment(context.Background(), domain.Order{ID: "o-1"}, domain.Endpoints{}, nil)
	if !domain.IsGatewayError(err) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
}

func TestRedirectReconcileSync(t *testing.T) {
	prov, _ := provider.NewRedirect(makeRedirectService(nil))
	ctx := context.Background()

	order := domain.Order{ID: "o-1", PaymentStatus: domain.PaymentStatusUnfinished}

	cases := []struct {
		name       string
		order      domain.Order
		params     url.Values
		wantNil    bool
		wantStatus domain.PaymentStatus
		wantTxn    string
	}{
		{
			name:       "paid maps to completed",
			order:      order,
			params:     url.Values{"order": {"o-1"}, "status": {"paid"}, "txn": {"tx-9"}},
			wantStatus: domain.PaymentStatusCompleted,
			wantTxn:    "tx-9",
		},
		{
			name:       "pending maps to pending",
			order:      order,
			params:     url.Values{"order": {"o-1"}, "status": {"PENDING"}},
			wantStatus: domain.PaymentStatusPending,
		},
		{
			name:    "foreign order ignored",
			order:   order,
			params:  url.Values{"order": {"o-2"}, "status": {"paid"}},
			wantNil: true,
		},
		{
			name:    "unknown status ignored",
			order:   order,
			params:  url.Values{"order": {"o-1"}, "status": {"maybe"}},
			wantNil: true,
		},
		{
			name:    "terminal duplicate ignored",
			order:   domain.Order{ID: "o-1", PaymentStatus: domain.PaymentStatusCompleted},
			params:  url.Values{"order": {"o-1"}, "status": {"paid"}},
			wantNil: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			updated, err := prov.ReconcileSync(ctx, tc.order, tc.params)
			if err != nil {
				t.Fatalf("reconcile failed: %v", err)
			}
			if tc.wantNil {
				if updated != nil {
					t.Fatalf("expected no update, got %+v", updated)
				}
				return
			}
			if updated == nil {
				t.Fatal("expected an update")
			}
			if updated.PaymentStatus != tc.wantStatus {
				t.Fatalf("expected status %s, got %s", tc.wantStatus, updated.PaymentStatus)
			}
			if tc.wantTxn != "" && updated.TransactionID != tc.wantTxn {
				t.Fatalf("expected txn %s, got %s", tc.wantTxn, updated.TransactionID)
			}
		})
	}
}

func TestRedirectHandleNotification(t *testing.T) {
	prov, _ := provider.NewRedirect(makeRedirectService(nil))
	ctx := context.Background()

	t.Run("valid signature yields push result", func(t *testing.T) {
		params := url.Values{
			"order":     {"o-1"},
			"status":    {"paid"},
			"txn":       {"tx-9"},
			"signature": {signParts("o-1", "paid", "tx-9")},
		}
		result, resp, err := prov.HandleNotification(ctx, domain.Notification{Params: params})
		if err != nil {
			t.Fatalf("handle failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if result == nil || result.OrderID != "o-1" || result.Status != domain.PaymentStatusCompleted || result.TransactionID != "tx-9" {
			t.Fatalf("unexpected push result: %+v", result)
		}
	})

	t.Run("invalid signature rejected with 400", func(t *testing.T) {
		params := url.Values{
			"order":     {"o-1"},
			"status":    {"paid"},
			"signature": {"forged"},
		}
		result, resp, err := prov.HandleNotification(ctx, domain.Notification{Params: params})
		if err != nil {
			t.Fatalf("handle failed: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
		if result != nil {
			t.Fatalf("forged notification must not yield a result: %+v", result)
		}
	})

	t.Run("unknown status acknowledged and ignored", func(t *testing.T) {
		params := url.Values{
			"order":     {"o-1"},
			"status":    {"maybe"},
			"signature": {signParts("o-1", "maybe", "")},
		}
		result, resp, err := prov.HandleNotification(ctx, domain.Notification{Params: params})
		if err != nil {
			t.Fatalf("handle failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 ack, got %d", resp.StatusCode)
		}
		if result != nil {
			t.Fatalf("unknown status must be ignored: %+v", result)
		}
	})
}

func TestRedirectQueryPayment(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("order") != "o-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"paid","txn":"tx-42"}`))
	}))
	defer gateway.Close()

	prov, _ := provider.NewRedirect(makeRedirectService(map[string]string{"status_url": gateway.URL}))

	if !prov.IsImplemented(domain.FeatureQueryPayment) {
		t.Fatal("status_url is configured, query must be implemented")
	}

	order := domain.Order{ID: "o-1", PaymentStatus: domain.PaymentStatusUnfinished}
	updated, err := prov.QueryPayment(context.Background(), order)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if updated.PaymentStatus != domain.PaymentStatusCompleted || updated.TransactionID != "tx-42" {
		t.Fatalf("unexpected query result: %+v", updated)
	}

	// Неуспешный HTTP-статус шлюза поднимается как GatewayError.
	_, err = prov.QueryPayment(context.Background(), domain.Order{ID: "o-404"})
	if !domain.IsGatewayError(err) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
}

func TestRedirectQueryPayment_NotConfigured(t *testing.T) {
	prov, _ := provider.NewRedirect(makeRedirectService(nil))
	if prov.IsImplemented(domain.FeatureQueryPayment) {
		t.Fatal("query must be unimplemented without status_url")
	}
	if _, err := prov.QueryPayment(context.Background(), domain.Order{ID: "o-1"}); !domain.IsGatewayError(err) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
}

func TestBankTransfer(t *testing.T) {
	prov, err := provider.NewBankTransfer(domain.Service{ID: "s1", Code: "banktransfer", Provider: provider.CodeBankTransfer})
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	ctx := context.Background()

	form, err := prov.ProcessPayment(ctx, domain.Order{ID: "o-1"}, domain.Endpoints{}, nil)
	if err != nil || form != nil {
		t.Fatalf("bank transfer must complete synchronously, got form=%v err=%v", form, err)
	}

	updated, err := prov.ReconcileSync(ctx, domain.Order{ID: "o-1", PaymentStatus: domain.PaymentStatusUnfinished}, nil)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if updated == nil || updated.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected pending, got %+v", updated)
	}

	// Повторная сверка уже ожидающего заказа не применима.
	updated, err = prov.ReconcileSync(ctx, domain.Order{ID: "o-1", PaymentStatus: domain.PaymentStatusPending}, nil)
	if err != nil || updated != nil {
		t.Fatalf("expected no update, got %+v err=%v", updated, err)
	}

	result, resp, err := prov.HandleNotification(ctx, domain.Notification{})
	if err != nil || result != nil {
		t.Fatalf("push is unsupported, got result=%v err=%v", result, err)
	}
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}

	if _, err := prov.QueryPayment(ctx, domain.Order{ID: "o-1"}); !domain.IsGatewayError(err) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if prov.IsImplemented(domain.FeaturePushNotifications) || prov.IsImplemented(domain.FeatureQueryPayment) {
		t.Fatal("bank transfer must not advertise gateway features")
	}
}
