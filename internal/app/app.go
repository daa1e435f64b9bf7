package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/psp/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/psp/internal/health"
	"github.com/vladislavdragonenkov/psp/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/psp/internal/provider"
	"github.com/vladislavdragonenkov/psp/internal/query"
	"github.com/vladislavdragonenkov/psp/internal/reconcile"
	"github.com/vladislavdragonenkov/psp/internal/storage/memory"
	mongostore "github.com/vladislavdragonenkov/psp/internal/storage/mongo"
	"github.com/vladislavdragonenkov/psp/internal/storage/postgres"
	"github.com/vladislavdragonenkov/psp/internal/version"
)

// Run собирает зависимости и запускает HTTP-сервер платёжного ядра вместе с
// сервером метрик. Блокируется до отмены контекста или фатальной ошибки.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	services, orders, healthHandler, closeStorage, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	registry := provider.NewRegistry()
	registry.Register(provider.CodeBankTransfer, provider.NewBankTransfer)
	registry.Register(provider.CodeRedirect, provider.NewRedirect)

	resolver := provider.NewResolver(services, registry, logger.WithField("layer", "provider"))
	effects := &reconcile.LoggingEffects{Logger: logger.WithField("layer", "effects")}

	// Kafka producer опционален: без брокеров события просто не публикуются.
	var kafkaProducer *kafka.Producer
	var reconciler *reconcile.Reconciler
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		} else {
			kafkaProducer = producer
			logger.WithField("brokers", cfg.Kafka.Brokers).Info("kafka producer initialized")
			reconciler = reconcile.NewWithKafka(orders, resolver, effects, kafkaProducer, logger.WithField("layer", "reconcile"))
		}
	}
	if reconciler == nil {
		reconciler = reconcile.New(orders, resolver, effects, logger.WithField("layer", "reconcile"))
	}

	router := newRouter(cfg, services, orders, reconciler, logger)
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP сервер слушает %s", cfg.HTTPAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(httpSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		closeKafka(kafkaProducer, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		closeKafka(kafkaProducer, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// buildStorage выбирает реализацию хранилищ по конфигурации и регистрирует
// их проверки в health handler.
func buildStorage(ctx context.Context, cfg Config, logger *log.Entry) (
	domain.ServiceRepository, domain.OrderRepository, *healthcheck.Handler, func(), error,
) {
	healthHandler := healthcheck.NewHandler(version.String())
	noop := func() {}

	switch cfg.Storage.Backend {
	case StoragePostgres:
		store, err := postgres.Open(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, nil, noop, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, nil, nil, noop, err
		}
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			return store.Ping(context.Background())
		}))
		logger.Info("using postgres storage")
		return postgres.NewServiceRepository(store), postgres.NewOrderRepository(store), healthHandler, func() { _ = store.Close() }, nil

	case StorageMongo:
		store, err := mongostore.Open(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDB)
		if err != nil {
			return nil, nil, nil, noop, err
		}
		healthHandler.RegisterChecker("mongodb", healthcheck.NewSimpleChecker("mongodb", func() error {
			return store.Ping(context.Background())
		}))
		logger.Info("using mongodb storage")
		// Заказы живут в Postgres-несовместимом документном виде только для
		// способов; само хранилище заказов остаётся in-memory в этом режиме.
		return mongostore.NewServiceRepository(store, "services"), memory.NewOrderRepository(), healthHandler, func() {
			_ = store.Close(context.Background())
		}, nil

	default:
		logger.Info("using in-memory storage")
		return seedMemoryServices(), memory.NewOrderRepository(), healthHandler, noop, nil
	}
}

// seedMemoryServices наполняет dev-хранилище парой настроенных способов.
func seedMemoryServices() domain.ServiceRepository {
	now := time.Now().UTC()
	return memory.NewServiceRepository(
		domain.Service{
			ID:        "svc-banktransfer",
			Code:      "banktransfer",
			Type:      domain.ServiceTypePayment,
			Name:      "Bank transfer",
			Provider:  provider.CodeBankTransfer,
			Status:    1,
			Position:  10,
			CreatedAt: now,
			UpdatedAt: now,
		},
		domain.Service{
			ID:       "svc-redirect",
			Code:     "cardgate",
			Type:     domain.ServiceTypePayment,
			Name:     "Card gateway",
			Provider: provider.CodeRedirect,
			Status:   1,
			Position: 20,
			Config: map[string]string{
				"gateway_url": "https://pay.example.com/hosted",
				"merchant_id": "demo",
				"secret":      "dev-secret",
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
	)
}

// newRouter собирает HTTP-маршруты платёжного ядра.
func newRouter(cfg Config, services domain.ServiceRepository, orders domain.OrderRepository, reconciler *reconcile.Reconciler, logger *log.Entry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/services", handleListServices(services))
	r.Post("/orders", handleCreateOrder(orders, logger))
	r.Post("/checkout", handleCheckout(cfg, reconciler, logger))
	r.Post("/gateways/{code}/push", handlePush(reconciler, logger))
	r.Get("/gateways/{code}/return/{orderID}", handleReturn(reconciler, logger))

	return r
}

// handleListServices отдаёт активные способы, пропуская query-параметры
// через builder: type, sort, offset, limit.
func handleListServices(services domain.ServiceRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		b := query.New(services).
			Compare(domain.OpGt, "status", 0).
			SortBy(q.Get("sort")).
			Uses(domain.RelatedPrice, domain.RelatedText)
		if t := q.Get("type"); t != "" {
			b.Type(domain.ServiceType(t))
		}
		offset, _ := strconv.Atoi(q.Get("offset"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		b.Slice(offset, limit)

		result, total, err := b.Search(r.Context())
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"services": result,
			"total":    total,
		})
	}
}

// handleCreateOrder заводит заказ в статусе unfinished.
func handleCreateOrder(orders domain.OrderRepository, logger *log.Entry) http.HandlerFunc {
	type createOrderRequest struct {
		CustomerID  string `json:"customer_id"`
		ServiceID   string `json:"service_id"`
		Currency    string `json:"currency"`
		AmountMinor int64  `json:"amount_minor"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		now := time.Now().UTC()
		order := domain.Order{
			ID:            uuid.NewString(),
			CustomerID:    req.CustomerID,
			ServiceID:     req.ServiceID,
			PaymentStatus: domain.PaymentStatusUnfinished,
			Currency:      req.Currency,
			AmountMinor:   req.AmountMinor,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if errs := order.ValidateInvariants(); len(errs) > 0 {
			writeError(w, http.StatusBadRequest, errors.Join(errs...))
			return
		}
		if err := orders.Create(r.Context(), order); err != nil {
			logger.WithError(err).Warn("order creation failed")
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, order)
	}
}

// handleCheckout запускает шаг process: подготовку формы перенаправления.
func handleCheckout(cfg Config, reconciler *reconcile.Reconciler, logger *log.Entry) http.HandlerFunc {
	type checkoutRequest struct {
		OrderID   string `json:"order_id"`
		ServiceID string `json:"service_id"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		endpoints := domain.Endpoints{
			SelfURL:    cfg.BaseURL + "/gateways/return",
			SuccessURL: cfg.BaseURL + "/checkout/success",
			UpdateURL:  cfg.BaseURL + "/gateways/push",
		}

		form, err := reconciler.Process(r.Context(), req.OrderID, req.ServiceID, endpoints, r.URL.Query())
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, domain.ErrOrderNotFound) || errors.Is(err, domain.ErrServiceNotFound) {
				status = http.StatusNotFound
			}
			logger.WithError(err).Warn("checkout process failed")
			writeError(w, status, err)
			return
		}
		if form == nil {
			writeJSON(w, http.StatusOK, map[string]any{"completed": true})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"form": form})
	}
}

// handlePush принимает асинхронное уведомление шлюза и транслирует
// транспортный ответ провайдера как есть.
func handlePush(reconciler *reconcile.Reconciler, logger *log.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		headers := make(map[string]string, len(r.Header))
		for name := range r.Header {
			headers[name] = r.Header.Get(name)
		}
		n := domain.Notification{
			Headers: headers,
			Params:  r.Form,
		}

		resp, err := reconciler.UpdatePush(r.Context(), chi.URLParam(r, "code"), n)
		if err != nil {
			logger.WithError(err).Warn("push notification rejected")
		}
		if resp.ContentType != "" {
			w.Header().Set("Content-Type", resp.ContentType)
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(resp.Body)
	}
}

// handleReturn — синхронный возврат покупателя со страницы шлюза.
func handleReturn(reconciler *reconcile.Reconciler, logger *log.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		orderID := chi.URLParam(r, "orderID")

		order, err := reconciler.UpdateSync(r.Context(), code, orderID, r.URL.Query())
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, domain.ErrOrderNotFound) || errors.Is(err, domain.ErrServiceNotFound) {
				status = http.StatusNotFound
			}
			logger.WithError(err).Warn("sync reconciliation failed")
			writeError(w, status, err)
			return
		}
		if order == nil {
			writeJSON(w, http.StatusOK, map[string]any{"updated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"updated":        true,
			"order_id":       order.ID,
			"payment_status": order.PaymentStatus,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
