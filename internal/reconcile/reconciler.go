package reconcile

import (
	"context"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/psp/internal/domain"
	"github.com/vladislavdragonenkov/psp/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/psp/internal/metrics"
	"github.com/vladislavdragonenkov/psp/internal/provider"
)

// Reconciler применяет результаты работы провайдера к статусу оплаты заказа.
// Переходы монотонны по графу жизненного цикла, терминальный статус не
// регрессирует, хук эффектов вызывается не более одного раза на каждый
// применённый переход. Локальных блокировок нет: конкурирующие уведомления
// разводит optimistic locking хранилища заказов.
type Reconciler struct {
	orders        domain.OrderRepository
	resolver      *provider.Resolver
	effects       domain.OrderEffects
	logger        *log.Entry
	metrics       *metrics.ReconcileMetrics
	kafkaProducer *kafka.Producer // опциональный producer событий платёжного цикла
}

// New создаёт рабочий экземпляр реконсилера.
func New(
	orders domain.OrderRepository,
	resolver *provider.Resolver,
	effects domain.OrderEffects,
	logger *log.Entry,
) *Reconciler {
	if logger == nil {
		logger = log.New().WithField("component", "reconcile")
	}
	return &Reconciler{
		orders:   orders,
		resolver: resolver,
		effects:  effects,
		logger:   logger,
		metrics:  metrics.NewReconcileMetrics(),
	}
}

// NewWithKafka создаёт реконсилер, публикующий события платёжного цикла.
func NewWithKafka(
	orders domain.OrderRepository,
	resolver *provider.Resolver,
	effects domain.OrderEffects,
	kafkaProducer *kafka.Producer,
	logger *log.Entry,
) *Reconciler {
	r := New(orders, resolver, effects, logger)
	r.kafkaProducer = kafkaProducer
	return r
}

// NewWithoutMetrics создаёт реконсилер без метрик (для тестов).
func NewWithoutMetrics(
	orders domain.OrderRepository,
	resolver *provider.Resolver,
	effects domain.OrderEffects,
	logger *log.Entry,
) *Reconciler {
	if logger == nil {
		logger = log.New().WithField("component", "reconcile")
	}
	return &Reconciler{
		orders:   orders,
		resolver: resolver,
		effects:  effects,
		logger:   logger,
	}
}

// Process резолвит провайдера способа, внедряет endpoint'ы возврата и просит
// подготовить форму перенаправления. nil-форма означает синхронное
// завершение. Статус заказа на этом шаге не меняется; ошибка шлюза
// поднимается вызывающему для показа покупателю.
func (r *Reconciler) Process(ctx context.Context, orderID, serviceID string, endpoints domain.Endpoints, params url.Values) (*domain.PaymentForm, error) {
	order, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	prov, err := r.resolver.GetProvider(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	form, err := prov.ProcessPayment(ctx, order, endpoints, params)
	if err != nil {
		if domain.IsGatewayError(err) && r.metrics != nil {
			r.metrics.RecordGatewayError()
		}
		return nil, err
	}
	return form, nil
}

// UpdateSync сверяет заказ с параметрами возврата покупателя. nil-заказ
// означает, что обновление не применимо (дубликат или чужой заказ). Если
// после сверки статус остался unfinished и провайдер умеет активный опрос,
// шлюз опрашивается один раз — это закрывает гонку с ещё не пришедшим
// push-уведомлением.
func (r *Reconciler) UpdateSync(ctx context.Context, code, orderID string, params url.Values) (*domain.Order, error) {
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.RecordReconcileDuration(time.Since(start))
		}
	}()

	order, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	prov, err := r.resolver.GetProviderByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	updated, err := prov.ReconcileSync(ctx, order, params)
	if err != nil {
		if domain.IsGatewayError(err) && r.metrics != nil {
			r.metrics.RecordGatewayError()
		}
		return nil, err
	}
	if updated == nil {
		if r.metrics != nil {
			r.metrics.RecordSyncDuplicate()
		}
		r.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"service":  code,
		}).Debug("provider reported no applicable update")
		return nil, nil
	}

	if updated.PaymentStatus == domain.PaymentStatusUnfinished && prov.IsImplemented(domain.FeatureQueryPayment) {
		if r.metrics != nil {
			r.metrics.RecordActiveQuery()
		}
		queried, queryErr := prov.QueryPayment(ctx, *updated)
		if queryErr != nil {
			// Опрос — лучшая попытка: его ошибка не отменяет результат сверки.
			if r.metrics != nil {
				r.metrics.RecordGatewayError()
			}
			r.logger.WithError(queryErr).WithField("order_id", order.ID).Warn("active payment query failed")
		} else if queried != nil {
			updated = queried
		}
	}

	final, applied, err := r.apply(ctx, order, *updated, prov.Service().Code)
	if err != nil {
		return nil, err
	}
	if !applied && final == nil {
		return nil, nil
	}
	return final, nil
}

// UpdatePush обрабатывает асинхронное уведомление шлюза: провайдер разбирает
// его и формирует транспортный ответ, реконсилер применяет переход. Ошибка
// шлюза превращается в неуспешный транспортный ответ без повторов — повтор
// доставки остаётся за шлюзом.
func (r *Reconciler) UpdatePush(ctx context.Context, code string, n domain.Notification) (domain.NotificationResponse, error) {
	prov, err := r.resolver.GetProviderByCode(ctx, code)
	if err != nil {
		resp := domain.NotificationResponse{
			StatusCode:  http.StatusNotFound,
			ContentType: "text/plain",
			Body:        []byte("unknown service"),
		}
		return resp, err
	}

	result, resp, err := prov.HandleNotification(ctx, n)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordGatewayError()
			r.metrics.RecordPush("error")
		}
		r.logger.WithError(err).WithField("service", code).Warn("notification handling failed")
		if resp.StatusCode == 0 {
			resp = domain.NotificationResponse{
				StatusCode:  http.StatusBadGateway,
				ContentType: "text/plain",
				Body:        []byte("gateway error"),
			}
		}
		return resp, nil
	}

	if result == nil {
		if r.metrics != nil {
			r.metrics.RecordPush("ignored")
		}
		return resp, nil
	}

	order, err := r.orders.Get(ctx, result.OrderID)
	if err != nil {
		// Уведомление о неизвестном заказе подтверждаем, чтобы шлюз не
		// ретраил его бесконечно.
		if r.metrics != nil {
			r.metrics.RecordPush("unknown_order")
		}
		r.logger.WithError(err).WithFields(log.Fields{
			"order_id": result.OrderID,
			"service":  code,
		}).Warn("push notification for unknown order")
		return resp, nil
	}

	next := order
	next.PaymentStatus = result.Status
	if result.TransactionID != "" {
		next.TransactionID = result.TransactionID
	}

	if _, applied, applyErr := r.apply(ctx, order, next, prov.Service().Code); applyErr != nil {
		r.logger.WithError(applyErr).WithField("order_id", order.ID).Warn("push transition not applied")
	} else if applied {
		if r.metrics != nil {
			r.metrics.RecordPush("applied")
		}
		r.publishEvent(kafka.EventTypePaymentPushReceived, order.ID, prov.Service().Code, string(result.Status))
	} else {
		if r.metrics != nil {
			r.metrics.RecordPush("ignored")
		}
	}

	return resp, nil
}

// apply персистит переход статуса с монотонной проверкой. Возвращает
// итоговый заказ и признак, был ли переход действительно применён.
// nil-заказ означает, что конкурирующий вызов успел применить переход
// первым (конфликт версий трактуется как дубликат).
func (r *Reconciler) apply(ctx context.Context, current, next domain.Order, serviceCode string) (*domain.Order, bool, error) {
	if next.PaymentStatus == current.PaymentStatus {
		// Статус не изменился: сохранять нечего, эффекты не применяются.
		return &next, false, nil
	}

	if !domain.CanTransitionPayment(current.PaymentStatus, next.PaymentStatus) {
		if r.metrics != nil {
			r.metrics.RecordSyncSkipped()
		}
		r.logger.WithFields(log.Fields{
			"order_id": current.ID,
			"from":     current.PaymentStatus,
			"to":       next.PaymentStatus,
		}).Warn("refusing payment status regression")
		unchanged := current
		return &unchanged, false, nil
	}

	next.Version = current.Version
	next.UpdatedAt = time.Now().UTC()
	if err := r.orders.Save(ctx, next); err != nil {
		if domain.IsVersionConflict(err) {
			r.logger.WithFields(log.Fields{
				"order_id": current.ID,
				"to":       next.PaymentStatus,
			}).Debug("concurrent reconciliation won the race")
			return nil, false, nil
		}
		return nil, false, err
	}
	next.Version = current.Version + 1

	if r.metrics != nil {
		r.metrics.RecordSyncApplied()
	}

	// Хук эффектов вызывается ровно один раз на применённый переход; его
	// ошибка логируется, но переход уже персистирован и не откатывается.
	if r.effects != nil {
		if err := r.effects.Apply(ctx, next); err != nil {
			r.logger.WithError(err).WithField("order_id", next.ID).Error("order effects hook failed")
		} else if r.metrics != nil {
			r.metrics.RecordEffectsApplied()
		}
	}

	r.publishEvent(kafka.EventTypePaymentUpdated, next.ID, serviceCode, string(next.PaymentStatus))
	if next.PaymentStatus == domain.PaymentStatusCompleted {
		r.publishEvent(kafka.EventTypePaymentCompleted, next.ID, serviceCode, string(next.PaymentStatus))
	}

	r.logger.WithFields(log.Fields{
		"order_id": next.ID,
		"from":     current.PaymentStatus,
		"to":       next.PaymentStatus,
	}).Info("payment status transition applied")

	return &next, true, nil
}

// publishEvent публикует событие платёжного цикла (если producer настроен).
func (r *Reconciler) publishEvent(eventType kafka.EventType, orderID, serviceCode, status string) {
	if r.kafkaProducer == nil {
		return
	}

	event := kafka.NewPaymentEvent(eventType, orderID, serviceCode, status, nil)
	if err := r.kafkaProducer.PublishEvent(kafka.TopicPaymentEvents, orderID, event); err != nil {
		r.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"order_id":   orderID,
		}).Warn("failed to publish payment event to kafka")
	}
}

// LoggingEffects — хук эффектов по умолчанию: только фиксирует вызов в логе.
// Реальные эффекты (сток, купоны) подключаются на месте этого типа.
type LoggingEffects struct {
	Logger *log.Entry
}

// Apply пишет запись о применённом переходе.
func (e *LoggingEffects) Apply(_ context.Context, order domain.Order) error {
	logger := e.Logger
	if logger == nil {
		logger = log.New().WithField("component", "order-effects")
	}
	logger.WithFields(log.Fields{
		"order_id": order.ID,
		"status":   order.PaymentStatus,
	}).Info("order effects applied")
	return nil
}

var _ domain.OrderEffects = (*LoggingEffects)(nil)
