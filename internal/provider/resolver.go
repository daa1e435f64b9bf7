package provider

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/psp/internal/domain"
	"github.com/vladislavdragonenkov/psp/internal/query"
)

// Resolved — пара «идентификатор способа → провайдер». Список сохраняет
// порядок результатов поиска (map в Go его не гарантирует).
type Resolved struct {
	ServiceID string
	Provider  domain.Provider
}

// Resolver резолвит провайдеров для способов оплаты/доставки: сначала
// запись Service из хранилища, затем привязанный к её типу обработчик из
// реестра.
type Resolver struct {
	services domain.ServiceRepository
	registry *Registry
	logger   *log.Entry
}

// NewResolver конструирует резолвер с зависимостями.
func NewResolver(services domain.ServiceRepository, registry *Registry, logger *log.Entry) *Resolver {
	if logger == nil {
		logger = log.New().WithField("component", "provider-resolver")
	}
	return &Resolver{
		services: services,
		registry: registry,
		logger:   logger,
	}
}

// GetProvider резолвит провайдера по идентификатору способа.
// Возвращает ErrServiceNotFound, если записи нет.
func (r *Resolver) GetProvider(ctx context.Context, serviceID string) (domain.Provider, error) {
	svc, err := r.services.Get(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return r.registry.Resolve(svc)
}

// GetProviderByCode резолвит провайдера по уникальному коду способа.
func (r *Resolver) GetProviderByCode(ctx context.Context, code string) (domain.Provider, error) {
	svc, err := r.services.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return r.registry.Resolve(svc)
}

// GetProviders исполняет накопленный фильтр и резолвит по одному провайдеру
// на каждую найденную запись, сохраняя порядок выдачи поиска. Запись, для
// которой провайдер недоступен, пропускается с предупреждением, не обрывая
// список целиком.
func (r *Resolver) GetProviders(ctx context.Context, b *query.Builder) ([]Resolved, error) {
	services, _, err := b.Search(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Resolved, 0, len(services))
	for _, svc := range services {
		prov, err := r.registry.Resolve(svc)
		if err != nil {
			r.logger.WithError(err).WithFields(log.Fields{
				"service_id":   svc.ID,
				"service_code": svc.Code,
			}).Warn("skipping service without provider")
			continue
		}
		result = append(result, Resolved{ServiceID: svc.ID, Provider: prov})
	}
	return result, nil
}

// Builder возвращает новый query builder поверх хранилища способов — для
// вызывающих, которым нужно донакопить собственные условия перед
// GetProviders.
func (r *Resolver) Builder() *query.Builder {
	return query.New(r.services)
}
