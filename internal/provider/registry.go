package provider

import (
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/psp/internal/domain"
)

// Factory создаёт провайдера, привязанного к конкретному способу оплаты или
// доставки. Фабрика должна быть детерминированной: одинаковый Service даёт
// эквивалентный провайдер.
type Factory func(svc domain.Service) (domain.Provider, error)

// Registry сопоставляет код провайдера из записи Service с фабрикой
// шлюзового обработчика. Реестр открыт для регистрации на этапе сборки
// приложения и потокобезопасен на чтение.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry возвращает пустой реестр.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register связывает код провайдера с фабрикой. Повторная регистрация
// замещает предыдущую.
func (r *Registry) Register(code string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[code] = factory
}

// Resolve создаёт провайдера для записи способа. Неизвестный код провайдера
// даёт ErrProviderUnavailable.
func (r *Registry) Resolve(svc domain.Service) (domain.Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[svc.Provider]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no factory for provider %q (service %s)",
			domain.ErrProviderUnavailable, svc.Provider, svc.Code)
	}
	return factory(svc)
}
