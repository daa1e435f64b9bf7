package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/psp/internal/domain"
)

// serviceRepositoryInMemory — эталонная in-memory реализация поискового
// бэкенда: исполняет дерево условий, сортировку и пагинацию прямо в памяти.
type serviceRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Service
}

// NewServiceRepository возвращает in-memory хранилище способов для локальной
// разработки и тестов, заполненное переданными записями.
func NewServiceRepository(services ...domain.Service) *serviceRepositoryInMemory {
	repo := &serviceRepositoryInMemory{items: make(map[string]domain.Service)}
	for _, svc := range services {
		repo.items[svc.ID] = svc
	}
	return repo
}

// Add сохраняет запись (для seed'а в тестах и dev-режиме).
func (r *serviceRepositoryInMemory) Add(svc domain.Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[svc.ID] = svc
}

// Search исполняет фильтр: условия комбинируются в AND-узел, совпадения
// сортируются и нарезаются окном пагинации. Вторым значением возвращается
// общее число совпадений без учёта окна.
func (r *serviceRepositoryInMemory) Search(_ context.Context, filter domain.Filter) ([]domain.Service, int, error) {
	r.mu.RLock()
	all := make([]domain.Service, 0, len(r.items))
	for _, svc := range r.items {
		all = append(all, svc)
	}
	r.mu.RUnlock()

	root := filter.Root()
	matched := make([]domain.Service, 0, len(all))
	for _, svc := range all {
		ok, err := evalCondition(svc, root)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			matched = append(matched, svc)
		}
	}

	if err := sortServices(matched, filter.Sort); err != nil {
		return nil, 0, err
	}

	total := len(matched)

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	result := make([]domain.Service, 0, len(matched))
	for _, svc := range matched {
		result = append(result, svc.StripRelated(filter))
	}
	return result, total, nil
}

// FindByCode возвращает запись по уникальному коду или ErrServiceNotFound.
func (r *serviceRepositoryInMemory) FindByCode(_ context.Context, code string) (domain.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, svc := range r.items {
		if svc.Code == code {
			return svc, nil
		}
	}
	return domain.Service{}, domain.ErrServiceNotFound
}

// Get возвращает запись по идентификатору или ErrServiceNotFound.
func (r *serviceRepositoryInMemory) Get(_ context.Context, id string) (domain.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.items[id]
	if !ok {
		return domain.Service{}, domain.ErrServiceNotFound
	}
	return svc, nil
}

// evalCondition рекурсивно вычисляет узел условия для записи.
// nil-условие означает отсутствие ограничений.
func evalCondition(svc domain.Service, cond domain.Condition) (bool, error) {
	switch node := cond.(type) {
	case nil:
		return true, nil
	case domain.Compare:
		return evalCompare(svc, node)
	case domain.Combinator:
		switch node.Op {
		case domain.CombineAnd:
			for _, sub := range node.Subs {
				ok, err := evalCondition(svc, sub)
				if err != nil || !ok {
					return false, err
				}
			}
			return true, nil
		case domain.CombineOr:
			for _, sub := range node.Subs {
				ok, err := evalCondition(svc, sub)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
			return false, nil
		case domain.CombineNot:
			if len(node.Subs) != 1 {
				return false, fmt.Errorf("combinator %q expects exactly one child", node.Op)
			}
			ok, err := evalCondition(svc, node.Subs[0])
			return !ok, err
		default:
			return false, fmt.Errorf("unknown combinator %q", node.Op)
		}
	default:
		return false, fmt.Errorf("unknown condition node %T", cond)
	}
}

func evalCompare(svc domain.Service, cmp domain.Compare) (bool, error) {
	field, err := fieldValue(svc, cmp.Key)
	if err != nil {
		return false, err
	}

	// Числовые поля сравниваем как числа, остальные — как строки.
	if fNum, ok := toFloat(field); ok {
		if vNum, ok := toFloat(cmp.Value); ok {
			return compareFloats(cmp.Op, fNum, vNum)
		}
	}

	fStr := fmt.Sprint(field)
	vStr := fmt.Sprint(cmp.Value)
	switch cmp.Op {
	case domain.OpEq:
		return fStr == vStr, nil
	case domain.OpNe:
		return fStr != vStr, nil
	case domain.OpLt:
		return fStr < vStr, nil
	case domain.OpLe:
		return fStr <= vStr, nil
	case domain.OpGe:
		return fStr >= vStr, nil
	case domain.OpGt:
		return fStr > vStr, nil
	case domain.OpContains:
		return strings.Contains(strings.ToLower(fStr), strings.ToLower(vStr)), nil
	case domain.OpPrefix:
		return strings.HasPrefix(strings.ToLower(fStr), strings.ToLower(vStr)), nil
	default:
		return false, domain.ErrInvalidOperator
	}
}

func compareFloats(op domain.CompareOp, a, b float64) (bool, error) {
	switch op {
	case domain.OpEq:
		return a == b, nil
	case domain.OpNe:
		return a != b, nil
	case domain.OpLt:
		return a < b, nil
	case domain.OpLe:
		return a <= b, nil
	case domain.OpGe:
		return a >= b, nil
	case domain.OpGt:
		return a > b, nil
	case domain.OpContains, domain.OpPrefix:
		return strings.Contains(strconv.FormatFloat(a, 'f', -1, 64), strconv.FormatFloat(b, 'f', -1, 64)), nil
	default:
		return false, domain.ErrInvalidOperator
	}
}

// fieldValue разрешает ключ условия/сортировки в значение поля записи.
// Префикс "service." допускается и отбрасывается. Неизвестный ключ — ошибка
// исполнителя, как и для сортировки.
func fieldValue(svc domain.Service, key string) (any, error) {
	switch strings.TrimPrefix(key, "service.") {
	case "id":
		return svc.ID, nil
	case "code":
		return svc.Code, nil
	case "type":
		return string(svc.Type), nil
	case "name":
		return svc.Name, nil
	case "provider":
		return svc.Provider, nil
	case "status":
		return svc.Status, nil
	case "position":
		return svc.Position, nil
	default:
		return nil, fmt.Errorf("unknown field %q", key)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// sortServices применяет сортировку. Без явных ключей действует порядок по
// умолчанию: position по возрастанию, затем код.
func sortServices(services []domain.Service, keys []domain.SortKey) error {
	if len(keys) == 0 {
		sort.SliceStable(services, func(i, j int) bool {
			if services[i].Position != services[j].Position {
				return services[i].Position < services[j].Position
			}
			return services[i].Code < services[j].Code
		})
		return nil
	}

	// Валидируем ключи заранее: исполнитель отвечает за неизвестные ключи.
	for _, key := range keys {
		if _, err := fieldValue(domain.Service{}, key.Key); err != nil {
			return fmt.Errorf("unknown sort key %q", key.Key)
		}
	}

	var sortErr error
	sort.SliceStable(services, func(i, j int) bool {
		for _, key := range keys {
			vi, err := fieldValue(services[i], key.Key)
			if err != nil {
				sortErr = err
				return false
			}
			vj, err := fieldValue(services[j], key.Key)
			if err != nil {
				sortErr = err
				return false
			}
			cmp := compareForSort(vi, vj)
			if cmp == 0 {
				continue
			}
			if key.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return sortErr
}

func compareForSort(a, b any) int {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

var _ domain.ServiceRepository = (*serviceRepositoryInMemory)(nil)
