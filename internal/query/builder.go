package query

import (
	"context"

	"github.com/vladislavdragonenkov/psp/internal/domain"
)

// Builder — fluent-аккумулятор условий поиска по способам оплаты/доставки.
// Условия только накапливаются; в единый AND-фильтр они собираются в момент
// исполнения, поэтому порядок и группировка вызовов не влияют на результат.
// Экземпляр принадлежит одному запросу и не рассчитан на конкурентную
// мутацию.
type Builder struct {
	repo   domain.ServiceRepository
	filter domain.Filter
	err    error
}

// New создаёт builder поверх поискового бэкенда.
func New(repo domain.ServiceRepository) *Builder {
	return &Builder{repo: repo}
}

// Compare добавляет сравнение поля с константой. Неизвестный оператор
// фиксируется как ErrInvalidOperator и поднимется при исполнении — это
// ошибка вызывающего кода, а не данных.
func (b *Builder) Compare(op domain.CompareOp, key string, value any) *Builder {
	if !op.Valid() {
		if b.err == nil {
			b.err = domain.ErrInvalidOperator
		}
		return b
	}
	b.filter.Conditions = append(b.filter.Conditions, domain.Compare{Op: op, Key: key, Value: value})
	return b
}

// Where добавляет готовый узел условия (например, собранный через domain.Or).
func (b *Builder) Where(cond domain.Condition) *Builder {
	if cond != nil {
		b.filter.Conditions = append(b.filter.Conditions, cond)
	}
	return b
}

// Parse принимает вложенное структурное описание условий и транслирует его
// в узлы фильтра. Формат — s-выражения на []any:
//
//	[]any{"&&", sub, sub, ...}
//	[]any{"||", sub, sub, ...}
//	[]any{"!", sub}
//	[]any{op, key, value} — сравнение
//
// Некорректное дерево молча игнорируется целиком: это осознанная мягкая
// политика разбора, строгую валидацию выполняет вызывающая сторона.
func (b *Builder) Parse(tree any) *Builder {
	cond, ok := parseNode(tree)
	if !ok || cond == nil {
		return b
	}
	b.filter.Conditions = append(b.filter.Conditions, cond)
	return b
}

// Type ограничивает выборку одним или несколькими типами способа.
// Пустой список — no-op.
func (b *Builder) Type(types ...domain.ServiceType) *Builder {
	if len(types) == 0 {
		return b
	}
	conds := make([]domain.Condition, 0, len(types))
	for _, t := range types {
		if t == "" {
			continue
		}
		conds = append(conds, domain.Compare{Op: domain.OpEq, Key: "type", Value: string(t)})
	}
	if len(conds) == 0 {
		return b
	}
	b.filter.Conditions = append(b.filter.Conditions, domain.Or(conds...))
	return b
}

// Slice задаёт окно пагинации. Отрицательные значения здесь не валидируются:
// ограничения применяет исполнитель поиска.
func (b *Builder) Slice(offset, limit int) *Builder {
	b.filter.Offset = offset
	b.filter.Limit = limit
	return b
}

// SortBy разбирает спецификацию сортировки вида "-position,name".
// Пустая строка очищает сортировку. Неизвестные ключи передаются исполнителю
// как есть — он вернёт ошибку, если ключ не распознан.
func (b *Builder) SortBy(spec string) *Builder {
	b.filter.Sort = domain.ParseSortSpec(spec)
	return b
}

// Uses объявляет связанные домены (price/text/media), которые нужно
// подгрузить вместе с каждой записью при исполнении.
func (b *Builder) Uses(domains ...string) *Builder {
	b.filter.Uses = append(b.filter.Uses, domains...)
	return b
}

// Filter возвращает копию накопленного фильтра.
func (b *Builder) Filter() domain.Filter {
	return b.filter
}

// Search собирает условия в AND-фильтр и исполняет его. Вторым значением
// возвращается общее число совпадений без учёта пагинации.
func (b *Builder) Search(ctx context.Context) ([]domain.Service, int, error) {
	if b.err != nil {
		return nil, 0, b.err
	}
	return b.repo.Search(ctx, b.filter)
}

// Find возвращает запись по уникальному коду или ErrServiceNotFound.
func (b *Builder) Find(ctx context.Context, code string) (domain.Service, error) {
	if b.err != nil {
		return domain.Service{}, b.err
	}
	return b.repo.FindByCode(ctx, code)
}

// Get возвращает запись по идентификатору или ErrServiceNotFound.
func (b *Builder) Get(ctx context.Context, id string) (domain.Service, error) {
	if b.err != nil {
		return domain.Service{}, b.err
	}
	return b.repo.Get(ctx, id)
}

// parseNode рекурсивно транслирует узел дерева. Возвращает ok=false при
// любом отклонении от формата — тогда Parse игнорирует дерево целиком.
func parseNode(node any) (domain.Condition, bool) {
	list, ok := node.([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}

	head, ok := list[0].(string)
	if !ok {
		return nil, false
	}

	switch domain.CombineOp(head) {
	case domain.CombineAnd, domain.CombineOr:
		if len(list) < 2 {
			return nil, false
		}
		subs := make([]domain.Condition, 0, len(list)-1)
		for _, raw := range list[1:] {
			sub, ok := parseNode(raw)
			if !ok {
				return nil, false
			}
			subs = append(subs, sub)
		}
		if domain.CombineOp(head) == domain.CombineAnd {
			return domain.And(subs...), true
		}
		return domain.Or(subs...), true
	case domain.CombineNot:
		if len(list) != 2 {
			return nil, false
		}
		sub, ok := parseNode(list[1])
		if !ok {
			return nil, false
		}
		return domain.Not(sub), true
	}

	// Листовой узел: [op, key, value].
	op := domain.CompareOp(head)
	if !op.Valid() || len(list) != 3 {
		return nil, false
	}
	key, ok := list[1].(string)
	if !ok || key == "" {
		return nil, false
	}
	return domain.Compare{Op: op, Key: key, Value: list[2]}, true
}
