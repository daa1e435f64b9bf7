package domain

// CompareOp — оператор сравнения в условии фильтра.
type CompareOp string

const (
	OpEq CompareOp = "=="
	OpNe CompareOp = "!="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGe CompareOp = ">="
	OpGt CompareOp = ">"
	// OpContains — нечувствительный к регистру поиск подстроки.
	OpContains CompareOp = "=~"
	// OpPrefix — нечувствительный к регистру поиск по префиксу.
	OpPrefix CompareOp = "~="
)

// Valid проверяет, относится ли оператор к поддерживаемому набору.
func (op CompareOp) Valid() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGe, OpGt, OpContains, OpPrefix:
		return true
	default:
		return false
	}
}

// CombineOp — логический комбинатор узлов условия.
type CombineOp string

const (
	CombineAnd CombineOp = "&&"
	CombineOr  CombineOp = "||"
	CombineNot CombineOp = "!"
)

// Condition — неизменяемый узел предиката фильтра. Узлы создаются один раз
// и комбинируются без побочных эффектов; исполняются только поисковым
// бэкендом.
type Condition interface {
	isCondition()
}

// Compare — листовой узел: сравнение значения поля с константой.
type Compare struct {
	Op    CompareOp
	Key   string
	Value any
}

func (Compare) isCondition() {}

// Combinator — составной узел: логическая связка дочерних условий.
// Для CombineNot ожидается ровно один дочерний узел.
type Combinator struct {
	Op   CombineOp
	Subs []Condition
}

func (Combinator) isCondition() {}

// And объединяет условия конъюнкцией. Пустой список даёт nil (отсутствие
// ограничений), единственное условие возвращается как есть — благодаря этому
// композиция ассоциативна при любой группировке.
func And(conds ...Condition) Condition {
	return combine(CombineAnd, conds)
}

// Or объединяет условия дизъюнкцией.
func Or(conds ...Condition) Condition {
	return combine(CombineOr, conds)
}

// Not инвертирует условие.
func Not(cond Condition) Condition {
	if cond == nil {
		return nil
	}
	return Combinator{Op: CombineNot, Subs: []Condition{cond}}
}

func combine(op CombineOp, conds []Condition) Condition {
	flat := make([]Condition, 0, len(conds))
	for _, c := range conds {
		if c == nil {
			continue
		}
		// Разворачиваем вложенные узлы того же комбинатора, чтобы
		// ((a && b) && c) и (a && (b && c)) давали одинаковое дерево.
		if comb, ok := c.(Combinator); ok && comb.Op == op {
			flat = append(flat, comb.Subs...)
			continue
		}
		flat = append(flat, c)
	}
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	default:
		return Combinator{Op: op, Subs: flat}
	}
}
