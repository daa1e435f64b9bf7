package domain

import "strings"

// SortKey описывает один ключ сортировки результата поиска.
type SortKey struct {
	Key  string
	Desc bool
}

// Filter — накопленный, но ещё не исполненный поисковый запрос: условия
// (по умолчанию конъюнктивные), сортировка, окно пагинации и список
// связанных доменов, которые нужно подгрузить вместе с записями.
type Filter struct {
	Conditions []Condition
	Sort       []SortKey
	Offset     int
	Limit      int
	Uses       []string
}

// Root материализует накопленные условия в один AND-узел. Вызывается
// исполнителем в момент поиска; до этого условия хранятся как есть.
func (f Filter) Root() Condition {
	return And(f.Conditions...)
}

// WantsRelated сообщает, запрошен ли связанный домен (price/text/media).
func (f Filter) WantsRelated(domainName string) bool {
	for _, u := range f.Uses {
		if u == domainName {
			return true
		}
	}
	return false
}

// ParseSortSpec разбирает спецификацию сортировки вида "-position,name":
// ключи через запятую, префикс "-" означает убывание. Пустая строка очищает
// сортировку. Неизвестные ключи не валидируются здесь — их отклонит
// исполнитель поиска.
func ParseSortSpec(spec string) []SortKey {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}

	var keys []SortKey
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key := SortKey{Key: part}
		if strings.HasPrefix(part, "-") {
			key.Key = strings.TrimSpace(part[1:])
			key.Desc = true
		}
		if key.Key == "" {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}
