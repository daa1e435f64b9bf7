package domain

import "time"

// ServiceType различает способы оплаты и доставки.
type ServiceType string

const (
	ServiceTypePayment  ServiceType = "payment"
	ServiceTypeDelivery ServiceType = "delivery"
)

// Valid проверяет, что тип относится к поддерживаемым значениям.
func (t ServiceType) Valid() bool {
	switch t {
	case ServiceTypePayment, ServiceTypeDelivery:
		return true
	default:
		return false
	}
}

// Имена связанных доменов, которые можно запросить через Uses при поиске.
const (
	RelatedPrice = "price"
	RelatedText  = "text"
	RelatedMedia = "media"
)

// ServicePrice — стоимость применения способа (комиссия/тариф) в валюте.
type ServicePrice struct {
	Currency    string
	AmountMinor int64
}

// ServiceText — локализованное описание способа.
type ServiceText struct {
	Locale      string
	Title       string
	Description string
}

// ServiceMedia — медиа-ресурс способа (логотип и т.п.).
type ServiceMedia struct {
	Kind string
	URL  string
}

// Service — настроенный способ оплаты или доставки. Provider задаёт код
// шлюзового обработчика в реестре, Config — его параметры (URL шлюза,
// секреты подписи и т.д.). Связанные ресурсы подгружаются только по запросу
// через Uses.
type Service struct {
	ID       string
	Code     string
	Type     ServiceType
	Name     string
	Provider string
	// Status > 0 означает, что способ активен и доступен покупателю.
	Status   int32
	Position int32
	Config   map[string]string
	Version  int64

	Prices []ServicePrice
	Texts  []ServiceText
	Media  []ServiceMedia

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет ключевые поля записи и возвращает список замечаний.
func (s *Service) Validate() []error {
	var errs []error

	if s.Code == "" {
		errs = append(errs, ErrServiceCodeRequired)
	}
	if !s.Type.Valid() {
		errs = append(errs, ErrServiceTypeInvalid)
	}
	if s.Provider == "" {
		errs = append(errs, ErrServiceProviderRequired)
	}

	return errs
}

// ConfigValue возвращает параметр провайдера или значение по умолчанию.
func (s *Service) ConfigValue(key, fallback string) string {
	if v, ok := s.Config[key]; ok && v != "" {
		return v
	}
	return fallback
}

// StripRelated возвращает копию записи без связанных ресурсов, которые не
// были запрошены фильтром.
func (s Service) StripRelated(f Filter) Service {
	if !f.WantsRelated(RelatedPrice) {
		s.Prices = nil
	}
	if !f.WantsRelated(RelatedText) {
		s.Texts = nil
	}
	if !f.WantsRelated(RelatedMedia) {
		s.Media = nil
	}
	return s
}
