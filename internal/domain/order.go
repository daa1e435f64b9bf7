package domain

import "time"

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	// PaymentStatusUnfinished — покупатель начал оплату, результат ещё не известен.
	PaymentStatusUnfinished PaymentStatus = "unfinished"
	// PaymentStatusPending — шлюз принял платёж в обработку.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusAuthorized — сумма зарезервирована, списание не выполнено.
	PaymentStatusAuthorized PaymentStatus = "authorized"
	// PaymentStatusCompleted — оплата подтверждена шлюзом.
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusRefused — шлюз отклонил платёж.
	PaymentStatusRefused PaymentStatus = "refused"
	// PaymentStatusCanceled — покупатель прервал оплату.
	PaymentStatusCanceled PaymentStatus = "canceled"
	// PaymentStatusDeleted — заказ удалён и исключён из обработки.
	PaymentStatusDeleted PaymentStatus = "deleted"
)

// paymentTransitions задаёт граф жизненного цикла оплаты. Терминальные
// статусы переходов не имеют: реконсилер не вправе их регрессировать.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusUnfinished: {
		PaymentStatusPending, PaymentStatusAuthorized, PaymentStatusCompleted,
		PaymentStatusRefused, PaymentStatusCanceled, PaymentStatusDeleted,
	},
	PaymentStatusPending: {
		PaymentStatusAuthorized, PaymentStatusCompleted,
		PaymentStatusRefused, PaymentStatusCanceled, PaymentStatusDeleted,
	},
	PaymentStatusAuthorized: {
		PaymentStatusCompleted, PaymentStatusRefused,
		PaymentStatusCanceled, PaymentStatusDeleted,
	},
}

// Valid проверяет, относится ли статус к поддерживаемым значениям.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusUnfinished, PaymentStatusPending, PaymentStatusAuthorized,
		PaymentStatusCompleted, PaymentStatusRefused, PaymentStatusCanceled,
		PaymentStatusDeleted:
		return true
	default:
		return false
	}
}

// Terminal сообщает, является ли статус конечным.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusRefused,
		PaymentStatusCanceled, PaymentStatusDeleted:
		return true
	default:
		return false
	}
}

// CanTransitionPayment проверяет допустимость перехода по графу жизненного
// цикла. Переход в тот же статус не считается переходом.
func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Order — заказ с точки зрения платёжного цикла. Статус меняется только
// через реконсилер; Version обеспечивает optimistic locking при
// конкурирующих уведомлениях шлюза.
type Order struct {
	ID            string
	CustomerID    string
	ServiceID     string
	PaymentStatus PaymentStatus
	Currency      string
	AmountMinor   int64
	// TransactionID — идентификатор платежа на стороне шлюза, если он есть.
	TransactionID string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.ServiceID == "" {
		errs = append(errs, ErrServiceIDRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if !o.PaymentStatus.Valid() {
		errs = append(errs, ErrPaymentStatusInvalid)
	}

	return errs
}
