package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation: некорректные входные данные запроса.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound: корзина, котировка, позиция или заказ не найдены либо не принадлежат актору.
	ErrNotFound = errors.New("not found")
	ErrState    = errors.New("illegal state transition")
	// ErrEmptySource возвращается при оформлении пустой корзины или котировки без позиций.
	ErrEmptySource = errors.New("checkout source has no items")
	// ErrConcurrency означает коллизию номера или конфликт транзакций; запрос можно повторить.
	ErrConcurrency = errors.New("concurrent modification")
	// ErrInternal означает непредвиденную ошибку хранилища; детали не раскрываются вызывающему.
	ErrInternal = errors.New("internal error")

	// ErrProductUnavailable: товар не найден в каталоге или снят с продажи.
	ErrProductUnavailable = errors.New("product unavailable")
	ErrVendorInactive     = errors.New("vendor inactive")
	// ErrVendorUnresolved — у позиции нет поставщика, заказ сформировать нельзя.
	ErrVendorUnresolved  = errors.New("vendor unresolved")
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrPriceDrift: цена в позиции разошлась с текущей ценой каталога.
	ErrPriceDrift = errors.New("price drift")

	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists: ключ занят, ответ либо сохранён, либо ещё готовится.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ повторно использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")

	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IssueKind классифицирует проблему позиции, найденную при валидации.
type IssueKind string

const (
	IssueProductUnavailable IssueKind = "product_unavailable"
	IssueVendorInactive     IssueKind = "vendor_inactive"
	IssueVendorUnresolved   IssueKind = "vendor_unresolved"
	IssueInsufficientStock  IssueKind = "insufficient_stock"
	IssuePriceDrift         IssueKind = "price_drift"
)

// Err возвращает sentinel-ошибку, соответствующую виду проблемы.
func (k IssueKind) Err() error {
	switch k {
	case IssueProductUnavailable:
		return ErrProductUnavailable
	case IssueVendorInactive:
		return ErrVendorInactive
	case IssueVendorUnresolved:
		return ErrVendorUnresolved
	case IssueInsufficientStock:
		return ErrInsufficientStock
	case IssuePriceDrift:
		return ErrPriceDrift
	default:
		return ErrValidation
	}
}

// Issue описывает одну позицию, которую нельзя купить на записанных условиях.
type Issue struct {
	ItemID      string
	ProductID   string
	ProductName string
	VendorID    string
	Kind        IssueKind
	Details     string

	// Заполняются для price drift и нехватки остатка.
	RecordedPriceMinor int64
	CurrentPriceMinor  int64
	Requested          int64
	Available          int32
}

// IssuesError возвращается, когда валидация нашла хотя бы одну проблему.
// errors.Is срабатывает для sentinel-ошибки каждой найденной проблемы.
type IssuesError struct {
	Issues []Issue
}

func (e *IssuesError) Error() string {
	if len(e.Issues) == 0 {
		return "validation issues"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		name := issue.ProductName
		if name == "" {
			name = issue.ItemID
		}
		parts = append(parts, fmt.Sprintf("%s: %s (%s)", name, issue.Kind, issue.Details))
	}
	return "validation issues: " + strings.Join(parts, "; ")
}

func (e *IssuesError) Unwrap() []error {
	errs := make([]error, 0, len(e.Issues)+1)
	errs = append(errs, ErrValidation)
	for _, issue := range e.Issues {
		errs = append(errs, issue.Kind.Err())
	}
	return errs
}

// StockError сообщает о нехватке остатка при добавлении или изменении позиции корзины.
type StockError struct {
	ProductID   string
	ProductName string
	Available   int32
	InCart      int32
	Requested   int32
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available=%d, in cart=%d, requested=%d",
		e.ProductName, e.Available, e.InCart, e.Requested)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

// Validationf оборачивает ErrValidation с описанием поля.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf оборачивает ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Statef оборачивает ErrState с причиной недопустимого перехода.
func Statef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}

// IsIdempotencyConflict проверяет, является ли ошибка конфликтом idempotency-ключа.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// IsUserFacing сообщает, можно ли показать текст ошибки пользователю как есть.
func IsUserFacing(err error) bool {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrState),
		errors.Is(err, ErrEmptySource),
		errors.Is(err, ErrConcurrency),
		errors.Is(err, ErrInsufficientStock):
		return true
	default:
		return false
	}
}
