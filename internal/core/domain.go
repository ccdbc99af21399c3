package core

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the wire and storage format of an expense date.
const DateLayout = "2006-01-02"

type (
	// Date is a calendar date without a time-of-day component, always UTC.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Expense is a single expense record owned by CreatedBy.
	Expense struct {
		ID            string    `json:"id"`
		Description   string    `json:"description" validate:"required,max=200"`
		Amount        Money     `json:"amount" validate:"-"`
		Category      string    `json:"category" validate:"required,max=100"`
		PaymentMethod string    `json:"paymentMethod" validate:"required,max=100"`
		Date          Date      `json:"date" validate:"-"`
		CreatedBy     string    `json:"createdBy" validate:"required"`
		CreatedAt     time.Time `json:"createdAt"`
		UpdatedAt     time.Time `json:"updatedAt"`
	}

	// ExpensePatch carries the fields of a partial update. Nil fields keep
	// their stored value.
	ExpensePatch struct {
		Description   *string `json:"description"`
		Amount        *Money  `json:"amount"`
		Category      *string `json:"category"`
		PaymentMethod *string `json:"paymentMethod"`
		Date          *Date   `json:"date"`
	}
)

var (
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrNegativeAmount = errors.New("amount must not be negative")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp; only the UTC
// calendar date is kept.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day()), nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// IsEmpty returns true if the date is zero (used for optional filter bounds)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return &ValidationError{Field: "date", Message: "must be a date in YYYY-MM-DD format"}
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// Normalize trims free-text fields and strips control characters.
func (e Expense) Normalize() Expense {
	e.Description = SanitizeInput(e.Description)
	e.Category = SanitizeInput(e.Category)
	e.PaymentMethod = SanitizeInput(e.PaymentMethod)
	return e
}

func (e Expense) Validate() error {
	if err := validate.Struct(e); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fromFieldError(fieldErrs[0])
		}
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Message: err.Error()}
	}
	if err := e.Date.Validate(); err != nil {
		return &ValidationError{Field: "date", Message: "is required"}
	}
	return nil
}

// Apply merges the patch into e and returns the result.
func (p ExpensePatch) Apply(e Expense) Expense {
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.PaymentMethod != nil {
		e.PaymentMethod = *p.PaymentMethod
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	return e.Normalize()
}

func fromFieldError(fe validator.FieldError) *ValidationError {
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: fe.Field(), Message: "is required"}
	case "max":
		return &ValidationError{Field: fe.Field(), Message: "must be at most " + fe.Param() + " characters"}
	default:
		return &ValidationError{Field: fe.Field(), Message: "failed " + fe.Tag() + " check"}
	}
}

// SanitizeInput removes control characters (except tab, newline, carriage
// return) and trims whitespace.
func SanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
