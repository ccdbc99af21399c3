package core

// SortField names a sortable expense attribute using its JSON name.
type SortField string

const (
	SortNone          SortField = ""
	SortDescription   SortField = "description"
	SortAmount        SortField = "amount"
	SortCategory      SortField = "category"
	SortPaymentMethod SortField = "paymentMethod"
	SortDate          SortField = "date"
	SortCreatedAt     SortField = "createdAt"
)

// ParseSortField returns SortNone for unknown names so the store default
// ordering applies.
func ParseSortField(s string) SortField {
	switch f := SortField(s); f {
	case SortDescription, SortAmount, SortCategory, SortPaymentMethod, SortDate, SortCreatedAt:
		return f
	default:
		return SortNone
	}
}

type (
	// Filter selects expenses. Owner is always set by the scoped repository;
	// empty optional fields and zero dates are not applied.
	Filter struct {
		Owner         string
		Category      string
		PaymentMethod string
		StartDate     Date // inclusive
		EndDate       Date // inclusive
	}

	Sort struct {
		Field SortField
		Desc  bool
	}

	// Page is a 1-based page of Size records.
	Page struct {
		Number int
		Size   int
	}

	ListQuery struct {
		Filter Filter
		Sort   Sort
		Page   Page
	}

	ListResult struct {
		Expenses    []Expense
		CurrentPage int
		TotalPages  int
		Total       int
	}

	// MonthlyStat is the aggregate of one (year, month) group.
	MonthlyStat struct {
		Year        int   `json:"year"`
		Month       int   `json:"month"`
		TotalAmount Money `json:"totalAmount"`
		Count       int   `json:"count"`
	}
)

func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// TotalPages is ceil(total/size).
func TotalPages(total, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}
