// Package importer turns uploaded CSV files into expense records.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"expensetracker/internal/core"
)

// Column identifies an expense field a CSV column maps to.
type Column int

const (
	colDescription Column = iota
	colAmount
	colCategory
	colPaymentMethod
	colDate
	numColumns
)

var columnNames = [numColumns]string{"description", "amount", "category", "paymentMethod", "date"}

// headerAliases maps normalized header names to columns. Owner and id
// columns are deliberately absent so their values are never read.
var headerAliases = map[string]Column{
	"description":    colDescription,
	"amount":         colAmount,
	"category":       colCategory,
	"paymentmethod":  colPaymentMethod,
	"payment_method": colPaymentMethod,
	"payment method": colPaymentMethod,
	"date":           colDate,
}

// ErrTooManyRows is returned when a file holds more data rows than allowed.
var ErrTooManyRows = errors.New("too many rows")

// Parser reads expense CSV files.
type Parser struct {
	// MaxRows limits the number of data rows; zero means unlimited.
	MaxRows int
}

// Parse reads a header row followed by data rows. CSV syntax problems are
// returned as plain errors. Rows whose amount or date cannot be converted,
// a missing required column and the row limit are reported as validation
// errors. Field-level validation is left to the caller.
func (p Parser) Parse(r io.Reader) ([]core.Expense, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []core.Expense{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	index, err := mapHeader(header)
	if err != nil {
		return nil, core.E(core.KindValidation, "read csv header", err)
	}

	var (
		records []core.Expense
		rowErrs core.RowErrors
	)
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", row, err)
		}
		if p.MaxRows > 0 && row > p.MaxRows {
			return nil, core.E(core.KindValidation, "read csv",
				fmt.Errorf("%w: limit is %d", ErrTooManyRows, p.MaxRows))
		}

		e, err := buildExpense(rec, index)
		if err != nil {
			rowErrs = append(rowErrs, core.RowError{Row: row, Err: err})
			continue
		}
		records = append(records, e)
	}

	if len(rowErrs) > 0 {
		return nil, core.E(core.KindValidation, "read csv", rowErrs)
	}
	if records == nil {
		records = []core.Expense{}
	}
	return records, nil
}

func mapHeader(header []string) ([numColumns]int, error) {
	var index [numColumns]int
	for i := range index {
		index[i] = -1
	}
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		col, ok := headerAliases[strings.ToLower(strings.TrimSpace(name))]
		if ok && index[col] < 0 {
			index[col] = i
		}
	}

	var missing []string
	for col, i := range index {
		if i < 0 {
			missing = append(missing, columnNames[col])
		}
	}
	if len(missing) > 0 {
		return index, &core.ValidationError{
			Field:   "file",
			Message: "missing required columns: " + strings.Join(missing, ", "),
		}
	}
	return index, nil
}

// buildExpense constructs a record from one row. Only amount and date need
// conversion; text fields are copied as-is for later normalization.
func buildExpense(rec []string, index [numColumns]int) (core.Expense, error) {
	cell := func(c Column) string { return strings.TrimSpace(rec[index[c]]) }

	e := core.Expense{
		Description:   cell(colDescription),
		Category:      cell(colCategory),
		PaymentMethod: cell(colPaymentMethod),
	}

	amount, err := core.ParseAmount(cell(colAmount))
	if err != nil {
		return e, &core.ValidationError{Field: "amount", Message: err.Error()}
	}
	e.Amount = amount

	date, err := core.ParseDate(cell(colDate))
	if err != nil {
		return e, &core.ValidationError{Field: "date", Message: "must be a date in YYYY-MM-DD format"}
	}
	e.Date = date

	return e, nil
}
