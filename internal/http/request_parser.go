// Package http provides the JSON API server and its handlers.
//
// This file holds the request decoding helpers shared by the handlers.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"expensetracker/internal/core"
)

// maxPageNumber keeps offsets well inside int64.
const maxPageNumber = 1<<31 - 1

var errMalformedJSON = &core.ValidationError{Field: "body", Message: "must be valid JSON"}

// decodeJSON reads a JSON body of at most maxJSONBodyBytes into v. Unknown
// fields are ignored. Every decoding problem is a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return nil
	}

	var (
		ve        *core.ValidationError
		maxErr    *http.MaxBytesError
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
	)
	switch {
	case errors.As(err, &ve):
		return badRequest(op, ve)
	case errors.As(err, &maxErr):
		return badRequest(op, &core.ValidationError{Field: "body",
			Message: fmt.Sprintf("must not exceed %d bytes", maxErr.Limit)})
	case errors.As(err, &typeErr):
		return badRequest(op, &core.ValidationError{Field: typeErr.Field,
			Message: "has the wrong type"})
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return badRequest(op, errMalformedJSON)
	default:
		return badRequest(op, fmt.Errorf("%w: %v", errMalformedJSON, err))
	}
}

// ListParams are the defaults and limits applied to list queries.
type ListParams struct {
	DefaultPageSize int
	MaxPageSize     int
}

// ParseListQuery builds a list query from URL parameters. Bad page or limit
// values fall back to defaults and limit is capped; unparseable date bounds
// are validation errors. The owner is set later by the scoped repository.
func ParseListQuery(query url.Values, params ListParams) (core.ListQuery, error) {
	q := core.ListQuery{
		Filter: core.Filter{
			Category:      strings.TrimSpace(query.Get("category")),
			PaymentMethod: strings.TrimSpace(query.Get("paymentMethod")),
		},
		Sort: core.Sort{
			Field: core.ParseSortField(strings.TrimSpace(query.Get("sortBy"))),
			Desc:  strings.EqualFold(strings.TrimSpace(query.Get("order")), "desc"),
		},
		Page: core.Page{
			Number: positiveInt(query.Get("page"), 1),
			Size:   positiveInt(query.Get("limit"), params.DefaultPageSize),
		},
	}
	if q.Page.Number > maxPageNumber {
		q.Page.Number = maxPageNumber
	}
	if params.MaxPageSize > 0 && q.Page.Size > params.MaxPageSize {
		q.Page.Size = params.MaxPageSize
	}

	var err error
	if q.Filter.StartDate, err = parseDateParam(query, "startDate"); err != nil {
		return core.ListQuery{}, err
	}
	if q.Filter.EndDate, err = parseDateParam(query, "endDate"); err != nil {
		return core.ListQuery{}, err
	}
	return q, nil
}

func parseDateParam(query url.Values, name string) (core.Date, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, badRequest("parse list query",
			&core.ValidationError{Field: name, Message: "must be a date in YYYY-MM-DD format"})
	}
	return d, nil
}

func positiveInt(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
