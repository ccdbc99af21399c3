package http

import (
	"errors"
	"fmt"
	"net/http"

	"expensetracker/internal/core"
	"expensetracker/internal/importer"
	"expensetracker/internal/middleware/auth"
)

const (
	msgCreateFailed = "Error adding expense"
	msgBulkFailed   = "Error adding bulk expenses"
	msgNoFile       = "Please upload a CSV file"
	msgListFailed   = "Error fetching expenses"
	msgUpdateFailed = "Error updating expense"
	msgDeleteFailed = "Error deleting expenses"
	msgStatsFailed  = "Error fetching statistics"

	uploadField = "file"
)

type expenseResponse struct {
	Message string       `json:"message"`
	Expense core.Expense `json:"expense"`
}

type bulkResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

type listResponse struct {
	Expenses      []core.Expense `json:"expenses"`
	CurrentPage   int            `json:"currentPage"`
	TotalPages    int            `json:"totalPages"`
	TotalExpenses int            `json:"totalExpenses"`
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

type deleteResponse struct {
	Message      string `json:"message"`
	DeletedCount int64  `json:"deletedCount"`
}

type statsResponse struct {
	Stats []core.MonthlyStat `json:"stats"`
}

// handleCreateExpense stores one expense owned by the caller. The body has
// the same fields as a partial update, all of them required.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var in core.ExpensePatch
	if err := decodeJSON(w, r, "create expense", &in); err != nil {
		writeError(w, r, msgCreateFailed, err)
		return
	}
	if in.Amount == nil {
		writeError(w, r, msgCreateFailed,
			badRequest("create expense", &core.ValidationError{Field: "amount", Message: "is required"}))
		return
	}

	userID := auth.UserID(r.Context())
	created, err := s.expenses.ForUser(userID).Create(r.Context(), in.Apply(core.Expense{}))
	if err != nil {
		writeError(w, r, msgCreateFailed, err)
		return
	}

	writeJSON(w, http.StatusCreated, expenseResponse{
		Message: "Expense added successfully",
		Expense: created,
	})
}

// handleBulkImport imports every row of an uploaded CSV or none of them.
func (s *Server) handleBulkImport(w http.ResponseWriter, r *http.Request) {
	if s.cfg.UploadMaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.UploadMaxBytes)
	}

	file, _, err := r.FormFile(uploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, msgBulkFailed, uploadTooLarge(maxErr))
			return
		}
		writeError(w, r, msgNoFile,
			badRequest("read upload", &core.ValidationError{Field: uploadField, Message: "is required"}))
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	records, err := importer.Parser{MaxRows: s.cfg.BulkMaxRows}.Parse(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			err = uploadTooLarge(maxErr)
		}
		writeError(w, r, msgBulkFailed, err)
		return
	}

	count, err := s.expenses.ForUser(auth.UserID(r.Context())).Import(r.Context(), records)
	if err != nil {
		writeError(w, r, msgBulkFailed, err)
		return
	}

	writeJSON(w, http.StatusCreated, bulkResponse{
		Message: "Bulk expenses added successfully",
		Count:   count,
	})
}

func uploadTooLarge(maxErr *http.MaxBytesError) error {
	return badRequest("read upload", &core.ValidationError{
		Field:   uploadField,
		Message: fmt.Sprintf("must not exceed %d bytes", maxErr.Limit),
	})
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q, err := ParseListQuery(r.URL.Query(), ListParams{
		DefaultPageSize: s.cfg.DefaultPageSize,
		MaxPageSize:     s.cfg.MaxPageSize,
	})
	if err != nil {
		writeError(w, r, msgListFailed, err)
		return
	}

	res, err := s.expenses.ForUser(auth.UserID(r.Context())).List(r.Context(), q)
	if err != nil {
		writeError(w, r, msgListFailed, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		Expenses:      res.Expenses,
		CurrentPage:   res.CurrentPage,
		TotalPages:    res.TotalPages,
		TotalExpenses: res.Total,
	})
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var patch core.ExpensePatch
	if err := decodeJSON(w, r, "update expense", &patch); err != nil {
		writeError(w, r, msgUpdateFailed, err)
		return
	}

	updated, err := s.expenses.ForUser(auth.UserID(r.Context())).Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, msgUpdateFailed, err)
		return
	}

	writeJSON(w, http.StatusOK, expenseResponse{
		Message: "Expense updated successfully",
		Expense: updated,
	})
}

// handleDeleteExpenses removes the listed expenses owned by the caller;
// other ids are ignored and the response is 200 either way.
func (s *Server) handleDeleteExpenses(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decodeJSON(w, r, "delete expenses", &req); err != nil {
		writeError(w, r, msgDeleteFailed, err)
		return
	}

	n, err := s.expenses.ForUser(auth.UserID(r.Context())).Delete(r.Context(), req.IDs)
	if err != nil {
		writeError(w, r, msgDeleteFailed, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{
		Message:      "Expenses deleted successfully",
		DeletedCount: n,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.expenses.ForUser(auth.UserID(r.Context())).Stats(r.Context())
	if err != nil {
		writeError(w, r, msgStatsFailed, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Stats: stats})
}
