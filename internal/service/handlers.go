package service

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mmynk/holocron/internal/auth"
	"github.com/mmynk/holocron/internal/bookform"
	"github.com/mmynk/holocron/internal/bookinfo"
	"github.com/mmynk/holocron/internal/bookstore"
	"github.com/mmynk/holocron/internal/catalog"
	"github.com/mmynk/holocron/internal/lending"
	"github.com/mmynk/holocron/internal/metrics"
	"github.com/mmynk/holocron/internal/middleware"
	"github.com/mmynk/holocron/internal/storage"
)

const maxBodyBytes = 1 << 20

var (
	errBadRequest = errors.New("request body is not valid JSON")
	errBadPaging  = errors.New("limit and offset must be integers")
)

// LendingResponse is the body returned by a successful borrow.
type LendingResponse struct {
	ID         string `json:"id"`
	BookID     string `json:"bookId"`
	BorrowerID string `json:"borrowerId"`
	BorrowedAt string `json:"borrowedAt"`
	DueDate    string `json:"dueDate"`
}

// NewHandler returns the JSON API of the server. m may be nil.
func NewHandler(lib *LibraryService, authSvc *AuthService, jwtManager *auth.JWTManager, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	h := &handler{lib: lib, auth: authSvc, logger: logger}
	logged := middleware.Logging(logger)
	public := func(route string, fn http.HandlerFunc) http.Handler {
		return instrument(m, route, middleware.OptionalAuth(jwtManager)(logged(fn)))
	}
	private := func(route string, fn http.HandlerFunc) http.Handler {
		return instrument(m, route, middleware.RequireAuth(jwtManager)(logged(fn)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /auth/register", public("register", h.register))
	mux.Handle("POST /auth/login", public("login", h.login))
	mux.Handle("GET /books", public("search_books", h.searchBooks))
	mux.Handle("GET /books/{bookId}", public("get_book", h.getBook))
	mux.Handle("GET /books/code/{code}", public("lookup", h.getBookByCode))
	mux.Handle("POST /books", private("register_book", h.registerBook))
	mux.Handle("POST /books/code", private("register_by_code", h.registerByCode))
	mux.Handle("PATCH /books/{bookId}", private("update_book", h.updateBook))
	mux.Handle("DELETE /books/{bookId}", private("delete_book", h.deleteBook))
	mux.Handle("GET /me/borrowings", private("my_borrowings", h.myBorrowings))
	mux.Handle("POST /books/{bookId}/borrow", private("borrow", h.borrow))
	mux.Handle("POST /books/{bookId}/return", private("return", h.returnBook))
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}
	return middleware.CORS(mux)
}

func instrument(m *metrics.Metrics, route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return m.Instrument(route, next)
}

type handler struct {
	lib    *LibraryService
	auth   *AuthService
	logger *slog.Logger
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.auth.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.auth.Login(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) searchBooks(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	limit, err := intParam(params.Get("limit"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	offset, err := intParam(params.Get("offset"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	q := catalog.NewQuery(params.Get("q"), limit, offset)
	books, total, err := h.lib.SearchBooks(r.Context(), q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookstore.WirePage{
		Books:  bookstore.BooksToWire(books),
		Total:  total,
		Limit:  q.Limit,
		Offset: q.Offset,
	})
}

func (h *handler) getBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.lib.GetBook(r.Context(), r.PathValue("bookId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookstore.ToWire(book))
}

func (h *handler) myBorrowings(w http.ResponseWriter, r *http.Request) {
	books, err := h.lib.Borrowings(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookstore.WireBookList{Books: bookstore.BooksToWire(books)})
}

func (h *handler) getBookByCode(w http.ResponseWriter, r *http.Request) {
	book, err := h.lib.GetBookByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if book == nil {
		h.writeError(w, storage.ErrBookNotFound)
		return
	}
	writeJSON(w, http.StatusOK, bookstore.ToWire(book))
}

func (h *handler) registerBook(w http.ResponseWriter, r *http.Request) {
	var req bookstore.WireDraft
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	form := bookform.Form{
		Code:          deref(req.Code),
		Title:         req.Title,
		Authors:       bookform.AuthorsFrom(req.Authors),
		Publisher:     deref(req.Publisher),
		PublishedDate: deref(req.PublishedDate),
		ThumbnailURL:  deref(req.ThumbnailURL),
	}
	book, err := h.lib.RegisterBook(r.Context(), middleware.GetUserID(r.Context()), form)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bookstore.ToWire(book))
}

func (h *handler) registerByCode(w http.ResponseWriter, r *http.Request) {
	var req bookstore.RegisterByCodeRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	book, err := h.lib.RegisterByCode(r.Context(), middleware.GetUserID(r.Context()), req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bookstore.ToWire(book))
}

func (h *handler) updateBook(w http.ResponseWriter, r *http.Request) {
	var req bookstore.WirePatch
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	form := bookform.PatchForm{
		Code:          req.Code,
		Title:         req.Title,
		Publisher:     req.Publisher,
		PublishedDate: req.PublishedDate,
		ThumbnailURL:  req.ThumbnailURL,
	}
	if req.Authors != nil {
		form.Authors = bookform.AuthorsFrom(req.Authors)
	}
	book, err := h.lib.UpdateBook(r.Context(), r.PathValue("bookId"), middleware.GetUserID(r.Context()), form)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookstore.ToWire(book))
}

func (h *handler) deleteBook(w http.ResponseWriter, r *http.Request) {
	var req bookstore.DeleteRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	err := h.lib.DeleteBook(r.Context(), r.PathValue("bookId"), middleware.GetUserID(r.Context()), req.Reason, req.Memo)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) borrow(w http.ResponseWriter, r *http.Request) {
	var req bookstore.BorrowRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			h.writeError(w, err)
			return
		}
	}
	l, err := h.lib.Borrow(r.Context(), r.PathValue("bookId"), middleware.GetUserID(r.Context()), req.DueDays)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LendingResponse{
		ID:         l.ID,
		BookID:     l.BookID,
		BorrowerID: l.BorrowerID,
		BorrowedAt: l.BorrowedAt.UTC().Format(time.RFC3339),
		DueDate:    l.DueDate.UTC().Format(time.RFC3339),
	})
}

func (h *handler) returnBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.lib.Return(r.Context(), r.PathValue("bookId"), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookstore.ToWire(book))
}

// writeError maps domain errors to a status code and a {code, message} body.
func (h *handler) writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal"
	msg := "internal server error"

	var verr *bookform.ValidationError
	switch {
	case errors.Is(err, ErrIncompleteInfo):
		status, code, msg = http.StatusUnprocessableEntity, "book_info_incomplete", err.Error()
	case errors.As(err, &verr):
		status, code, msg = http.StatusBadRequest, "invalid_"+verr.Field, verr.Error()
	case errors.Is(err, errBadRequest), errors.Is(err, errBadPaging), errors.Is(err, errMissingFields):
		status, code, msg = http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, catalog.ErrInvalidDeleteReason):
		status, code, msg = http.StatusBadRequest, "invalid_reason", err.Error()
	case errors.Is(err, lending.ErrInvalidDueDays):
		status, code, msg = http.StatusBadRequest, "invalid_due_days", err.Error()
	case errors.Is(err, auth.ErrWeakPassword):
		status, code, msg = http.StatusBadRequest, "weak_password", err.Error()
	case errors.Is(err, storage.ErrBookNotFound):
		status, code, msg = http.StatusNotFound, "book_not_found", err.Error()
	case errors.Is(err, bookinfo.ErrNotFound):
		status, code, msg = http.StatusNotFound, "book_info_not_found", err.Error()
	case errors.Is(err, storage.ErrBookOnLoan):
		status, code, msg = http.StatusConflict, "book_borrowed", err.Error()
	case errors.Is(err, storage.ErrBookAlreadyBorrowed):
		status, code, msg = http.StatusConflict, "book_already_borrowed", err.Error()
	case errors.Is(err, storage.ErrBookNotBorrowed):
		status, code, msg = http.StatusConflict, "book_not_borrowed", err.Error()
	case errors.Is(err, storage.ErrCodeExists):
		status, code, msg = http.StatusConflict, "book_code_exists", err.Error()
	case errors.Is(err, auth.ErrEmailExists):
		status, code, msg = http.StatusConflict, "email_exists", err.Error()
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		status, code, msg = http.StatusUnauthorized, "unauthenticated", err.Error()
	default:
		h.logger.Error("Unhandled error", "error", err)
	}

	writeJSON(w, status, bookstore.ErrorBody{Code: code, Message: msg})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errBadRequest
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// intParam parses an optional integer query parameter.
func intParam(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, errBadPaging
	}
	return &n, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
