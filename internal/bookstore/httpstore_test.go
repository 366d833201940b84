package bookstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/holocron/internal/catalog"
	"github.com/mmynk/holocron/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(contentType, contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHTTPStore_LookupByCode(t *testing.T) {
	code := "9780306406157"
	borrowedAt := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	book := &models.Book{
		ID:        "book-1",
		Code:      &code,
		Title:     "Dune",
		Authors:   []string{"Frank Herbert"},
		Status:    models.BookBorrowed,
		Borrower:  &models.Borrower{ID: "u1", Name: "Alice", BorrowedAt: borrowedAt, DueDate: borrowedAt.AddDate(0, 0, 7)},
		CreatedAt: borrowedAt.Add(-time.Hour),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /books/code/{code}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("code") != code {
			writeJSON(w, http.StatusNotFound, ErrorBody{Code: "book_not_found", Message: "book not found"})
			return
		}
		writeJSON(w, http.StatusOK, ToWire(book))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := NewHTTPStore(srv.URL+"/", nil)

	got, err := store.LookupByCode(context.Background(), code)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, book.ID, got.ID)
	assert.Equal(t, models.BookBorrowed, got.Status)
	require.NotNil(t, got.Borrower)
	assert.Equal(t, "u1", got.Borrower.ID)
	assert.True(t, got.Borrower.BorrowedAt.Equal(borrowedAt))

	missing, err := store.LookupByCode(context.Background(), "0306406152")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHTTPStore_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusConflict, KindConflict},
		{http.StatusNotFound, KindNotFound},
		{http.StatusBadRequest, KindValidation},
		{http.StatusUnprocessableEntity, KindValidation},
		{http.StatusInternalServerError, KindTransport},
		{http.StatusUnauthorized, KindTransport},
		{http.StatusBadGateway, KindTransport},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, ErrorBody{Code: "some_code", Message: "nope"})
			}))
			defer srv.Close()

			err := NewHTTPStore(srv.URL, nil).Return(context.Background(), "book-1", "tok")
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))

			var serr *Error
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, "return", serr.Op)
			assert.Equal(t, "some_code", serr.Code)
		})
	}
}

func TestHTTPStore_Borrow(t *testing.T) {
	var gotAuth string
	var gotBody BorrowRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/books/book-1/borrow", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, http.StatusOK, map[string]string{"id": "lending-1"})
	}))
	defer srv.Close()

	err := NewHTTPStore(srv.URL, nil).Borrow(context.Background(), "book-1", 14, "secret")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
	require.NotNil(t, gotBody.DueDays)
	assert.Equal(t, 14, *gotBody.DueDays)
}

func TestHTTPStore_Register(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var d WireDraft
		require.NoError(t, json.NewDecoder(r.Body).Decode(&d))
		writeJSON(w, http.StatusCreated, WireBook{
			ID: "new", Title: d.Title, Authors: d.Authors, Status: "available",
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		})
	}))
	defer srv.Close()

	book, err := NewHTTPStore(srv.URL, nil).Register(context.Background(), models.BookDraft{
		Title: "Dune", Authors: []string{"Frank Herbert"},
	}, "tok")
	require.NoError(t, err)
	assert.Equal(t, "new", book.ID)
	assert.Equal(t, models.BookAvailable, book.Status)
	assert.Nil(t, book.Borrower)
}

func TestHTTPStore_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewHTTPStore(srv.URL, nil).LookupByCode(context.Background(), "9780306406157")
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTransport, KindOf(errors.New("plain")))
	wrapped := errors.Join(errors.New("ctx"), &Error{Kind: KindConflict, Op: "borrow", Err: errors.New("x")})
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, "not_found", KindNotFound.String())
}

func TestHTTPStore_CatalogRequests(t *testing.T) {
	created := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	book := &models.Book{ID: "book-1", Title: "Dune", Authors: []string{"Frank Herbert"}, Status: models.BookAvailable, CreatedAt: created}

	var (
		gotQuery  string
		gotPatch  map[string]any
		gotDelete DeleteRequest
		gotCode   RegisterByCodeRequest
	)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /books", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeJSON(w, http.StatusOK, WirePage{Books: BooksToWire([]*models.Book{book}), Total: 7, Limit: 1, Offset: 3})
	})
	mux.HandleFunc("GET /books/{bookId}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ToWire(book))
	})
	mux.HandleFunc("PATCH /books/{bookId}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotPatch)
		writeJSON(w, http.StatusOK, ToWire(book))
	})
	mux.HandleFunc("DELETE /books/{bookId}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&gotDelete)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /books/code", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotCode)
		writeJSON(w, http.StatusCreated, ToWire(book))
	})
	mux.HandleFunc("GET /me/borrowings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, WireBookList{Books: []WireBook{}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := NewHTTPStore(srv.URL, nil)
	ctx := context.Background()

	page, err := store.Search(ctx, "frank herbert", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, "limit=1&offset=3&q=frank+herbert", gotQuery)
	assert.Equal(t, 7, page.Total)
	require.Len(t, page.Books, 1)
	assert.Equal(t, "Dune", page.Books[0].Title)

	_, err = store.Search(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, gotQuery)

	got, err := store.Get(ctx, "book-1")
	require.NoError(t, err)
	assert.Equal(t, "book-1", got.ID)

	empty := ""
	_, err = store.Update(ctx, "book-1", models.BookPatch{Publisher: &empty}, "tok")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"publisher": "", "authors": nil}, gotPatch)

	memo := "gave it to the branch office"
	require.NoError(t, store.Delete(ctx, "book-1", catalog.ReasonTransfer, &memo, "tok"))
	assert.Equal(t, "transfer", gotDelete.Reason)
	require.NotNil(t, gotDelete.Memo)
	assert.Equal(t, memo, *gotDelete.Memo)

	_, err = store.RegisterByCode(ctx, "9780306406157", "tok")
	require.NoError(t, err)
	assert.Equal(t, "9780306406157", gotCode.Code)

	mine, err := store.Borrowings(ctx, "tok")
	require.NoError(t, err)
	assert.Empty(t, mine)
}
