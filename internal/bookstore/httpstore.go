package bookstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmynk/holocron/internal/catalog"
	"github.com/mmynk/holocron/internal/models"
)

const (
	contentType     = "Content-Type"
	contentTypeJSON = "application/json"
)

// Ensure HTTPStore implements Store and Catalog
var (
	_ Store   = (*HTTPStore)(nil)
	_ Catalog = (*HTTPStore)(nil)
)

// HTTPStore is a Store backed by the Holocron JSON API.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStore creates a store that talks to the server at baseURL.
// A nil client means http.DefaultClient.
func NewHTTPStore(baseURL string, client *http.Client) *HTTPStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStore{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// LookupByCode implements Store.
func (s *HTTPStore) LookupByCode(ctx context.Context, code string) (*models.Book, error) {
	var wb WireBook
	err := s.do(ctx, "lookup", http.MethodGet, "/books/code/"+url.PathEscape(code), "", nil, &wb)
	if KindOf(err) == KindNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	book, err := FromWire(wb)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: "lookup", Err: fmt.Errorf("failed to decode book: %w", err)}
	}
	return book, nil
}

// Borrow implements Store.
func (s *HTTPStore) Borrow(ctx context.Context, bookID string, dueDays int, token string) error {
	body := BorrowRequest{DueDays: &dueDays}
	return s.do(ctx, "borrow", http.MethodPost, "/books/"+url.PathEscape(bookID)+"/borrow", token, body, nil)
}

// Return implements Store.
func (s *HTTPStore) Return(ctx context.Context, bookID, token string) error {
	return s.do(ctx, "return", http.MethodPost, "/books/"+url.PathEscape(bookID)+"/return", token, nil, nil)
}

// Register implements Store.
func (s *HTTPStore) Register(ctx context.Context, draft models.BookDraft, token string) (*models.Book, error) {
	return s.book(ctx, "register", http.MethodPost, "/books", token, DraftToWire(draft))
}

// Search implements Catalog.
func (s *HTTPStore) Search(ctx context.Context, keyword string, limit, offset int) (*Page, error) {
	q := url.Values{}
	if keyword != "" {
		q.Set("q", keyword)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/books"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var wp WirePage
	if err := s.do(ctx, "search", http.MethodGet, path, "", nil, &wp); err != nil {
		return nil, err
	}
	books, err := BooksFromWire(wp.Books)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: "search", Err: fmt.Errorf("failed to decode book: %w", err)}
	}
	return &Page{Books: books, Total: wp.Total, Limit: wp.Limit, Offset: wp.Offset}, nil
}

// Get implements Catalog.
func (s *HTTPStore) Get(ctx context.Context, bookID string) (*models.Book, error) {
	return s.book(ctx, "get", http.MethodGet, "/books/"+url.PathEscape(bookID), "", nil)
}

// Borrowings implements Catalog.
func (s *HTTPStore) Borrowings(ctx context.Context, token string) ([]*models.Book, error) {
	var list WireBookList
	if err := s.do(ctx, "borrowings", http.MethodGet, "/me/borrowings", token, nil, &list); err != nil {
		return nil, err
	}
	books, err := BooksFromWire(list.Books)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: "borrowings", Err: fmt.Errorf("failed to decode book: %w", err)}
	}
	return books, nil
}

// Update implements Catalog.
func (s *HTTPStore) Update(ctx context.Context, bookID string, patch models.BookPatch, token string) (*models.Book, error) {
	return s.book(ctx, "update", http.MethodPatch, "/books/"+url.PathEscape(bookID), token, PatchToWire(patch))
}

// Delete implements Catalog.
func (s *HTTPStore) Delete(ctx context.Context, bookID string, reason catalog.DeleteReason, memo *string, token string) error {
	body := DeleteRequest{Reason: string(reason), Memo: memo}
	return s.do(ctx, "delete", http.MethodDelete, "/books/"+url.PathEscape(bookID), token, body, nil)
}

// RegisterByCode implements Catalog.
func (s *HTTPStore) RegisterByCode(ctx context.Context, code, token string) (*models.Book, error) {
	return s.book(ctx, "register_by_code", http.MethodPost, "/books/code", token, RegisterByCodeRequest{Code: code})
}

// book sends a request answered by a single book.
func (s *HTTPStore) book(ctx context.Context, op, method, path, token string, in any) (*models.Book, error) {
	var wb WireBook
	if err := s.do(ctx, op, method, path, token, in, &wb); err != nil {
		return nil, err
	}
	book, err := FromWire(wb)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: op, Err: fmt.Errorf("failed to decode book: %w", err)}
	}
	return book, nil
}

// do sends one request and classifies the outcome. in and out may be nil.
func (s *HTTPStore) do(ctx context.Context, op, method, path, token string, in, out any) error {
	var reader io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return &Error{Kind: KindTransport, Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	if in != nil {
		req.Header.Set(contentType, contentTypeJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Kind: KindTransport, Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
		return nil
	}

	var body ErrorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)
	msg := body.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &Error{
		Kind: kindForStatus(resp.StatusCode),
		Op:   op,
		Code: body.Code,
		Err:  fmt.Errorf("HTTP %d: %w", resp.StatusCode, errors.New(msg)),
	}
}

// kindForStatus maps server status codes onto the closed kind set.
func kindForStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	default:
		return KindTransport
	}
}
