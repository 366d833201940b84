// Package bookform validates the manual book registration form.
package bookform

import (
	"errors"
	"regexp"
	"strings"

	"github.com/mmynk/holocron/internal/isbn"
	"github.com/mmynk/holocron/internal/models"
)

var (
	ErrTitleRequired       = errors.New("title required")
	ErrAuthorRequired      = errors.New("at least one author required")
	ErrPublishedDateFormat = errors.New("published date must be formatted as YYYY-MM-DD")
	ErrInvalidCode         = errors.New("code must be a valid ISBN")
)

// ValidationError reports the first rule a form broke.
// Its message is suitable for showing to the user.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Author is one author input row. ID only identifies the row while editing.
type Author struct {
	ID    string
	Value string
}

// Form is the raw user input, before validation.
type Form struct {
	// Code is an optional ISBN, for books registered by hand after a failed lookup.
	Code          string
	Title         string
	Authors       []Author
	Publisher     string
	PublishedDate string
	ThumbnailURL  string
}

var publishedDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Parse validates form and returns the canonical draft.
// Rules apply in order and the first failure wins: title, authors, published
// date, code. A code is stored in its normalized form.
// Empty optional fields become nil. Parse has no side effects.
func Parse(form Form) (models.BookDraft, error) {
	title, err := parseTitle(form.Title)
	if err != nil {
		return models.BookDraft{}, err
	}

	authors, err := parseAuthors(form.Authors)
	if err != nil {
		return models.BookDraft{}, err
	}

	publishedDate, err := parsePublishedDate(form.PublishedDate)
	if err != nil {
		return models.BookDraft{}, err
	}

	code, err := parseCode(form.Code)
	if err != nil {
		return models.BookDraft{}, err
	}

	return models.BookDraft{
		Code:          optional(code),
		Title:         title,
		Authors:       authors,
		Publisher:     optional(form.Publisher),
		PublishedDate: optional(publishedDate),
		ThumbnailURL:  optional(form.ThumbnailURL),
	}, nil
}

// PatchForm is the raw input of a book edit. Nil fields are left unchanged,
// and so are Authors when nil.
type PatchForm struct {
	Code          *string
	Title         *string
	Authors       []Author
	Publisher     *string
	PublishedDate *string
	ThumbnailURL  *string
}

// ParsePatch validates an edit with the rules of Parse, applied only to the
// fields present. Optional fields given as blank are cleared.
func ParsePatch(form PatchForm) (models.BookPatch, error) {
	var patch models.BookPatch

	if form.Title != nil {
		title, err := parseTitle(*form.Title)
		if err != nil {
			return models.BookPatch{}, err
		}
		patch.Title = &title
	}

	if form.Authors != nil {
		authors, err := parseAuthors(form.Authors)
		if err != nil {
			return models.BookPatch{}, err
		}
		patch.Authors = authors
	}

	if form.PublishedDate != nil {
		date, err := parsePublishedDate(*form.PublishedDate)
		if err != nil {
			return models.BookPatch{}, err
		}
		patch.PublishedDate = &date
	}

	if form.Code != nil {
		code, err := parseCode(*form.Code)
		if err != nil {
			return models.BookPatch{}, err
		}
		patch.Code = &code
	}

	patch.Publisher = trimmed(form.Publisher)
	patch.ThumbnailURL = trimmed(form.ThumbnailURL)
	return patch, nil
}

func parseTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", &ValidationError{Field: "title", Err: ErrTitleRequired}
	}
	return title, nil
}

func parseAuthors(rows []Author) ([]string, error) {
	authors := make([]string, 0, len(rows))
	for _, a := range rows {
		if v := strings.TrimSpace(a.Value); v != "" {
			authors = append(authors, v)
		}
	}
	if len(authors) == 0 {
		return nil, &ValidationError{Field: "authors", Err: ErrAuthorRequired}
	}
	return authors, nil
}

// parsePublishedDate returns the trimmed date, "" when blank.
func parsePublishedDate(raw string) (string, error) {
	date := strings.TrimSpace(raw)
	if date != "" && !publishedDatePattern.MatchString(date) {
		return "", &ValidationError{Field: "publishedDate", Err: ErrPublishedDateFormat}
	}
	return date, nil
}

// parseCode returns the normalized ISBN, "" when blank.
func parseCode(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	parsed, ok := isbn.Parse(raw)
	if !ok {
		return "", &ValidationError{Field: "code", Err: ErrInvalidCode}
	}
	return parsed.String(), nil
}

// IsPublishedDate reports whether s is a complete YYYY-MM-DD date.
func IsPublishedDate(s string) bool {
	return publishedDatePattern.MatchString(s)
}

// AuthorsFrom wraps plain author names as form rows.
func AuthorsFrom(names []string) []Author {
	rows := make([]Author, len(names))
	for i, n := range names {
		rows[i] = Author{Value: n}
	}
	return rows
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
