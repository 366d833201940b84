package bookinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func googleBooksJSON(title, author, publisher, date string) []byte {
	body, _ := json.Marshal(map[string]any{
		"totalItems": 1,
		"items": []any{map[string]any{
			"volumeInfo": map[string]any{
				"title":         title,
				"authors":       []string{author},
				"publisher":     publisher,
				"publishedDate": date,
				"imageLinks":    map[string]string{"thumbnail": "http://books.example/cover.jpg"},
			},
		}},
	})
	return body
}

func openBDJSON(title, author, publisher, pubdate string) []byte {
	body, _ := json.Marshal([]any{map[string]any{
		"summary": map[string]string{
			"title":     title,
			"author":    author,
			"publisher": publisher,
			"pubdate":   pubdate,
			"cover":     "https://cover.openbd.jp/9784873115658.jpg",
		},
	}})
	return body
}

func TestParseGoogleBooks_KeepsVolumeInfo(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("first volume is returned as is", prop.ForAll(
		func(title, author, publisher string) bool {
			info, err := parseGoogleBooks(googleBooksJSON(title, author, publisher, "1965"))
			return err == nil &&
				info.Title == title &&
				len(info.Authors) == 1 && info.Authors[0] == author &&
				info.Publisher == publisher &&
				info.PublishedDate == "1965"
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.AnyString(),
	))
	properties.TestingRun(t)
}

func TestParseGoogleBooks_Errors(t *testing.T) {
	_, err := parseGoogleBooks([]byte(`{"totalItems": 0}`))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = parseGoogleBooks([]byte(`not json`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestParseOpenBD_NormalizesDate(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("pubdate YYYYMMDD becomes YYYY-MM-DD", prop.ForAll(
		func(title string, year, month, day int) bool {
			pubdate := fmt.Sprintf("%04d%02d%02d", year, month, day)
			want := fmt.Sprintf("%04d-%02d-%02d", year, month, day)
			info, err := parseOpenBD(openBDJSON(title, "", "", pubdate))
			return err == nil && info.Title == title && info.PublishedDate == want
		},
		gen.Identifier(),
		gen.IntRange(1900, 2100),
		gen.IntRange(1, 12),
		gen.IntRange(1, 28),
	))
	properties.TestingRun(t)
}

func TestParseOpenBD(t *testing.T) {
	t.Run("splits authors", func(t *testing.T) {
		info, err := parseOpenBD(openBDJSON("リーダブルコード", "Dustin Boswell , Trevor Foucher,", "オライリー・ジャパン", "2012-06"))
		require.NoError(t, err)
		assert.Equal(t, []string{"Dustin Boswell", "Trevor Foucher"}, info.Authors)
		assert.Equal(t, "2012-06", info.PublishedDate)
		assert.Equal(t, "オライリー・ジャパン", info.Publisher)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := parseOpenBD([]byte(`[null]`))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("missing title", func(t *testing.T) {
		_, err := parseOpenBD(openBDJSON("", "Anon", "", ""))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestGoogleBooks_Lookup(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/volumes", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		w.Write(googleBooksJSON("Dune", "Frank Herbert", "Chilton", "1965-08-01"))
	}))
	defer srv.Close()

	info, err := NewGoogleBooks(srv.URL+"/", nil).Lookup(context.Background(), "9780306406157")
	require.NoError(t, err)
	assert.Equal(t, "isbn:9780306406157", gotQuery)
	assert.Equal(t, "Dune", info.Title)
	assert.Equal(t, "http://books.example/cover.jpg", info.ThumbnailURL)
}

func TestOpenBD_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get", r.URL.Path)
		assert.Equal(t, "9784873115658", r.URL.Query().Get("isbn"))
		w.Write(openBDJSON("リーダブルコード", "Dustin Boswell", "", "20120623"))
	}))
	defer srv.Close()

	info, err := NewOpenBD(srv.URL, nil).Lookup(context.Background(), "9784873115658")
	require.NoError(t, err)
	assert.Equal(t, "2012-06-23", info.PublishedDate)
}

func TestLookup_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewGoogleBooks(srv.URL, nil).Lookup(context.Background(), "9780306406157")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

type sourceFunc func(ctx context.Context, code string) (*Info, error)

func (f sourceFunc) Lookup(ctx context.Context, code string) (*Info, error) { return f(ctx, code) }

func TestChain_Lookup(t *testing.T) {
	failing := sourceFunc(func(context.Context, string) (*Info, error) {
		return nil, errors.New("connection refused")
	})
	missing := sourceFunc(func(context.Context, string) (*Info, error) { return nil, ErrNotFound })
	var calls int
	found := sourceFunc(func(_ context.Context, code string) (*Info, error) {
		calls++
		return &Info{Title: "Book " + code}, nil
	})

	t.Run("first answer wins", func(t *testing.T) {
		info, err := NewChain(nil, failing, missing, found, found).Lookup(context.Background(), "123")
		require.NoError(t, err)
		assert.Equal(t, "Book 123", info.Title)
		assert.Equal(t, 1, calls)
	})

	t.Run("all fail", func(t *testing.T) {
		_, err := NewChain(nil, failing, missing).Lookup(context.Background(), "123")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("no sources", func(t *testing.T) {
		_, err := NewChain(nil).Lookup(context.Background(), "123")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		canceled := sourceFunc(func(ctx context.Context, _ string) (*Info, error) { return nil, ctx.Err() })
		_, err := NewChain(nil, canceled, found).Lookup(ctx, "123")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCompactDate(t *testing.T) {
	assert.Equal(t, "2012-06-23", compactDate("20120623"))
	assert.Equal(t, "2012-06", compactDate("2012-06"))
	assert.Equal(t, "2012063a", compactDate("2012063a"))
	assert.Equal(t, "", compactDate(""))
}
