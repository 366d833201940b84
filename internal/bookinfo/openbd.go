package bookinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DefaultOpenBDURL is the public openBD API.
const DefaultOpenBDURL = "https://api.openbd.jp/v1"

// OpenBD is a Source backed by openBD, which covers Japanese publications.
type OpenBD struct {
	fetcher
}

// NewOpenBD creates a source for the API at baseURL. A nil client means
// http.DefaultClient.
func NewOpenBD(baseURL string, client *http.Client) *OpenBD {
	return &OpenBD{newFetcher(baseURL, client)}
}

// Lookup implements Source.
func (o *OpenBD) Lookup(ctx context.Context, code string) (*Info, error) {
	body, err := o.get(ctx, "/get?isbn="+url.QueryEscape(code))
	if err != nil {
		return nil, fmt.Errorf("openbd: %w", err)
	}
	return parseOpenBD(body)
}

// parseOpenBD reads the first record. Unknown codes come back as [null].
func parseOpenBD(body []byte) (*Info, error) {
	var resp []*struct {
		Summary *struct {
			Title     string `json:"title"`
			Author    string `json:"author"`
			Publisher string `json:"publisher"`
			Pubdate   string `json:"pubdate"`
			Cover     string `json:"cover"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode openbd response: %w", err)
	}
	if len(resp) == 0 || resp[0] == nil || resp[0].Summary == nil || resp[0].Summary.Title == "" {
		return nil, ErrNotFound
	}

	s := resp[0].Summary
	var authors []string
	for _, name := range strings.Split(s.Author, ",") {
		if name = strings.TrimSpace(name); name != "" {
			authors = append(authors, name)
		}
	}

	return &Info{
		Title:         s.Title,
		Authors:       authors,
		Publisher:     s.Publisher,
		PublishedDate: compactDate(s.Pubdate),
		ThumbnailURL:  s.Cover,
	}, nil
}

// compactDate turns YYYYMMDD into YYYY-MM-DD and leaves anything else alone.
func compactDate(s string) string {
	if len(s) != 8 {
		return s
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return s
		}
	}
	return s[:4] + "-" + s[4:6] + "-" + s[6:]
}
