package bookinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// DefaultGoogleBooksURL is the public Google Books API.
const DefaultGoogleBooksURL = "https://www.googleapis.com/books/v1"

// GoogleBooks is a Source backed by the Google Books volumes search.
type GoogleBooks struct {
	fetcher
}

// NewGoogleBooks creates a source for the API at baseURL. A nil client means
// http.DefaultClient.
func NewGoogleBooks(baseURL string, client *http.Client) *GoogleBooks {
	return &GoogleBooks{newFetcher(baseURL, client)}
}

// Lookup implements Source.
func (g *GoogleBooks) Lookup(ctx context.Context, code string) (*Info, error) {
	body, err := g.get(ctx, "/volumes?q="+url.QueryEscape("isbn:"+code))
	if err != nil {
		return nil, fmt.Errorf("google books: %w", err)
	}
	return parseGoogleBooks(body)
}

func parseGoogleBooks(body []byte) (*Info, error) {
	var resp struct {
		TotalItems int `json:"totalItems"`
		Items      []struct {
			VolumeInfo struct {
				Title         string   `json:"title"`
				Authors       []string `json:"authors"`
				Publisher     string   `json:"publisher"`
				PublishedDate string   `json:"publishedDate"`
				ImageLinks    struct {
					Thumbnail string `json:"thumbnail"`
				} `json:"imageLinks"`
			} `json:"volumeInfo"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode google books response: %w", err)
	}
	if resp.TotalItems == 0 || len(resp.Items) == 0 {
		return nil, ErrNotFound
	}

	v := resp.Items[0].VolumeInfo
	return &Info{
		Title:         v.Title,
		Authors:       v.Authors,
		Publisher:     v.Publisher,
		PublishedDate: v.PublishedDate,
		ThumbnailURL:  v.ImageLinks.Thumbnail,
	}, nil
}
