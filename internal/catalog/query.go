// Package catalog holds the rules for browsing and retiring books on the shelf.
package catalog

import "strings"

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Query selects one page of books. An empty Keyword matches every book.
type Query struct {
	Keyword string
	Limit   int
	Offset  int
}

// NewQuery builds a query from optional request values. Out of range limits
// fall back to DefaultLimit and negative offsets to zero.
func NewQuery(keyword string, limit, offset *int) Query {
	q := Query{Keyword: strings.TrimSpace(keyword), Limit: DefaultLimit}
	if limit != nil && *limit > 0 && *limit <= MaxLimit {
		q.Limit = *limit
	}
	if offset != nil && *offset > 0 {
		q.Offset = *offset
	}
	return q
}

// LikePattern returns the keyword as a LIKE pattern matching it anywhere,
// with the wildcard characters in the keyword escaped by '\'.
func (q Query) LikePattern() string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q.Keyword) + "%"
}
