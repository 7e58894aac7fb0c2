// Package listing implements the client-side offering table: a free-text
// search over every visible column and fixed-size pagination.
package listing

import (
	"strings"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// DefaultPageSize is the page size of a fresh table.
const DefaultPageSize = 10

// Row is one offering as displayed.
type Row struct {
	ID           string `json:"id"`
	Issuer       string `json:"issuer"`
	Offering     string `json:"offering"`
	Size         string `json:"size"`
	InterestRate string `json:"interest_rate"`
	Price        string `json:"price"`
	Status       string `json:"status"`
	URL          string `json:"url"`

	blob string
}

// NewRow renders an offering and precomputes its search blob.
func NewRow(o domain.Offering) Row {
	r := Row{
		ID:           o.ID,
		Issuer:       o.Issuer,
		Offering:     o.Name,
		Size:         o.Size,
		InterestRate: o.InterestRate,
		Price:        o.Price,
		Status:       o.Status,
		URL:          o.URL,
	}
	r.blob = searchBlob(r)
	return r
}

// NewRows converts offerings preserving source order.
func NewRows(offerings []domain.Offering) []Row {
	rows := make([]Row, len(offerings))
	for i, o := range offerings {
		rows[i] = NewRow(o)
	}
	return rows
}

// SearchBlob is the lowercased concatenation of every visible column.
func (r Row) SearchBlob() string {
	if r.blob == "" {
		return searchBlob(r)
	}
	return r.blob
}

func searchBlob(r Row) string {
	return strings.ToLower(strings.Join([]string{
		r.Issuer, r.Offering, r.Size, r.InterestRate, r.Price, r.Status, r.URL,
	}, " "))
}

// Filter returns the rows whose search blob contains query, compared
// case-insensitively. Whitespace in query is significant; only the empty
// query returns rows unchanged.
func Filter(rows []Row, query string) []Row {
	if query == "" {
		return rows
	}
	q := strings.ToLower(query)
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if strings.Contains(r.SearchBlob(), q) {
			out = append(out, r)
		}
	}
	return out
}

// Paginate returns page pageIndex of rows: exactly min(pageSize, remaining)
// rows, or none when the page is past the end.
func Paginate(rows []Row, pageIndex, pageSize int) []Row {
	if pageSize <= 0 || pageIndex < 0 {
		return []Row{}
	}
	start := pageIndex * pageSize
	if start >= len(rows) {
		return []Row{}
	}
	end := min(start+pageSize, len(rows))
	return rows[start:end]
}

// PageCount is the number of pages needed for total rows.
func PageCount(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
