package dbwrapper

import "github.com/goccy/go-json"

// Page is the result of a paginated query. It is immutable once built.
type Page struct {
	number int
	size   int
	data   []Row
	last   bool
}

// newPage trims rows fetched with a size+1 limit and decides whether this is
// the final page: a short read means nothing follows.
func newPage(number, size int, rows []Row) *Page {
	last := len(rows) <= size
	if !last {
		rows = rows[:size]
	}
	return &Page{number: number, size: size, data: rows, last: last}
}

// Number returns the zero-based page index.
func (p *Page) Number() int { return p.number }

// Size returns the requested page size.
func (p *Page) Size() int { return p.size }

// Len returns how many rows the page holds.
func (p *Page) Len() int { return len(p.data) }

// Data returns the rows of the page.
func (p *Page) Data() []Row { return append([]Row(nil), p.data...) }

// LastPage reports whether no rows follow this page.
func (p *Page) LastPage() bool { return p.last }

type pageJSON struct {
	Number   int   `json:"number"`
	Size     int   `json:"size"`
	Data     []Row `json:"data"`
	LastPage bool  `json:"last_page"`
}

// MarshalJSON encodes the page as {"number","size","data","last_page"}.
func (p *Page) MarshalJSON() ([]byte, error) {
	data := p.data
	if data == nil {
		data = []Row{}
	}
	return json.Marshal(pageJSON{Number: p.number, Size: p.size, Data: data, LastPage: p.last})
}
