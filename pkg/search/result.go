package search

import (
	"bytes"
	"fmt"
	"strconv"
)

// Result is a single search hit. Values are never modified after decoding.
type Result struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
}

// Page is one decoded page of search results.
type Page struct {
	// Total is the number of hits across all pages, 0 when not reported.
	Total int

	// CurrentPage is the page number the API says it served.
	CurrentPage int

	// LastPage is the highest page number available for the query, 0 when
	// not reported. Only the first page of a run needs it.
	LastPage int

	// Data holds the hits of this page in API order.
	Data []Result
}

// Remaining returns the number of pages after CurrentPage.
func (p *Page) Remaining() int {
	if p.LastPage <= p.CurrentPage {
		return 0
	}
	return p.LastPage - p.CurrentPage
}

// wirePage mirrors the JSON body; pointers detect missing fields.
type wirePage struct {
	Total       *flexInt `json:"total"`
	CurrentPage *flexInt `json:"current_page"`
	LastPage    *flexInt `json:"last_page"`
	Data        []Result `json:"data"`
}

// toPage converts the wire form. A missing current_page falls back to
// the requested page; missing total and last_page stay 0.
func (w *wirePage) toPage(requested int) *Page {
	page := &Page{CurrentPage: requested, Data: w.Data}
	if w.CurrentPage != nil {
		page.CurrentPage = int(*w.CurrentPage)
	}
	if w.Total != nil {
		page.Total = int(*w.Total)
	}
	if w.LastPage != nil {
		page.LastPage = int(*w.LastPage)
	}
	if page.Data == nil {
		page.Data = []Result{}
	}
	return page
}

// HasBounds reports whether the API told how many pages the query has.
func (p *Page) HasBounds() bool {
	return p.LastPage >= 1
}

// flexInt accepts both 12 and "12"; the API is not consistent about it.
type flexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 {
		return fmt.Errorf("empty integer value")
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("parse integer %q: %w", b, err)
	}
	*f = flexInt(v)
	return nil
}
