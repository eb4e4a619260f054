// Package testutil provides testing utilities for the DarkSearch client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// Hit is one search result as served by MockSearch.
type Hit struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
}

// MockSearch is a configurable mock of the search API for testing.
type MockSearch struct {
	server *httptest.Server
	mu     sync.RWMutex

	pages  [][]Hit
	faults map[int][]int
	delay  time.Duration

	// Tracking
	requestCount int
	pageRequests map[int]int
	lastQuery    string
}

// NewMockSearch creates a new mock search server with no pages.
func NewMockSearch() *MockSearch {
	mock := &MockSearch{
		faults:       make(map[int][]int),
		pageRequests: make(map[int]int),
	}
	mock.server = httptest.NewServer(mock)
	return mock
}

// URL returns the API root to configure clients with.
func (m *MockSearch) URL() string {
	return m.server.URL + "/api/"
}

// Close shuts down the mock server.
func (m *MockSearch) Close() {
	m.server.Close()
}

// SetPages configures the served pages; pages[0] is page 1.
func (m *MockSearch) SetPages(pages ...[]Hit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = pages
}

// SetPageCount configures n pages of perPage generated hits each.
func (m *MockSearch) SetPageCount(n, perPage int) {
	pages := make([][]Hit, n)
	for i := range pages {
		pages[i] = GenerateHits(i+1, perPage)
	}
	m.SetPages(pages...)
}

// FailPage makes the next requests for page answer with the given
// statuses, in order, before the page is served normally.
func (m *MockSearch) FailPage(page int, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[page] = append(m.faults[page], statuses...)
}

// SetDelay delays every response.
func (m *MockSearch) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// GetRequestCount returns the number of search requests served.
func (m *MockSearch) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// RequestsFor returns how often page was requested.
func (m *MockSearch) RequestsFor(page int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pageRequests[page]
}

// LastQuery returns the query string of the most recent request.
func (m *MockSearch) LastQuery() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

// TotalHits returns the number of hits over all configured pages.
func (m *MockSearch) TotalHits() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.pages {
		n += len(p)
	}
	return n
}

// ServeHTTP implements http.Handler. It also serves requests forwarded
// by a Relay, whose URLs are absolute.
func (m *MockSearch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/search" {
		http.NotFound(w, r)
		return
	}

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		http.Error(w, `{"error": "invalid page"}`, http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.requestCount++
	m.pageRequests[page]++
	m.lastQuery = r.URL.Query().Get("query")
	delay := m.delay
	status := 0
	if queue := m.faults[page]; len(queue) > 0 {
		status = queue[0]
		m.faults[page] = queue[1:]
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if status != 0 {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error": %q}`, http.StatusText(status))
		return
	}

	m.mu.RLock()
	body := m.pageBody(page)
	m.mu.RUnlock()

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

type pageBody struct {
	Total       int   `json:"total"`
	CurrentPage int   `json:"current_page"`
	LastPage    int   `json:"last_page"`
	Data        []Hit `json:"data"`
}

// pageBody must be called with m.mu held.
func (m *MockSearch) pageBody(page int) pageBody {
	total := 0
	for _, p := range m.pages {
		total += len(p)
	}
	lastPage := len(m.pages)
	if lastPage == 0 {
		lastPage = 1
	}

	data := []Hit{}
	if page <= len(m.pages) {
		data = m.pages[page-1]
	}

	return pageBody{
		Total:       total,
		CurrentPage: page,
		LastPage:    lastPage,
		Data:        data,
	}
}

// GenerateHits returns n distinct hits for page.
func GenerateHits(page, n int) []Hit {
	hits := make([]Hit, n)
	for i := range hits {
		hits[i] = Hit{
			Title:       fmt.Sprintf("Result %d-%d", page, i),
			Link:        fmt.Sprintf("http://example%d%d.onion", page, i),
			Description: fmt.Sprintf("Description of result %d on page %d", i, page),
		}
	}
	return hits
}
