package scraper

import (
	"fmt"
	"time"
)

// PageRange is an inclusive range of page numbers assigned to one worker.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of pages in the range.
func (r PageRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// String implements fmt.Stringer.
func (r PageRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Partition splits the pages after current up to and including last into
// at most n contiguous ranges of ceil((last-current)/n) pages each.
// Empty ranges are omitted, so fewer than n ranges are returned when there
// are fewer pages than workers.
func Partition(current, last, n int) []PageRange {
	remaining := last - current
	if remaining <= 0 || n <= 0 {
		return nil
	}

	per := pagesPerWorker(remaining, n)
	ranges := make([]PageRange, 0, n)
	start := current + 1
	for i := 0; i < n && start <= last; i++ {
		end := start + per - 1
		if end > last {
			end = last
		}
		ranges = append(ranges, PageRange{Start: start, End: end})
		start = end + 1
	}
	return ranges
}

func pagesPerWorker(remaining, n int) int {
	if remaining <= 0 || n <= 0 {
		return 0
	}
	return (remaining + n - 1) / n
}

// Plan describes how a run was split up after the first page.
type Plan struct {
	Query          string      `json:"query"`
	Total          int         `json:"total"`
	CurrentPage    int         `json:"current_page"`
	LastPage       int         `json:"last_page"`
	FirstPageItems int         `json:"first_page_items"`
	Proxies        int         `json:"proxies"`
	PagesPerWorker int         `json:"pages_per_worker"`
	Ranges         []PageRange `json:"ranges"`

	// EstimatedMinutes assumes every relay gets its own share of the quota.
	EstimatedMinutes int `json:"estimated_minutes"`
}

// Remaining returns the number of pages left for the workers.
func (p *Plan) Remaining() int {
	if p.LastPage <= p.CurrentPage {
		return 0
	}
	return p.LastPage - p.CurrentPage
}

// EstimatedDuration returns EstimatedMinutes as a duration.
func (p *Plan) EstimatedDuration() time.Duration {
	return time.Duration(p.EstimatedMinutes) * time.Minute
}

// estimateMinutes returns ceil(ceil(remaining/qpm)/max(1,proxies)).
func estimateMinutes(remaining, queriesPerMinute, proxies int) int {
	if remaining <= 0 || queriesPerMinute <= 0 {
		return 0
	}
	if proxies < 1 {
		proxies = 1
	}
	minutes := (remaining + queriesPerMinute - 1) / queriesPerMinute
	return (minutes + proxies - 1) / proxies
}
