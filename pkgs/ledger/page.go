package ledger

import (
	"strings"
)

// DefaultPageSize is the number of entries shown per page.
const DefaultPageSize = 20

// TotalPages returns how many pages n entries span.
func TotalPages(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Page returns the 1-based page of entries. Out-of-range pages are empty.
func Page(entries []Record, size, page int) []Record {
	if size <= 0 || page < 1 {
		return []Record{}
	}
	start := (page - 1) * size
	if start >= len(entries) {
		return []Record{}
	}
	end := start + size
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end]
}

// PageRange returns the 1-based inclusive positions shown on page, or 0, 0
// when the page is empty.
func PageRange(total, size, page int) (start, end int) {
	if total <= 0 || size <= 0 || page < 1 {
		return 0, 0
	}
	start = (page-1)*size + 1
	if start > total {
		return 0, 0
	}
	end = page * size
	if end > total {
		end = total
	}
	return start, end
}

// Filter keeps the entries matching query (case-insensitive substring of
// title, description, source, contributor or its short form). With
// verifiedOnly, unverified entries are dropped. Order is preserved.
func Filter(entries []Record, query string, verifiedOnly bool) []Record {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		if verifiedOnly && !e.Verified {
			continue
		}
		if q != "" && !matches(e, q) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matches(e Record, q string) bool {
	fields := []string{
		e.Title,
		e.Description,
		e.Source,
		e.Contributor.Hex(),
		e.ContributorShort(),
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// PageOfHash finds the page holding the entry whose raw content hash field
// equals raw.
func PageOfHash(entries []Record, size int, raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || size <= 0 {
		return 0, false
	}
	for i, e := range entries {
		if e.RawContentHash == raw {
			return i/size + 1, true
		}
	}
	return 0, false
}
