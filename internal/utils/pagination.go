package utils

// Page describes one window of a paginated listing as returned to clients.
type Page struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// NormalizePage clamps raw query values.  A page below 1 becomes 1; a size
// below 1 becomes def; a size above max becomes max.
func NormalizePage(page, size, def, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if max < 1 {
		max = 1
	}
	if def < 1 || def > max {
		def = max
	}
	if size < 1 {
		size = def
	}
	if size > max {
		size = max
	}
	return page, size
}

// Offset returns the row offset of a normalized page.
func Offset(page, size int) int {
	if page < 1 || size < 1 {
		return 0
	}
	return (page - 1) * size
}

// NewPage computes the derived fields for a result set of total rows.
func NewPage(page, size int, total int64) Page {
	p := Page{Page: page, PageSize: size, Total: total}
	if size > 0 && total > 0 {
		p.TotalPages = int((total + int64(size) - 1) / int64(size))
	}
	p.HasPrev = page > 1
	p.HasNext = page < p.TotalPages
	return p
}
