package models

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// NewPagination derives the page count from total.
func NewPagination(page, pageSize, total int) *Pagination {
	p := &Pagination{Page: page, PageSize: pageSize, TotalCount: total}
	if pageSize > 0 {
		p.TotalPages = (total + pageSize - 1) / pageSize
	}
	return p
}
