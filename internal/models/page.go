package models

// Page is one page of stubs as returned by the admin API
type Page struct {
	Content       []*Stub `json:"content"`
	Number        int     `json:"number"`        // Zero-based page index
	Size          int     `json:"size"`          // Page capacity
	TotalElements int64   `json:"totalElements"` // Total matching stubs
}

// TotalPages derives the page count from the total and page size
func (p *Page) TotalPages() int {
	return TotalPages(p.TotalElements, p.Size)
}

// TotalPages returns ceil(total/size), or 0 when size is not positive
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
