package shared

// ListFilters carries the common listing parameters for masterdata CRUD.
type ListFilters struct {
	Search string
	Page   int
	Limit  int
}

// Offset computes the SQL offset for the filters.
func (f ListFilters) Offset() int {
	page := f.Page
	if page <= 0 {
		page = 1
	}
	return (page - 1) * f.PerPage()
}

// PerPage returns the effective page size.
func (f ListFilters) PerPage() int {
	if f.Limit <= 0 {
		return 20
	}
	return f.Limit
}
