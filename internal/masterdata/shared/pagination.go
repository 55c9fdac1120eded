package shared

// ListFilters represents standard list page filters
type ListFilters struct {
	Page    int
	Limit   int
	Search  string
	SortBy  string
	SortDir string

	IsActive *bool
	Type     string
}

// Offset returns the row offset for the requested page.
func (f ListFilters) Offset() int {
	if f.Page < DefaultPage || f.Limit <= 0 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}
