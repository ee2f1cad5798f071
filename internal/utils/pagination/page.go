package pagination

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Normalize clamps a 1-based page number and a page size.
func Normalize(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	return page, ClampLimit(limit)
}

// ClampLimit maps non-positive sizes to DefaultLimit and caps at MaxLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Offset returns the row offset for a normalized page.
func Offset(page, limit int) int {
	return (page - 1) * limit
}

// TotalPages rounds up; zero rows is zero pages.
func TotalPages(total int64, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
