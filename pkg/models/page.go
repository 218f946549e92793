package models

// Page is one page of query results, newest first.
type Page struct {
	Logs  []*Record `json:"logs"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Pages int64     `json:"pages"`
}

// PageCount returns ceil(total / limit).
func PageCount(total int64, limit int) int64 {
	if limit <= 0 {
		return 0
	}
	l := int64(limit)
	return (total + l - 1) / l
}
