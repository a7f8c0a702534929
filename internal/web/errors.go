package web

import "strings"

// GetErrorHint returns a helpful hint for common SQL errors.
// Returns empty string if no hint is available.
func GetErrorHint(err string) string {
	errLower := strings.ToLower(err)

	switch {
	case strings.Contains(errLower, "unknown table"):
		return "check the table name against GET /tables"
	case strings.Contains(errLower, "unknown column"):
		return "check the column name against GET /tables/{name}/schema"
	case strings.Contains(errLower, "parse error"):
		return "check SQL syntax against the grammar in section 6"
	case strings.Contains(errLower, "already exists"):
		return "a table with this name was already created"
	case strings.Contains(errLower, "reserved as an internal sentinel"):
		return "the maximum uint64 value is reserved and cannot be used as a primary key"
	case strings.Contains(errLower, "must not be null"):
		return "the primary key column cannot be null"
	default:
		return ""
	}
}
