package session

import (
	"strings"
)

// RedirectTarget returns the login page relative to currentPage, climbing one
// level per directory the current page is nested in.
func RedirectTarget(currentPage, loginPage string) string {
	loginPage = strings.TrimPrefix(loginPage, "/")
	if i := strings.IndexAny(currentPage, "?#"); i >= 0 {
		currentPage = currentPage[:i]
	}
	currentPage = strings.TrimPrefix(currentPage, "/")
	depth := strings.Count(currentPage, "/")
	return strings.Repeat("../", depth) + loginPage
}
