package domain

import "strings"

// NormalizeHumanName trims leading/trailing whitespace and collapses internal whitespace runs.
// Profiles apply it to the last name, first name and nickname on save.
func NormalizeHumanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
