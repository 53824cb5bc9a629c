// Package search filters club and event lists in memory. Nothing here
// touches the store; callers pass what they already loaded.
package search

import (
	"strings"

	"github.com/intermernet/tabyslink/internal/database"
)

// All is the selector value that disables category or status filtering.
const All = "all"

func matchesText(query string, fields ...string) bool {
	if query == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

func selectorOff(selector string) bool {
	return selector == "" || strings.EqualFold(selector, All)
}

// Clubs returns the clubs whose name or description contains query
// (case-insensitive, untrimmed) and whose category equals category, ignoring case.
// An empty or "all" category keeps every category. The input order is kept.
func Clubs(clubs []*database.Club, query, category string) []*database.Club {
	query = strings.ToLower(query)
	category = strings.TrimSpace(category)

	out := make([]*database.Club, 0, len(clubs))
	for _, c := range clubs {
		if !selectorOff(category) && !strings.EqualFold(c.Category, category) {
			continue
		}
		if !matchesText(query, c.Name, c.Description.String) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Events returns the events whose title or description contains query
// (case-insensitive) and whose status is exactly status. An empty or "all"
// status keeps every status.
func Events(events []*database.Event, query, status string) []*database.Event {
	query = strings.ToLower(query)
	status = strings.TrimSpace(status)

	out := make([]*database.Event, 0, len(events))
	for _, e := range events {
		if !selectorOff(status) && e.Status != status {
			continue
		}
		if !matchesText(query, e.Title, e.Description.String) {
			continue
		}
		out = append(out, e)
	}
	return out
}
