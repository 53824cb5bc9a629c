package search

import "strings"

// Category is one entry of the fixed club category table.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

var categories = []Category{
	{ID: All, Name: "All categories", Icon: "🎯", Color: "#8B5DA5"},
	{ID: "technology", Name: "Technology", Icon: "💻", Color: "#3B82F6"},
	{ID: "science", Name: "Science", Icon: "🔬", Color: "#10B981"},
	{ID: "arts", Name: "Arts", Icon: "🎨", Color: "#F59E0B"},
	{ID: "sports", Name: "Sports", Icon: "⚽", Color: "#EF4444"},
	{ID: "education", Name: "Education", Icon: "📚", Color: "#8B5CF6"},
	{ID: "social", Name: "Social", Icon: "🤝", Color: "#06B6D4"},
	{ID: "environment", Name: "Environment", Icon: "🌱", Color: "#22C55E"},
}

// Categories returns a copy of the category table, "all" first.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ValidClubCategory reports whether id can be assigned to a club. The "all"
// selector cannot.
func ValidClubCategory(id string) bool {
	if strings.EqualFold(id, All) {
		return false
	}
	for _, c := range categories {
		if strings.EqualFold(c.ID, id) {
			return true
		}
	}
	return false
}
