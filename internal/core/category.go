package core

import "strings"

// FallbackIcon is shown for categories that are not in the registry.
const FallbackIcon = "🏷️"

// Category is a fixed, named, iconified classification tag.
type Category struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

var categories = []Category{
	{ID: "food", Label: "Food", Icon: "🍔"},
	{ID: "travel", Label: "Travel", Icon: "🚕"},
	{ID: "groceries", Label: "Groceries", Icon: "🛒"},
	{ID: "shopping", Label: "Shopping", Icon: "🧺"},
	{ID: "utilities", Label: "Utilities", Icon: "💡"},
	{ID: "entertainment", Label: "Fun", Icon: "🎉"},
	{ID: "health", Label: "Health", Icon: "💊"},
	{ID: "misc", Label: "Other", Icon: "📦"},
}

var categoryIndex = func() map[string]Category {
	idx := make(map[string]Category, len(categories))
	for _, c := range categories {
		idx[c.ID] = c
	}
	return idx
}()

// Categories returns the registry in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// LookupCategory reports the registry entry for id.
func LookupCategory(id string) (Category, bool) {
	c, ok := categoryIndex[strings.TrimSpace(id)]
	return c, ok
}

// IsKnownCategory reports whether id is a registry identifier.
func IsKnownCategory(id string) bool {
	_, ok := LookupCategory(id)
	return ok
}

// DisplayCategory never fails: unknown ids render with the fallback icon and
// the raw string as label.
func DisplayCategory(id string) Category {
	if c, ok := LookupCategory(id); ok {
		return c
	}
	return Category{ID: id, Label: id, Icon: FallbackIcon}
}
