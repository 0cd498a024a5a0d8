package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoriesOrder(t *testing.T) {
	ids := make([]string, 0)
	for _, c := range Categories() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"food", "travel", "groceries", "shopping", "utilities", "entertainment", "health", "misc"}, ids)
}

func TestCategoriesIsCopy(t *testing.T) {
	cs := Categories()
	cs[0].Label = "changed"
	assert.Equal(t, "Food", Categories()[0].Label)
}

func TestDisplayCategory(t *testing.T) {
	assert.Equal(t, Category{ID: "entertainment", Label: "Fun", Icon: "🎉"}, DisplayCategory("entertainment"))

	legacy := DisplayCategory("Groceries & Co")
	assert.Equal(t, FallbackIcon, legacy.Icon)
	assert.Equal(t, "Groceries & Co", legacy.Label)

	assert.True(t, IsKnownCategory("misc"))
	assert.False(t, IsKnownCategory("Misc"))
}
