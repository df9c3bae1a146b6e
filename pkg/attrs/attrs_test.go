package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractString(t *testing.T) {
	attrList := []any{"couple_id", "abc", "count", 3, "reason", "conflict"}

	assert.Equal(t, "abc", ExtractString(attrList, "couple_id"))
	assert.Equal(t, "conflict", ExtractString(attrList, "reason"))
	assert.Empty(t, ExtractString(attrList, "count"), "non-string values are skipped")
	assert.Empty(t, ExtractString(attrList, "missing"))
	assert.Empty(t, ExtractString([]any{"dangling"}, "dangling"), "odd-length lists have no value slot")
}
