package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize(t *testing.T) {
	assert.Equal(t, "work/meetings", Canonicalize("/work/meetings/"))
	assert.Equal(t, "work/meetings", Canonicalize("work//meetings"))
	assert.Equal(t, "a/b/c", Canonicalize(" a / b / c "))
	assert.Equal(t, "", Canonicalize("///"))
	assert.Equal(t, "", Canonicalize(""))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("work"))
	assert.NoError(t, Validate("work/meetings/2025"))
	assert.Error(t, Validate(""))
	assert.Error(t, Validate("/work"))
	assert.Error(t, Validate("work/"))
	assert.Error(t, Validate("work//meetings"))
}

func TestParent(t *testing.T) {
	p, ok := Parent("work/meetings/standup")
	assert.True(t, ok)
	assert.Equal(t, "work/meetings", p)

	p, ok = Parent("work")
	assert.False(t, ok)
	assert.Equal(t, "", p)
}

func TestIsAncestor(t *testing.T) {
	assert.True(t, IsAncestor("work", "work"))
	assert.True(t, IsAncestor("work", "work/meetings"))
	assert.True(t, IsAncestor("work", "work/meetings/standup"))
	// Sibling prefixes must not match.
	assert.False(t, IsAncestor("work", "workshop"))
	assert.False(t, IsAncestor("a", "ab"))
	assert.False(t, IsAncestor("work/meetings", "work"))
}

func TestChildren(t *testing.T) {
	known := []string{"work", "work/meetings", "work/meetings/standup", "work/notes", "workshop", "home"}
	assert.ElementsMatch(t, []string{"work/meetings", "work/notes"}, Children("work", known))
	assert.ElementsMatch(t, []string{"work/meetings/standup"}, Children("work/meetings", known))
	assert.Empty(t, Children("home", known))
}

func TestDescendants(t *testing.T) {
	known := []string{"work", "work/meetings", "work/meetings/standup", "workshop"}
	assert.ElementsMatch(t,
		[]string{"work/meetings", "work/meetings/standup"},
		Descendants("work", known))
}

func TestDepth(t *testing.T) {
	assert.Equal(t, 0, Depth(""))
	assert.Equal(t, 1, Depth("work"))
	assert.Equal(t, 3, Depth("a/b/c"))
}
