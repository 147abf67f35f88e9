package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceSet_ClassifyDeduplicatesCaseInsensitively(t *testing.T) {
	existing := map[string]uuid.UUID{"Marketing": uuid.New()}
	set := newReferenceSet(existing)

	set.classify("marketing")
	set.classify("MARKETING")
	set.classify("Sales")
	set.classify("sales")

	assert.Equal(t, []string{"marketing"}, set.found)
	assert.Equal(t, []string{"Sales"}, set.toCreate)
}

func TestReferenceSet_FirstSeenCasingWins(t *testing.T) {
	set := newReferenceSet(nil)

	set.classify("Growth Loops")
	set.classify("growth loops")

	assert.Equal(t, []string{"Growth Loops"}, set.toCreate)
}

func TestReferenceSet_ChildKeysScopedByParent(t *testing.T) {
	set := newReferenceSet(nil)

	set.classifyChild("Strategy", "Planning")
	set.classifyChild("Finance", "Planning")

	// Same child name under different parents is two entities
	assert.Equal(t, []string{"Planning", "Planning"}, set.toCreate)
}

func TestCompositeKey_NoBoundaryCollision(t *testing.T) {
	assert.NotEqual(t, compositeKey("a", "bc"), compositeKey("ab", "c"))
}

func TestReferenceSet_AddThenLookup(t *testing.T) {
	set := newReferenceSet(nil)
	id := uuid.New()

	_, ok := set.lookup("Operations")
	require.False(t, ok)

	set.add("Operations", id)

	got, ok := set.lookup("OPERATIONS")
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestReferenceSet_AddChildThenLookupChild(t *testing.T) {
	set := newReferenceSet(nil)
	id := uuid.New()

	set.addChild("Strategy", "Planning", id)

	got, ok := set.lookupChild("strategy", "PLANNING")
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = set.lookupChild("Finance", "Planning")
	assert.False(t, ok)
}
