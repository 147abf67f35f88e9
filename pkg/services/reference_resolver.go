package services

import (
	"strings"

	"github.com/google/uuid"
)

// referenceSet tracks one kind of reference entity during an import:
// which referenced names already exist, which need creating, and the
// name→id resolution map the commit phase uses after creation.
//
// Identity is case-insensitive name equality. Hierarchical kinds (a
// department under a category, a book under a book category) key on a
// composite of parent name and own name so equal names under different
// parents never collide. The first-seen casing of each name is preserved
// for display and for the eventual insert.
type referenceSet struct {
	ids      map[string]uuid.UUID
	found    []string
	toCreate []string
	seen     map[string]bool
}

// newReferenceSet builds a set from existing entities, keyed lower-cased.
func newReferenceSet(existing map[string]uuid.UUID) *referenceSet {
	ids := make(map[string]uuid.UUID, len(existing))
	for name, id := range existing {
		ids[strings.ToLower(name)] = id
	}
	return &referenceSet{
		ids:  ids,
		seen: make(map[string]bool),
	}
}

// compositeKey scopes a child name under its parent. The NUL separator
// cannot appear in a CSV cell, so "a"+"bc" and "ab"+"c" stay distinct.
func compositeKey(parent, name string) string {
	return strings.ToLower(parent) + "\x00" + strings.ToLower(name)
}

// classify records one referenced name as found or to-create, deduplicated.
func (s *referenceSet) classify(name string) {
	s.classifyKeyed(strings.ToLower(name), name)
}

// classifyChild records one parent-scoped referenced name.
func (s *referenceSet) classifyChild(parent, name string) {
	s.classifyKeyed(compositeKey(parent, name), name)
}

func (s *referenceSet) classifyKeyed(key, display string) {
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	if _, ok := s.ids[key]; ok {
		s.found = append(s.found, display)
	} else {
		s.toCreate = append(s.toCreate, display)
	}
}

// lookup resolves a top-level name to its id.
func (s *referenceSet) lookup(name string) (uuid.UUID, bool) {
	id, ok := s.ids[strings.ToLower(name)]
	return id, ok
}

// lookupChild resolves a parent-scoped name to its id.
func (s *referenceSet) lookupChild(parent, name string) (uuid.UUID, bool) {
	id, ok := s.ids[compositeKey(parent, name)]
	return id, ok
}

// add registers a newly created top-level entity so later lookups resolve.
func (s *referenceSet) add(name string, id uuid.UUID) {
	s.ids[strings.ToLower(name)] = id
}

// addChild registers a newly created parent-scoped entity.
func (s *referenceSet) addChild(parent, name string, id uuid.UUID) {
	s.ids[compositeKey(parent, name)] = id
}
