package domain

import (
	"encoding/json"
	"sort"
)

// SceneSet is a set of scene ids.
// It serializes as a sorted JSON array so snapshots are stable.
type SceneSet map[string]struct{}

// NewSceneSet creates a set holding the given ids.
func NewSceneSet(ids ...string) SceneSet {
	s := make(SceneSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id and reports whether it was newly added.
func (s SceneSet) Add(id string) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Has reports whether id is in the set.
func (s SceneSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of ids.
func (s SceneSet) Len() int {
	return len(s)
}

// Sorted returns the ids in lexical order.
func (s SceneSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns an independent copy. A nil set clones to an empty one.
func (s SceneSet) Clone() SceneSet {
	c := make(SceneSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// MarshalJSON encodes the set as a sorted array.
func (s SceneSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of ids.
func (s *SceneSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewSceneSet(ids...)
	return nil
}
