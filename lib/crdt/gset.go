// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package crdt

import (
	"cmp"
	"slices"
)

// GSet is a grow-only set. The zero value is empty and ready to use.
type GSet[T cmp.Ordered] struct {
	items map[T]struct{}
}

// NewGSet returns a set holding the given elements.
func NewGSet[T cmp.Ordered](elements ...T) GSet[T] {
	var set GSet[T]
	for _, element := range elements {
		set.Add(element)
	}
	return set
}

// Add inserts element. It reports whether the element was new.
func (s *GSet[T]) Add(element T) bool {
	if s.items == nil {
		s.items = make(map[T]struct{})
	}
	if _, exists := s.items[element]; exists {
		return false
	}
	s.items[element] = struct{}{}
	return true
}

// Contains reports membership.
func (s *GSet[T]) Contains(element T) bool {
	_, exists := s.items[element]
	return exists
}

// Len returns the number of elements.
func (s *GSet[T]) Len() int { return len(s.items) }

// Elements returns the members in ascending order.
func (s *GSet[T]) Elements() []T {
	out := make([]T, 0, len(s.items))
	for element := range s.items {
		out = append(out, element)
	}
	slices.Sort(out)
	return out
}

// Merge adds every element of other. It reports whether s grew.
func (s *GSet[T]) Merge(other GSet[T]) bool {
	grew := false
	for element := range other.items {
		if s.Add(element) {
			grew = true
		}
	}
	return grew
}

// Clone returns an independent copy.
func (s *GSet[T]) Clone() GSet[T] {
	var out GSet[T]
	out.Merge(*s)
	return out
}
