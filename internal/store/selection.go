package store

import "sort"

// Selection is kept across page loads. Ids are only dropped when the stub
// is deleted through the store or the selection is cleared.

// Select adds id to the selection
func (s *Store) Select(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.selected[id] = struct{}{}
	s.mu.Unlock()
	s.changed()
}

// Deselect removes id from the selection
func (s *Store) Deselect(id string) {
	s.mu.Lock()
	delete(s.selected, id)
	s.mu.Unlock()
	s.changed()
}

// ClearSelection empties the selection
func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.selected = make(map[string]struct{})
	s.mu.Unlock()
	s.changed()
}

// SelectAllVisible adds every stub on the current page to the selection
func (s *Store) SelectAllVisible() {
	s.mu.Lock()
	for _, st := range s.content {
		s.selected[st.ID.String()] = struct{}{}
	}
	s.mu.Unlock()
	s.changed()
}

// IsSelected reports whether id is selected
func (s *Store) IsSelected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.selected[id]
	return ok
}

// Selected returns the selected ids in sorted order
func (s *Store) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AllVisibleSelected reports whether every stub on the current page is
// selected. An empty page yields false.
func (s *Store) AllVisibleSelected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allVisibleSelectedLocked()
}

func (s *Store) allVisibleSelectedLocked() bool {
	if len(s.content) == 0 {
		return false
	}
	for _, st := range s.content {
		if _, ok := s.selected[st.ID.String()]; !ok {
			return false
		}
	}
	return true
}
