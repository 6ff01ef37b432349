package state

import "fmt"

// Versions returns a copy of the versions sub-state.
func (s *Store) Versions() VersionsView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return VersionsView{
		List:    append([]Version(nil), s.versions.list...),
		Changed: s.versions.changed,
	}
}

// AddVersion appends v. A name that is already present is rejected and the
// collection is left unchanged. Adding is an unsaved edit and marks the
// collection changed.
func (s *Store) AddVersion(v Version) error {
	if v.Name == "" {
		return ErrEmptyVersionName
	}
	var err error
	s.mutate(TopicVersions, func() bool {
		if s.indexOf(v.Name) >= 0 {
			err = fmt.Errorf("%w: %s", ErrDuplicateVersion, v.Name)
			return false
		}
		s.versions.list = append(s.versions.list, v)
		s.versions.changed = true
		return true
	})
	return err
}

// UpdateVersion applies fn to a copy of the entry named name and stores the
// result, marking the collection changed. The entry keeps its name and
// position whatever fn does. An unknown name is a no-op and returns false.
//
// fn runs without the store locked, so it may read the store. If another
// mutation lands while fn runs, fn is applied again to the fresh entry.
func (s *Store) UpdateVersion(name string, fn func(*Version)) bool {
	for {
		s.mu.RLock()
		i := s.indexOf(name)
		if i < 0 {
			s.mu.RUnlock()
			return false
		}
		v := s.versions.list[i]
		seq := s.seq
		s.mu.RUnlock()

		fn(&v)
		v.Name = name

		applied := false
		s.mutate(TopicVersions, func() bool {
			if s.seq != seq {
				return false
			}
			s.versions.list[i] = v
			s.versions.changed = true
			applied = true
			return true
		})
		if applied {
			return true
		}
	}
}

// SetVersionStrategy switches the named version to a weight or url-param
// strategy. The value not used by selection is reset.
func (s *Store) SetVersionStrategy(name string, selection Selection, weight uint16, urlParam string) bool {
	return s.UpdateVersion(name, func(v *Version) {
		v.Selection = selection
		switch selection {
		case SelectionWeight:
			v.Weight = weight
			v.URLParam = ""
		case SelectionURLParam:
			v.Weight = 0
			v.URLParam = urlParam
		}
	})
}

// ReplaceVersions supersedes the collection with a fresh server listing and
// clears the changed flag. A listing with repeated names is rejected.
func (s *Store) ReplaceVersions(list []Version) error {
	seen := make(map[string]bool, len(list))
	for _, v := range list {
		if seen[v.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateVersion, v.Name)
		}
		seen[v.Name] = true
	}
	s.mutate(TopicVersions, func() bool {
		s.versions.list = append(make([]Version, 0, len(list)), list...)
		s.versions.changed = false
		return true
	})
	return nil
}

// DeleteVersion removes the entry named name. Names are unique, so at most
// one entry goes. Returns false when nothing matched.
func (s *Store) DeleteVersion(name string) bool {
	found := false
	s.mutate(TopicVersions, func() bool {
		i := s.indexOf(name)
		if i < 0 {
			return false
		}
		s.versions.list = append(s.versions.list[:i:i], s.versions.list[i+1:]...)
		found = true
		return true
	})
	return found
}

// ClearVersions empties the collection. The changed flag is a separate
// signal and is not touched.
func (s *Store) ClearVersions() {
	s.mutate(TopicVersions, func() bool {
		s.versions.list = nil
		return true
	})
}

// MarkVersionsSaved clears the changed flag after a successful save.
func (s *Store) MarkVersionsSaved() {
	s.mutate(TopicVersions, func() bool {
		if !s.versions.changed {
			return false
		}
		s.versions.changed = false
		return true
	})
}

// indexOf must be called with s.mu held.
func (s *Store) indexOf(name string) int {
	for i, v := range s.versions.list {
		if v.Name == name {
			return i
		}
	}
	return -1
}
