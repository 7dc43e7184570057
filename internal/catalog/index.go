package catalog

import "regcal/internal/model"

// Key identifies a course section within one offering period.
type Key struct {
	Section        string
	OfferingPeriod string
}

// Index is an immutable lookup table over a catalog snapshot.
type Index struct {
	sections   map[Key]model.CourseSection
	size       int
	duplicates int
}

// NewIndex builds an Index in one pass. Keys compare by exact string
// equality. When two records share a key the later one wins.
func NewIndex(sections []model.CourseSection) *Index {
	idx := &Index{
		sections: make(map[Key]model.CourseSection, len(sections)),
		size:     len(sections),
	}
	for _, s := range sections {
		k := Key{Section: s.Section, OfferingPeriod: s.OfferingPeriod}
		if _, dup := idx.sections[k]; dup {
			idx.duplicates++
		}
		idx.sections[k] = s
	}
	return idx
}

// Lookup returns the section registered under (section, offeringPeriod).
func (i *Index) Lookup(section, offeringPeriod string) (model.CourseSection, bool) {
	if i == nil {
		return model.CourseSection{}, false
	}
	s, ok := i.sections[Key{Section: section, OfferingPeriod: offeringPeriod}]
	return s, ok
}

// Len is the number of distinct keys.
func (i *Index) Len() int { return len(i.sections) }

// Records is the number of records the index was built from.
func (i *Index) Records() int { return i.size }

// Duplicates is the number of records that replaced an earlier record with the same key.
func (i *Index) Duplicates() int { return i.duplicates }
