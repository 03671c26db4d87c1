package data

import (
	"maps"
	"slices"

	"github.com/kayteedberserker/feedsync/internal/models"
)

// Collection is the displayed, de-duplicated sequence of entities.
// It is always rebuilt from pages, never edited in place.
type Collection []models.Entity

// IDs returns the ids in display order.
func (c Collection) IDs() []string {
	ids := make([]string, len(c))
	for i, e := range c {
		ids[i] = e.ID()
	}
	return ids
}

// Find returns the entity with id, if present.
func (c Collection) Find(id string) (models.Entity, bool) {
	for _, e := range c {
		if e.ID() == id {
			return e, true
		}
	}
	return nil, false
}

// orderedSet keeps the first-seen position of each id while letting later
// sightings replace the value.
type orderedSet struct {
	index map[string]int
	items Collection
}

func newOrderedSet(capacity int) *orderedSet {
	return &orderedSet{
		index: make(map[string]int, capacity),
		items: make(Collection, 0, capacity),
	}
}

// put inserts e, reporting false when e has no usable id.
func (s *orderedSet) put(e models.Entity) bool {
	if !e.Valid() {
		return false
	}
	id := e.ID()
	if pos, ok := s.index[id]; ok {
		s.items[pos] = e
		return true
	}
	s.index[id] = len(s.items)
	s.items = append(s.items, e)
	return true
}

// AppendPage merges page after existing. Ids already present keep their
// position and take the newer value. Entities without an id are dropped and
// counted in rejected. An empty page returns existing unchanged.
func AppendPage(existing Collection, page []models.Entity) (merged Collection, rejected int) {
	if len(page) == 0 {
		return existing, 0
	}
	s := newOrderedSet(len(existing) + len(page))
	for _, e := range existing {
		if !s.put(e) {
			rejected++
		}
	}
	for _, e := range page {
		if !s.put(e) {
			rejected++
		}
	}
	return s.items, rejected
}

// Replace seeds a new collection from page alone. This is the refresh path.
func Replace(page []models.Entity) (Collection, int) {
	return AppendPage(nil, page)
}

// Collect folds pages in ascending page order.
func Collect(pages map[int][]models.Entity) (Collection, int) {
	var (
		out      Collection
		rejected int
	)
	for _, idx := range slices.Sorted(maps.Keys(pages)) {
		var n int
		out, n = AppendPage(out, pages[idx])
		rejected += n
	}
	return out, rejected
}

// HasMore reports whether another page may exist after page.
//
// This is a heuristic: a page shorter than pageSize means the end was
// reached, while an exactly-full page only means more MAY exist. A source
// that knows (Page.HasNext) should be preferred; see PageHasMore.
func HasMore(page []models.Entity, pageSize int) bool {
	return pageSize > 0 && len(page) == pageSize
}

// PageHasMore prefers the explicit hasNextPage signal and falls back to
// the page-size heuristic. An empty page always ends pagination.
func PageHasMore(p models.Page, pageSize int) bool {
	if len(p.Items) == 0 {
		return false
	}
	if p.HasNext != nil {
		return *p.HasNext
	}
	return HasMore(p.Items, pageSize)
}
