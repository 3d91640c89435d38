package typeslot

// Call-site position learning
//
// A consumer that asks the same question of many types keeps one Site per
// question. The site remembers where the capability sat in the tables it has
// seen and feeds that back as the expected position, so the common case is a
// single compare. Like an inline cache it moves through
// empty -> monomorphic -> polymorphic -> megamorphic.

// SiteState represents the current state of a Site.
type SiteState uint8

const (
	SiteEmpty       SiteState = iota // nothing learned yet
	SiteMonomorphic                  // one table seen
	SitePolymorphic                  // 2..MaxSiteEntries tables seen
	SiteMegamorphic                  // too many tables, fall back to scanning
)

// MaxSiteEntries is the number of tables a polymorphic site remembers.
const MaxSiteEntries = 6

type siteEntry struct {
	table *Table
	pos   int
}

// Site learns expected positions for one capability id. A Site is not safe
// for concurrent use; keep one per goroutine or per call site.
type Site struct {
	ID      ID
	State   SiteState
	entries [MaxSiteEntries]siteEntry
	count   int

	Hits   uint64
	Misses uint64
}

// NewSite creates a site for id.
func NewSite(id ID) *Site {
	return &Site{ID: id}
}

// Find looks the site's id up on t using the learned position as the hint.
func (s *Site) Find(t Host) (Entry, bool) {
	table := TableOf(t)
	if table == nil {
		return Entry{}, false
	}

	hint, known := s.hint(table)
	i := table.Index(s.ID, hint)
	if known && i == hint {
		s.Hits++
	} else {
		s.Misses++
		if i >= 0 {
			s.update(table, i)
		}
	}
	if i < 0 {
		return Entry{}, false
	}
	return table.entries[i], true
}

func (s *Site) hint(table *Table) (int, bool) {
	switch s.State {
	case SiteMonomorphic, SitePolymorphic:
		for i := 0; i < s.count; i++ {
			if s.entries[i].table == table {
				return s.entries[i].pos, true
			}
		}
	}
	return 0, false
}

func (s *Site) update(table *Table, pos int) {
	switch s.State {
	case SiteEmpty:
		s.State = SiteMonomorphic
		s.entries[0] = siteEntry{table: table, pos: pos}
		s.count = 1

	case SiteMonomorphic, SitePolymorphic:
		for i := 0; i < s.count; i++ {
			if s.entries[i].table == table {
				s.entries[i].pos = pos
				return
			}
		}
		if s.count < MaxSiteEntries {
			s.entries[s.count] = siteEntry{table: table, pos: pos}
			s.count++
			s.State = SitePolymorphic
			return
		}
		s.State = SiteMegamorphic
		for i := range s.entries {
			s.entries[i] = siteEntry{}
		}
		s.count = 0

	case SiteMegamorphic:
	}
}

// HitRate returns the hint hit rate as a percentage (0-100).
func (s *Site) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) * 100 / float64(total)
}

// Reset forgets everything the site has learned.
func (s *Site) Reset() {
	s.State = SiteEmpty
	s.count = 0
	s.Hits = 0
	s.Misses = 0
	for i := range s.entries {
		s.entries[i] = siteEntry{}
	}
}
