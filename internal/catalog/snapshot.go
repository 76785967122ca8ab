package catalog

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Snapshot is an immutable, indexed view of one tenant's catalog.
type Snapshot struct {
	TenantID string
	LoadedAt time.Time

	works  []*Work
	byID   map[string]*Work
	byISWC map[string]*Work
	byISRC map[string][]*Work
	byCode map[string]*Work

	// integrity notes keyed by work id
	issues map[string][]string
}

// NewSnapshot normalizes and indexes works. Duplicate work ids are rejected.
// An ISWC claimed by more than one work is left out of the index so it can
// never auto-resolve; ISRCs may legitimately map to several works and are
// indexed as lists.
func NewSnapshot(tenantID string, works []Work, loadedAt time.Time, tolerance decimal.Decimal) (*Snapshot, error) {
	snap := &Snapshot{
		TenantID: tenantID,
		LoadedAt: loadedAt,
		works:    make([]*Work, 0, len(works)),
		byID:     make(map[string]*Work, len(works)),
		byISWC:   make(map[string]*Work, len(works)),
		byISRC:   make(map[string][]*Work),
		byCode:   make(map[string]*Work, len(works)),
		issues:   make(map[string][]string),
	}
	duplicateISWC := make(map[string]bool)
	duplicateCode := make(map[string]bool)

	for i := range works {
		work := works[i].Clone()
		work.Normalize()
		if work.ID == "" {
			return nil, fmt.Errorf("catalog %s: work at position %d has no id", tenantID, i)
		}
		if _, exists := snap.byID[work.ID]; exists {
			return nil, fmt.Errorf("catalog %s: duplicate work id %q", tenantID, work.ID)
		}
		w := &work
		snap.works = append(snap.works, w)
		snap.byID[w.ID] = w

		if w.ISWC != "" {
			if other, exists := snap.byISWC[w.ISWC]; exists || duplicateISWC[w.ISWC] {
				duplicateISWC[w.ISWC] = true
				if other != nil {
					snap.addIssue(other.ID, "iswc "+w.ISWC+" shared with "+w.ID)
				}
				snap.addIssue(w.ID, "iswc "+w.ISWC+" shared with another work")
				delete(snap.byISWC, w.ISWC)
			} else {
				snap.byISWC[w.ISWC] = w
			}
		}
		if w.Code != "" {
			if other, exists := snap.byCode[w.Code]; exists || duplicateCode[w.Code] {
				duplicateCode[w.Code] = true
				if other != nil {
					snap.addIssue(other.ID, "work code "+w.Code+" shared with "+w.ID)
				}
				snap.addIssue(w.ID, "work code "+w.Code+" shared with another work")
				delete(snap.byCode, w.Code)
			} else {
				snap.byCode[w.Code] = w
			}
		}
		seenISRC := make(map[string]bool, len(w.Recordings))
		for _, rec := range w.Recordings {
			if rec.ISRC == "" || seenISRC[rec.ISRC] {
				continue
			}
			seenISRC[rec.ISRC] = true
			snap.byISRC[rec.ISRC] = append(snap.byISRC[rec.ISRC], w)
		}
		snap.checkShares(w, tolerance)
	}
	return snap, nil
}

func (s *Snapshot) checkShares(w *Work, tolerance decimal.Decimal) {
	if len(w.Writers) == 0 && len(w.Publishers) == 0 {
		s.addIssue(w.ID, "no writers or publishers")
		return
	}
	rightTypes := map[string]struct{}{"": {}}
	for _, writer := range w.Writers {
		for rt := range writer.RightShares {
			rightTypes[rt] = struct{}{}
		}
	}
	for _, publisher := range w.Publishers {
		for rt := range publisher.RightShares {
			rightTypes[rt] = struct{}{}
		}
	}
	keys := make([]string, 0, len(rightTypes))
	for rt := range rightTypes {
		keys = append(keys, rt)
	}
	sort.Strings(keys)
	for _, rt := range keys {
		total := w.ShareTotal(rt)
		if total.Sub(hundred).Abs().GreaterThan(tolerance) {
			label := rt
			if label == "" {
				label = "default"
			}
			s.addIssue(w.ID, fmt.Sprintf("%s shares total %s%%", label, total.String()))
		}
	}
}

func (s *Snapshot) addIssue(workID, issue string) {
	s.issues[workID] = append(s.issues[workID], issue)
}

// Len returns the number of works.
func (s *Snapshot) Len() int { return len(s.works) }

// Works returns the works in load order. Callers must not modify them.
func (s *Snapshot) Works() []*Work { return s.works }

// WorkByID looks up a work by id.
func (s *Snapshot) WorkByID(id string) (*Work, bool) {
	w, ok := s.byID[id]
	return w, ok
}

// WorkByISWC looks up a work by normalized ISWC.
func (s *Snapshot) WorkByISWC(iswc string) (*Work, bool) {
	w, ok := s.byISWC[iswc]
	return w, ok
}

// WorksByISRC returns every work linked to the normalized ISRC.
func (s *Snapshot) WorksByISRC(isrc string) []*Work {
	return s.byISRC[isrc]
}

// WorkByCode looks up a work by normalized tenant work code.
func (s *Snapshot) WorkByCode(code string) (*Work, bool) {
	w, ok := s.byCode[code]
	return w, ok
}

// Issues returns integrity notes recorded for a work during indexing.
func (s *Snapshot) Issues(workID string) []string {
	return s.issues[workID]
}

// IssueCount returns the number of works with integrity notes.
func (s *Snapshot) IssueCount() int { return len(s.issues) }

// Expired reports whether the snapshot is older than ttl at now.
func (s *Snapshot) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(s.LoadedAt) >= ttl
}
