package matching

import (
	"fmt"

	"royalties/internal/catalog"
	"royalties/internal/statement"
)

// matchExact resolves a row by identifier. An ISRC linked to more than one
// work never resolves; it yields a warning instead.
func matchExact(snap *catalog.Snapshot, row statement.Row) (Candidate, bool, []string) {
	var warnings []string
	if row.NormalizedISWC != "" {
		if work, ok := snap.WorkByISWC(row.NormalizedISWC); ok {
			return exactCandidate(work, statement.MethodISWC, "iswc "+row.NormalizedISWC), true, nil
		}
	}
	if row.NormalizedISRC != "" {
		works := snap.WorksByISRC(row.NormalizedISRC)
		switch len(works) {
		case 0:
		case 1:
			return exactCandidate(works[0], statement.MethodISRC, "isrc "+row.NormalizedISRC), true, nil
		default:
			warnings = append(warnings, fmt.Sprintf("ambiguous isrc %s links %d works", row.NormalizedISRC, len(works)))
		}
	}
	if row.NormalizedWorkCode != "" {
		if work, ok := snap.WorkByCode(row.NormalizedWorkCode); ok {
			return exactCandidate(work, statement.MethodWorkCode, "work code "+row.NormalizedWorkCode), true, warnings
		}
	}
	return Candidate{}, false, warnings
}

func exactCandidate(work *catalog.Work, method statement.MatchMethod, evidence string) Candidate {
	return Candidate{
		WorkID:   work.ID,
		Title:    work.Title,
		Score:    1,
		Method:   method,
		Evidence: []string{evidence},
	}
}
