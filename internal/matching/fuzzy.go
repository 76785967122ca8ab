package matching

import (
	"fmt"

	"royalties/internal/catalog"
	"royalties/internal/statement"
	"royalties/internal/textutil"
)

// scoreFuzzy scans the snapshot and returns every work scoring at least the
// policy minimum. With writer data on both sides the score blends title and
// writer similarity by TitleWeight; otherwise it is the title score alone.
func scoreFuzzy(snap *catalog.Snapshot, row statement.Row, policy Policy) []Candidate {
	if row.NormalizedTitle == "" {
		return nil
	}
	var out []Candidate
	for _, work := range snap.Works() {
		title := bestTitleScore(row.NormalizedTitle, work)
		score := title
		evidence := []string{fmt.Sprintf("title %.2f", title)}
		if writer, ok := textutil.WriterSimilarity(row.NormalizedWriters, work.WriterNames()); ok {
			score = policy.TitleWeight*title + (1-policy.TitleWeight)*writer
			evidence = append(evidence, fmt.Sprintf("writer %.2f", writer))
		}
		if score < policy.Minimum {
			continue
		}
		out = append(out, Candidate{
			WorkID:   work.ID,
			Title:    work.Title,
			Score:    score,
			Method:   statement.MethodFuzzy,
			Evidence: evidence,
		})
	}
	return out
}

func bestTitleScore(normalizedTitle string, work *catalog.Work) float64 {
	best := textutil.TitleSimilarity(normalizedTitle, work.NormalizedTitle)
	for _, alt := range work.AlternateTitles {
		if best == 1 {
			break
		}
		if score := textutil.TitleSimilarity(normalizedTitle, textutil.NormalizeTitle(alt)); score > best {
			best = score
		}
	}
	return best
}
