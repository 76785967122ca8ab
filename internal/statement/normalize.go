package statement

import (
	"strings"

	"royalties/internal/textutil"
)

// NormalizeRow fills the normalized fields and resolves the right type.
func NormalizeRow(row *Row) {
	row.NormalizedTitle = textutil.NormalizeTitle(row.Title)
	row.NormalizedWriters = textutil.SplitNames(row.Writer)
	row.NormalizedPerformer = textutil.NormalizeName(row.Performer)
	row.NormalizedISRC = textutil.NormalizeISRC(row.ISRC)
	row.NormalizedISWC = textutil.NormalizeISWC(row.ISWC)
	row.NormalizedWorkCode = textutil.NormalizeCode(row.WorkCode)
	row.RightType = ResolveRightType(row.RightType, row.UsageType)
}

var rightTypeKeywords = []struct {
	rightType string
	keywords  []string
}{
	{RightSync, []string{"sync", "synchron", "film", "advert", "commercial"}},
	{RightPrint, []string{"print", "sheet", "lyric"}},
	{RightMechanical, []string{"mechanical", "download", "physical", "cd", "vinyl", "reproduction"}},
	{RightPerformance, []string{"performance", "perform", "stream", "broadcast", "radio", "tv", "television", "live", "public"}},
}

// ResolveRightType prefers an explicit right type, then infers one from the
// usage type, falling back to "other".
func ResolveRightType(explicit, usageType string) string {
	if rt := canonicalRightType(explicit); rt != "" {
		return rt
	}
	return InferRightType(usageType)
}

// InferRightType maps a free-text usage type to a right type.
func InferRightType(usageType string) string {
	normalized := textutil.NormalizeText(usageType)
	if normalized == "" {
		return RightOther
	}
	tokens := strings.Fields(normalized)
	for _, entry := range rightTypeKeywords {
		for _, keyword := range entry.keywords {
			for _, token := range tokens {
				if strings.HasPrefix(token, keyword) {
					return entry.rightType
				}
			}
		}
	}
	return RightOther
}

func canonicalRightType(value string) string {
	switch textutil.NormalizeText(value) {
	case "performance", "performing", "perf":
		return RightPerformance
	case "mechanical", "mech":
		return RightMechanical
	case "sync", "synchronization", "synchronisation":
		return RightSync
	case "print":
		return RightPrint
	case "other":
		return RightOther
	}
	return ""
}
