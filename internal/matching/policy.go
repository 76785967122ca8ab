package matching

import (
	"royalties/internal/config"
	"royalties/internal/statement"
)

// Policy holds the thresholds and limits the engine scores against.
type Policy struct {
	AutoMatch             float64
	Review                float64
	Minimum               float64
	MaxCandidates         int
	TitleWeight           float64
	SemanticTopK          int
	SemanticMinSimilarity float64
	RerankTopK            int
	// RerankPriorWeight is the fraction of a reranked score kept from the
	// score the candidate had before reranking.
	RerankPriorWeight float64
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{
		AutoMatch:             0.95,
		Review:                0.70,
		Minimum:               0.30,
		MaxCandidates:         5,
		TitleWeight:           0.6,
		SemanticTopK:          10,
		SemanticMinSimilarity: 0.5,
		RerankTopK:            5,
		RerankPriorWeight:     0.4,
	}
}

// PolicyFromConfig builds a policy from the matching config section. Zero
// values fall back to the defaults.
func PolicyFromConfig(cfg config.Matching) Policy {
	p := DefaultPolicy()
	if cfg.AutoMatchThreshold > 0 {
		p.AutoMatch = cfg.AutoMatchThreshold
	}
	if cfg.ReviewThreshold > 0 {
		p.Review = cfg.ReviewThreshold
	}
	if cfg.MinimumThreshold > 0 {
		p.Minimum = cfg.MinimumThreshold
	}
	if cfg.MaxCandidates > 0 {
		p.MaxCandidates = cfg.MaxCandidates
	}
	if cfg.TitleWeight > 0 {
		p.TitleWeight = cfg.TitleWeight
	}
	if cfg.SemanticTopK > 0 {
		p.SemanticTopK = cfg.SemanticTopK
	}
	if cfg.SemanticMinSimilarity > 0 {
		p.SemanticMinSimilarity = cfg.SemanticMinSimilarity
	}
	if cfg.RerankTopK > 0 {
		p.RerankTopK = cfg.RerankTopK
	}
	if cfg.RerankPriorWeight >= 0 && cfg.RerankPriorWeight <= 1 {
		p.RerankPriorWeight = cfg.RerankPriorWeight
	}
	return p
}

// StatusFor maps a non-exact score to a status. It is monotone in score.
func (p Policy) StatusFor(score float64) statement.MatchStatus {
	switch {
	case score >= p.AutoMatch:
		return statement.MatchFuzzyHigh
	case score >= p.Review:
		return statement.MatchFuzzyMedium
	case score >= p.Minimum:
		return statement.MatchFuzzyLow
	default:
		return statement.MatchNone
	}
}

// RecommendationFor maps a status to the suggested action.
func (p Policy) RecommendationFor(status statement.MatchStatus) Recommendation {
	switch status {
	case statement.MatchExact, statement.MatchFuzzyHigh, statement.MatchManual:
		return RecommendAutoMatch
	case statement.MatchFuzzyMedium, statement.MatchFuzzyLow:
		return RecommendReview
	default:
		return RecommendNoMatch
	}
}
