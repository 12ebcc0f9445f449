package release

import "github.com/hbollon/go-edlib"

// MatchConfidence represents the confidence level of a title match.
type MatchConfidence int

const (
	ConfidenceNone   MatchConfidence = iota // Score < 0.70
	ConfidenceLow                           // Score >= 0.70
	ConfidenceMedium                        // Score >= 0.85
	ConfidenceHigh                          // Score >= 0.95
)

func (c MatchConfidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceLow:
		return "low"
	default:
		return "none"
	}
}

// MatchResult represents the result of a fuzzy title match.
type MatchResult struct {
	Title      string          // The matched candidate title
	Score      float64         // Jaro-Winkler similarity score (0.0-1.0)
	Confidence MatchConfidence // Confidence level based on score
}

func confidenceFor(score float64) MatchConfidence {
	switch {
	case score >= 0.95:
		return ConfidenceHigh
	case score >= 0.85:
		return ConfidenceMedium
	case score >= 0.70:
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}

// Match scores candidate against target using Jaro-Winkler similarity
// over their cleaned titles — the "correct-title match" scrapers apply
// before accepting a parsed release (spec.md §4.6): a Season/Episode's
// candidate is matched against its Show's title, a Movie's against its
// own.
func Match(candidate, target string) MatchResult {
	score, err := edlib.StringsSimilarity(CleanTitle(candidate), CleanTitle(target), edlib.JaroWinkler)
	if err != nil {
		return MatchResult{Title: candidate, Score: 0, Confidence: ConfidenceNone}
	}
	return MatchResult{Title: candidate, Score: float64(score), Confidence: confidenceFor(float64(score))}
}

// BestMatch returns the highest-scoring Match of candidates against
// target.
func BestMatch(candidates []string, target string) MatchResult {
	best := MatchResult{Confidence: ConfidenceNone}
	for _, c := range candidates {
		m := Match(c, target)
		if m.Score > best.Score {
			best = m
		}
	}
	return best
}
