package retrieval

import (
	"strings"

	"edu-chatbot-be/pkg/store"
)

type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

// Thresholds are the top-score cut points between quality tiers.
type Thresholds struct {
	High   float64
	Medium float64
}

// Assess grades a result list by its best score.
func Assess(docs []store.Document, t Thresholds) Quality {
	if len(docs) == 0 {
		return QualityLow
	}
	top := docs[0].Score
	for _, d := range docs[1:] {
		if d.Score > top {
			top = d.Score
		}
	}
	switch {
	case top > t.High:
		return QualityHigh
	case top > t.Medium:
		return QualityMedium
	default:
		return QualityLow
	}
}

var recencyKeywords = []string{"latest", "recent", "news", "current", "today", "this year"}

// HasRecencyKeyword reports whether the query asks for fresh information.
func HasRecencyKeyword(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range recencyKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

func NeedsWebSearch(query string, q Quality) bool {
	return q == QualityLow || HasRecencyKeyword(query)
}

// Visible keeps documents at or above minScore, preserving order. Every
// consumer that exposes or cites documents must go through this one filter.
func Visible(docs []store.Document, minScore float64) []store.Document {
	out := make([]store.Document, 0, len(docs))
	for _, d := range docs {
		if d.Score >= minScore {
			out = append(out, d)
		}
	}
	return out
}
