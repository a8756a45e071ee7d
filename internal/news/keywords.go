package news

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

var positiveTerms = []string{
	"surge", "surges", "rally", "rallies", "soar", "soars", "gain", "gains", "bullish",
	"record high", "all-time high", "adoption", "approval", "approved", "approves",
	"inflow", "inflows", "breakout", "upgrade", "partnership", "rebound", "jumps",
	"climbs", "rises", "outperforms", "accumulate", "accumulation",
}

var negativeTerms = []string{
	"crash", "crashes", "plunge", "plunges", "drop", "drops", "falls", "bearish",
	"hack", "hacked", "exploit", "ban", "bans", "lawsuit", "sues", "outflow", "outflows",
	"sell-off", "selloff", "liquidation", "liquidations", "fraud", "decline", "declines",
	"slump", "tumbles", "fears", "delist", "delisting", "insolvency", "bankruptcy",
}

// Polarity scores text in [-1,1] as (positive hits - negative hits) / total
// hits. ok is false when no keyword matches.
func Polarity(text string) (score float64, ok bool) {
	norm := " " + normalize(text) + " "
	pos := countTerms(norm, positiveTerms)
	neg := countTerms(norm, negativeTerms)
	if pos+neg == 0 {
		return 0, false
	}
	return float64(pos-neg) / float64(pos+neg), true
}

func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func countTerms(norm string, terms []string) int {
	n := 0
	for _, t := range terms {
		n += strings.Count(norm, " "+t+" ")
	}
	return n
}

// Score maps the mean polarity of the articles that matched any keyword onto
// [0,1]. No articles, or no matches, is neutral.
func Score(symbol string, articles []Article, now time.Time) Digest {
	d := Digest{Symbol: symbol, Score: 0.5, Articles: len(articles), FetchedAt: now}

	sum, scored := 0.0, 0
	for _, a := range articles {
		p, ok := Polarity(a.Title + " " + a.Summary)
		switch {
		case !ok || p == 0:
			d.Neutral++
		case p > 0:
			d.Positive++
		default:
			d.Negative++
		}
		if ok {
			sum += p
			scored++
		}
	}
	if scored > 0 {
		d.Score = 0.5 + 0.5*(sum/float64(scored))
	}

	d.Summary = fmt.Sprintf("Analyzed %d articles: %d positive, %d negative, %d neutral",
		d.Articles, d.Positive, d.Negative, d.Neutral)
	return d
}
