package news

import "time"

// Article is one scraped headline with whatever summary the listing page shows.
type Article struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Summary     string `json:"summary,omitempty"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at,omitempty"`
	Symbol      string `json:"symbol"`
}

// Digest is the scored news read for one symbol.
type Digest struct {
	Symbol    string    `json:"symbol"`
	Score     float64   `json:"score"` // [0,1], 0.5 neutral
	Articles  int       `json:"articles"`
	Positive  int       `json:"positive"`
	Negative  int       `json:"negative"`
	Neutral   int       `json:"neutral"`
	Summary   string    `json:"summary"`
	FetchedAt time.Time `json:"fetched_at"`
}
