package domain

import "time"

// TimeRange bounds a query by creation time. Zero bounds are open.
type TimeRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

func (r *TimeRange) Contains(t time.Time) bool {
	if r == nil {
		return true
	}
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// PrincipleQuery filters the principle collection. Tags match if the
// intersection with a principle's tags is non-empty; every queried triple
// must structurally match at least one principle triple. MinScore is an
// approximate storage-level pre-filter; callers needing exactness must
// re-verify against Principle.Score.
type PrincipleQuery struct {
	Tags      []string   `json:"tags,omitempty"`
	Triples   []Triple   `json:"triples,omitempty"`
	TimeRange *TimeRange `json:"time_range,omitempty"`
	MinScore  float64    `json:"min_principle_score,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

// TraceQuery filters the trace collection.
type TraceQuery struct {
	Tags      []string       `json:"tags,omitempty"`
	Outcome   *OutcomeStatus `json:"outcome,omitempty"`
	Model     string         `json:"model,omitempty"`
	TimeRange *TimeRange     `json:"time_range,omitempty"`
	Limit     int            `json:"limit,omitempty"`
}

// RetrievalQuery is the façade-level query: free text for semantic
// matching plus the structural filters, with optional diversity
// re-ranking and exploration slots.
type RetrievalQuery struct {
	Text             string   `json:"text,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	Triples          []Triple `json:"triples,omitempty"`
	MinScore         float64  `json:"min_principle_score,omitempty"`
	Limit            int      `json:"limit,omitempty"`
	Diversify        bool     `json:"diversify,omitempty"`
	ExplorationSlots int      `json:"exploration_slots,omitempty"`
	SessionID        string   `json:"session_id,omitempty"`
}
