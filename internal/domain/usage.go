package domain

import (
	"time"

	"github.com/google/uuid"
)

// UsageEvent is one row of the append-only usage log: a single credit
// attribution of an episode outcome to a principle.
type UsageEvent struct {
	ID            uuid.UUID  `json:"id"`
	PrincipleID   uuid.UUID  `json:"principle_id"`
	TraceID       *uuid.UUID `json:"trace_id,omitempty"`
	Credit        float64    `json:"credit"`
	WasSuccessful bool       `json:"was_successful"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ClampCredit normalizes a credit value into [0, 1] before it is
// accumulated into principle counters.
func ClampCredit(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
