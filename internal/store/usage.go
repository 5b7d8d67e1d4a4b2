package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxislabs/tenet/internal/domain"
)

// SuccessThreshold is the credit value at or above which a usage event
// counts as successful.
const SuccessThreshold = 0.5

type UsageStore struct {
	db *pgxpool.Pool
}

func NewUsageStore(db *pgxpool.Pool) *UsageStore {
	return &UsageStore{db: db}
}

// RecordUsage inserts the event and increments the principle's counters
// in one transaction; partial application is never observable. A missing
// principle (absorbed by a concurrent merge) is a no-op, not an error.
func (s *UsageStore) RecordUsage(ctx context.Context, principleID uuid.UUID, traceID *uuid.UUID, credit float64) (*domain.UsageEvent, error) {
	credit = domain.ClampCredit(credit)

	var event *domain.UsageEvent
	err := withTx(ctx, s.db, func(tx pgx.Tx) error {
		event = nil

		tag, err := tx.Exec(ctx,
			`UPDATE principles
			 SET use_count = use_count + 1,
			     success_count = success_count + $1,
			     updated_at = NOW()
			 WHERE id = $2`,
			credit, principleID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			// Principle is gone; drop the event too.
			return nil
		}

		e := &domain.UsageEvent{
			PrincipleID:   principleID,
			TraceID:       traceID,
			Credit:        credit,
			WasSuccessful: credit >= SuccessThreshold,
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO principle_usage (principle_id, trace_id, was_successful, credit)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, created_at`,
			e.PrincipleID, e.TraceID, e.WasSuccessful, e.Credit,
		).Scan(&e.ID, &e.CreatedAt); err != nil {
			return err
		}
		event = e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record usage: %w", err)
	}
	return event, nil
}

func (s *UsageStore) HistoryByPrinciple(ctx context.Context, principleID uuid.UUID) ([]domain.UsageEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, principle_id, trace_id, was_successful, credit, created_at
		 FROM principle_usage WHERE principle_id = $1
		 ORDER BY created_at ASC`,
		principleID,
	)
	if err != nil {
		return nil, fmt.Errorf("usage history: %w", err)
	}
	defer rows.Close()

	var events []domain.UsageEvent
	for rows.Next() {
		var e domain.UsageEvent
		if err := rows.Scan(&e.ID, &e.PrincipleID, &e.TraceID, &e.WasSuccessful, &e.Credit, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
