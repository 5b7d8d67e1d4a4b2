package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/praxislabs/tenet/internal/domain"
)

const principleColumns = `id, text, tags, triples, examples, use_count, success_count, embedding, confidence, source, version, created_at, updated_at`

type PrincipleStore struct {
	db *pgxpool.Pool
}

func NewPrincipleStore(db *pgxpool.Pool) *PrincipleStore {
	return &PrincipleStore{db: db}
}

func (s *PrincipleStore) Create(ctx context.Context, p *domain.Principle) error {
	tagsJSON, triplesJSON, examplesJSON, err := marshalPrincipleFields(p)
	if err != nil {
		return err
	}

	var embedding *pgvector.Vector
	if len(p.Embedding) > 0 {
		v := pgvector.NewVector(p.Embedding)
		embedding = &v
	}

	if p.Version == 0 {
		p.Version = 1
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO principles (text, tags, triples, examples, use_count, success_count, embedding, confidence, source, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		p.Text, tagsJSON, triplesJSON, examplesJSON, p.UseCount, p.SuccessCount, embedding, p.Confidence, p.Source, p.Version,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (s *PrincipleStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Principle, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+principleColumns+` FROM principles WHERE id = $1`, id)
	p, err := scanPrinciple(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// Update rewrites all mutable fields. created_at is never touched;
// updated_at and version are bumped here rather than trusted from the
// caller's copy.
func (s *PrincipleStore) Update(ctx context.Context, p *domain.Principle) error {
	tagsJSON, triplesJSON, examplesJSON, err := marshalPrincipleFields(p)
	if err != nil {
		return err
	}

	var embedding *pgvector.Vector
	if len(p.Embedding) > 0 {
		v := pgvector.NewVector(p.Embedding)
		embedding = &v
	}

	err = s.db.QueryRow(ctx,
		`UPDATE principles
		 SET text = $1, tags = $2, triples = $3, examples = $4,
		     use_count = $5, success_count = $6, embedding = $7,
		     confidence = $8, source = $9,
		     version = version + 1, updated_at = NOW()
		 WHERE id = $10
		 RETURNING version, updated_at`,
		p.Text, tagsJSON, triplesJSON, examplesJSON,
		p.UseCount, p.SuccessCount, embedding,
		p.Confidence, p.Source, p.ID,
	).Scan(&p.Version, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *PrincipleStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM principles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every principle in insertion order. Scoring relies on
// this order as the stable tie-break key.
func (s *PrincipleStore) List(ctx context.Context) ([]domain.Principle, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+principleColumns+` FROM principles ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list principles: %w", err)
	}
	defer rows.Close()

	return scanPrinciples(rows)
}

// Search applies the storage-level filters. The min-score condition is
// the approximate pre-filter: it is evaluated in SQL with the same
// formula as the Bayesian score, but callers needing exactness must
// re-verify against Principle.Score.
func (s *PrincipleStore) Search(ctx context.Context, q domain.PrincipleQuery) ([]domain.Principle, error) {
	var conditions []string
	var args []any

	if len(q.Tags) > 0 {
		conditions = append(conditions, fmt.Sprintf("tags ?| $%d", len(args)+1))
		args = append(args, q.Tags)
	}

	if len(q.Triples) > 0 {
		triplesJSON, err := json.Marshal(q.Triples)
		if err != nil {
			return nil, fmt.Errorf("marshal query triples: %w", err)
		}
		conditions = append(conditions, fmt.Sprintf("triples @> $%d", len(args)+1))
		args = append(args, triplesJSON)
	}

	if q.TimeRange != nil {
		if !q.TimeRange.From.IsZero() {
			conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
			args = append(args, q.TimeRange.From)
		}
		if !q.TimeRange.To.IsZero() {
			conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)+1))
			args = append(args, q.TimeRange.To)
		}
	}

	if q.MinScore > 0 {
		conditions = append(conditions, fmt.Sprintf("(success_count + 1) / (use_count + 2) >= $%d", len(args)+1))
		args = append(args, q.MinScore)
	}

	query := `SELECT ` + principleColumns + ` FROM principles`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, q.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search principles: %w", err)
	}
	defer rows.Close()

	return scanPrinciples(rows)
}

func (s *PrincipleStore) FindSimilar(ctx context.Context, embedding []float32, threshold float64, exclude uuid.UUID) ([]domain.PrincipleWithScore, error) {
	vec := pgvector.NewVector(embedding)

	rows, err := s.db.Query(ctx,
		`SELECT `+principleColumns+`, 1 - (embedding <=> $1) AS score
		 FROM principles
		 WHERE embedding IS NOT NULL AND id != $2 AND 1 - (embedding <=> $1) >= $3
		 ORDER BY score DESC`,
		vec, exclude, threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("find similar principles: %w", err)
	}
	defer rows.Close()

	var results []domain.PrincipleWithScore
	for rows.Next() {
		var ps domain.PrincipleWithScore
		p, err := scanPrincipleWithScore(rows, &ps.Score)
		if err != nil {
			return nil, fmt.Errorf("scan similar principle: %w", err)
		}
		ps.Principle = *p
		results = append(results, ps)
	}
	return results, rows.Err()
}

func (s *PrincipleStore) ListMissingEmbeddings(ctx context.Context) ([]domain.Principle, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+principleColumns+` FROM principles WHERE embedding IS NULL ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list missing embeddings: %w", err)
	}
	defer rows.Close()

	return scanPrinciples(rows)
}

func (s *PrincipleStore) SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	tag, err := s.db.Exec(ctx,
		`UPDATE principles SET embedding = $1, updated_at = NOW() WHERE id = $2`,
		vec, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Absorb merges source into target and deletes source in a single
// transaction. Counters are re-read under row locks so a RecordUsage
// that committed after the dedupe pass scanned the source is still
// folded into the target. Usage events are re-pointed rather than
// cascade-deleted so the event log survives the merge.
func (s *PrincipleStore) Absorb(ctx context.Context, targetID, sourceID uuid.UUID, maxExamples int) error {
	return withTx(ctx, s.db, func(tx pgx.Tx) error {
		// Lock in a consistent order to avoid deadlocks between
		// concurrent merges.
		first, second := targetID, sourceID
		if strings.Compare(second.String(), first.String()) < 0 {
			first, second = second, first
		}
		for _, id := range []uuid.UUID{first, second} {
			if _, err := tx.Exec(ctx, `SELECT 1 FROM principles WHERE id = $1 FOR UPDATE`, id); err != nil {
				return err
			}
		}

		target, err := getPrincipleTx(ctx, tx, targetID)
		if err != nil {
			return err
		}
		source, err := getPrincipleTx(ctx, tx, sourceID)
		if err != nil {
			return err
		}

		domain.MergePrinciples(target, source, maxExamples)

		tagsJSON, triplesJSON, examplesJSON, err := marshalPrincipleFields(target)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE principles
			 SET tags = $1, triples = $2, examples = $3,
			     use_count = $4, success_count = $5, confidence = $6,
			     version = $7, updated_at = NOW()
			 WHERE id = $8`,
			tagsJSON, triplesJSON, examplesJSON,
			target.UseCount, target.SuccessCount, target.Confidence,
			target.Version, targetID,
		); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE principle_usage SET principle_id = $1 WHERE principle_id = $2`,
			targetID, sourceID,
		); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM principles WHERE id = $1`, sourceID); err != nil {
			return err
		}
		return nil
	})
}

func (s *PrincipleStore) PruneLowScore(ctx context.Context, threshold, minUsage float64) ([]uuid.UUID, error) {
	var removed []uuid.UUID
	err := withTx(ctx, s.db, func(tx pgx.Tx) error {
		removed = removed[:0]
		rows, err := tx.Query(ctx,
			`DELETE FROM principles
			 WHERE (success_count + 1) / (use_count + 2) < $1 AND use_count >= $2
			 RETURNING id`,
			threshold, minUsage,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				return err
			}
			removed = append(removed, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("prune principles: %w", err)
	}
	return removed, nil
}

func getPrincipleTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Principle, error) {
	row := tx.QueryRow(ctx, `SELECT `+principleColumns+` FROM principles WHERE id = $1`, id)
	p, err := scanPrinciple(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func marshalPrincipleFields(p *domain.Principle) (tags, triples, examples []byte, err error) {
	if tags, err = json.Marshal(emptyIfNilStrings(p.Tags)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal tags: %w", err)
	}
	if p.Triples == nil {
		p.Triples = []domain.Triple{}
	}
	if triples, err = json.Marshal(p.Triples); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal triples: %w", err)
	}
	if p.Examples == nil {
		p.Examples = []domain.Example{}
	}
	if examples, err = json.Marshal(p.Examples); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal examples: %w", err)
	}
	return tags, triples, examples, nil
}

func emptyIfNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func scanPrinciple(row pgx.Row) (*domain.Principle, error) {
	p := &domain.Principle{}
	var tagsJSON, triplesJSON, examplesJSON []byte
	var embedding *pgvector.Vector

	err := row.Scan(
		&p.ID, &p.Text, &tagsJSON, &triplesJSON, &examplesJSON,
		&p.UseCount, &p.SuccessCount, &embedding,
		&p.Confidence, &p.Source, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, unmarshalPrincipleFields(p, tagsJSON, triplesJSON, examplesJSON, embedding)
}

func scanPrincipleWithScore(rows pgx.Rows, score *float64) (*domain.Principle, error) {
	p := &domain.Principle{}
	var tagsJSON, triplesJSON, examplesJSON []byte
	var embedding *pgvector.Vector

	err := rows.Scan(
		&p.ID, &p.Text, &tagsJSON, &triplesJSON, &examplesJSON,
		&p.UseCount, &p.SuccessCount, &embedding,
		&p.Confidence, &p.Source, &p.Version, &p.CreatedAt, &p.UpdatedAt,
		score,
	)
	if err != nil {
		return nil, err
	}
	return p, unmarshalPrincipleFields(p, tagsJSON, triplesJSON, examplesJSON, embedding)
}

func scanPrinciples(rows pgx.Rows) ([]domain.Principle, error) {
	var principles []domain.Principle
	for rows.Next() {
		p, err := scanPrinciple(rows)
		if err != nil {
			return nil, fmt.Errorf("scan principle: %w", err)
		}
		principles = append(principles, *p)
	}
	return principles, rows.Err()
}

func unmarshalPrincipleFields(p *domain.Principle, tagsJSON, triplesJSON, examplesJSON []byte, embedding *pgvector.Vector) error {
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &p.Tags); err != nil {
			return fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if len(triplesJSON) > 0 {
		if err := json.Unmarshal(triplesJSON, &p.Triples); err != nil {
			return fmt.Errorf("unmarshal triples: %w", err)
		}
	}
	if len(examplesJSON) > 0 {
		if err := json.Unmarshal(examplesJSON, &p.Examples); err != nil {
			return fmt.Errorf("unmarshal examples: %w", err)
		}
	}
	if embedding != nil {
		p.Embedding = embedding.Slice()
	}
	return nil
}
