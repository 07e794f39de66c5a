// Package postgres provides pgx-backed endpoint and rule stores for
// deployments where webhook configuration must survive restarts.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colin330smith/callbot-ai/internal/domain"
	"github.com/colin330smith/callbot-ai/internal/registry"
)

type EndpointStore struct {
	pool *pgxpool.Pool
}

func NewEndpointStore(pool *pgxpool.Pool) *EndpointStore {
	return &EndpointStore{pool: pool}
}

func (s *EndpointStore) Register(ctx context.Context, ep *domain.Endpoint) error {
	if ep.ID == "" {
		ep.ID = registry.NewEndpointID()
	}
	if ep.Secret == "" {
		secret, err := registry.NewSecret()
		if err != nil {
			return fmt.Errorf("generate secret: %w", err)
		}
		ep.Secret = secret
	}
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now().UTC()
	}
	if err := ep.Validate(); err != nil {
		return err
	}

	events := make([]string, len(ep.Events))
	for i, t := range ep.Events {
		events[i] = string(t)
	}
	headers, err := json.Marshal(ep.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}

	const query = `
		INSERT INTO endpoints (id, business_id, url, events, secret, headers, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.pool.Exec(ctx, query,
		ep.ID,
		ep.BusinessID,
		ep.URL,
		events,
		ep.Secret,
		headers,
		ep.Active,
		ep.CreatedAt,
	)
	return err
}

func (s *EndpointStore) Deregister(ctx context.Context, businessID, endpointID string) (bool, error) {
	const query = `DELETE FROM endpoints WHERE business_id = $1 AND id = $2`

	tag, err := s.pool.Exec(ctx, query, businessID, endpointID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const endpointColumns = `
	id, business_id, url, events, secret, headers, active,
	created_at, last_triggered, success_count, failure_count
`

func (s *EndpointStore) List(ctx context.Context, businessID string) ([]*domain.Endpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM endpoints WHERE business_id = $1 ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	eps := []*domain.Endpoint{}
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}
	return eps, rows.Err()
}

func (s *EndpointStore) Get(ctx context.Context, businessID, endpointID string) (*domain.Endpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM endpoints WHERE business_id = $1 AND id = $2`

	ep, err := scanEndpoint(s.pool.QueryRow(ctx, query, businessID, endpointID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return ep, nil
}

// RecordOutcome moves the counters inside the database, so concurrent
// deliveries to the same endpoint can never lose an increment.
func (s *EndpointStore) RecordOutcome(ctx context.Context, businessID, endpointID string, success bool, at time.Time) error {
	const query = `
		UPDATE endpoints
		SET success_count = success_count + CASE WHEN $3 THEN 1 ELSE 0 END,
		    failure_count = failure_count + CASE WHEN $3 THEN 0 ELSE 1 END,
		    last_triggered = $4
		WHERE business_id = $1 AND id = $2
	`

	tag, err := s.pool.Exec(ctx, query, businessID, endpointID, success, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row rowScanner) (*domain.Endpoint, error) {
	var (
		ep      domain.Endpoint
		events  []string
		headers []byte
	)
	err := row.Scan(
		&ep.ID,
		&ep.BusinessID,
		&ep.URL,
		&events,
		&ep.Secret,
		&headers,
		&ep.Active,
		&ep.CreatedAt,
		&ep.LastTriggered,
		&ep.SuccessCount,
		&ep.FailureCount,
	)
	if err != nil {
		return nil, err
	}

	ep.Events = make([]domain.EventType, len(events))
	for i, e := range events {
		ep.Events[i] = domain.EventType(e)
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &ep.Headers); err != nil {
			return nil, fmt.Errorf("unmarshal headers: %w", err)
		}
	}
	return &ep, nil
}
