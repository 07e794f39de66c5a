package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colin330smith/callbot-ai/internal/domain"
	"github.com/colin330smith/callbot-ai/internal/registry"
)

type RuleStore struct {
	pool *pgxpool.Pool
}

func NewRuleStore(pool *pgxpool.Pool) *RuleStore {
	return &RuleStore{pool: pool}
}

func (s *RuleStore) Create(ctx context.Context, rule *domain.Rule) error {
	if rule.ID == "" {
		rule.ID = registry.NewRuleID()
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}

	const query = `
		INSERT INTO automation_rules (id, business_id, name, trigger_event, conditions, actions, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = s.pool.Exec(ctx, query,
		rule.ID,
		rule.BusinessID,
		rule.Name,
		string(rule.TriggerEvent),
		conditions,
		actions,
		rule.Active,
	)
	return err
}

func (s *RuleStore) Delete(ctx context.Context, businessID, ruleID string) (bool, error) {
	const query = `DELETE FROM automation_rules WHERE business_id = $1 AND id = $2`

	tag, err := s.pool.Exec(ctx, query, businessID, ruleID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *RuleStore) List(ctx context.Context, businessID string) ([]*domain.Rule, error) {
	const query = `
		SELECT id, business_id, name, trigger_event, conditions, actions, active
		FROM automation_rules
		WHERE business_id = $1
		ORDER BY id
	`

	rows, err := s.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ruleList := []*domain.Rule{}
	for rows.Next() {
		var (
			rule         domain.Rule
			triggerEvent string
			conditions   []byte
			actions      []byte
		)
		err := rows.Scan(
			&rule.ID,
			&rule.BusinessID,
			&rule.Name,
			&triggerEvent,
			&conditions,
			&actions,
			&rule.Active,
		)
		if err != nil {
			return nil, err
		}

		rule.TriggerEvent = domain.EventType(triggerEvent)
		if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("unmarshal conditions: %w", err)
		}
		if err := json.Unmarshal(actions, &rule.Actions); err != nil {
			return nil, fmt.Errorf("unmarshal actions: %w", err)
		}
		ruleList = append(ruleList, &rule)
	}
	return ruleList, rows.Err()
}
