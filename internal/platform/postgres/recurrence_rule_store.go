package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/platform/logger"
	"github.com/taskpulse/taskpulse/internal/store"
)

// PostgresRecurrenceRuleStore implements the store.RecurrenceRuleStore
// interface using PostgreSQL. Rule metadata is stored as JSONB and
// round-tripped without interpretation.
type PostgresRecurrenceRuleStore struct {
	db store.DBTX
}

// NewPostgresRecurrenceRuleStore creates a new PostgresRecurrenceRuleStore.
func NewPostgresRecurrenceRuleStore(db store.DBTX) *PostgresRecurrenceRuleStore {
	return &PostgresRecurrenceRuleStore{
		db: db,
	}
}

// Ensure PostgresRecurrenceRuleStore implements store.RecurrenceRuleStore
var _ store.RecurrenceRuleStore = (*PostgresRecurrenceRuleStore)(nil)

// CreateRecurrenceRule persists a new rule.
func (s *PostgresRecurrenceRuleStore) CreateRecurrenceRule(ctx context.Context, rule *domain.RecurrenceRule) error {
	log := logger.FromContext(ctx)

	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	metadata, err := json.Marshal(rule.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal rule metadata: %w", err)
	}

	query := `
		INSERT INTO recurrence_rules (id, pattern, interval, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = s.db.ExecContext(ctx, query,
		rule.ID,
		rule.Pattern,
		rule.Interval,
		metadata,
		rule.CreatedAt,
	)
	if err != nil {
		log.Error("failed to create recurrence rule",
			"rule_id", rule.ID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetRecurrenceRule retrieves a rule by ID.
func (s *PostgresRecurrenceRuleStore) GetRecurrenceRule(ctx context.Context, id uuid.UUID) (*domain.RecurrenceRule, error) {
	query := `
		SELECT id, pattern, interval, metadata, created_at
		FROM recurrence_rules
		WHERE id = $1
	`

	var (
		rule     domain.RecurrenceRule
		metadata []byte
	)

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rule.ID,
		&rule.Pattern,
		&rule.Interval,
		&metadata,
		&rule.CreatedAt,
	)
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrRecurrenceRuleNotFound
		}
		return nil, fmt.Errorf("failed to get recurrence rule: %w", MapError(err))
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rule.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rule metadata: %w", err)
		}
	}

	return &rule, nil
}

// WithTx returns a RecurrenceRuleStore bound to the provided transaction.
func (s *PostgresRecurrenceRuleStore) WithTx(tx *sql.Tx) store.RecurrenceRuleStore {
	return &PostgresRecurrenceRuleStore{db: tx}
}
