package event

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tmajkow/coursepulse/internal/tracing"
)

// Repository defines storage operations for interaction events.
// Events are scoped to a company (tenant); a company's events feed one
// analytics request and must come back in insertion order so the stable
// journey sort stays deterministic.
type Repository interface {
	// Insert stores a single normalized event for a company.
	Insert(ctx context.Context, companyID string, ev InteractionEvent) error

	// ListByCompany returns all events for a company in insertion order.
	ListByCompany(ctx context.Context, companyID string) ([]InteractionEvent, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development.
type InMemoryRepository struct {
	mu     sync.RWMutex
	events map[string][]InteractionEvent // companyID -> events in insertion order
}

// NewInMemoryRepository creates a new in-memory event repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		events: make(map[string][]InteractionEvent),
	}
}

// Insert stores a single event for a company.
func (r *InMemoryRepository) Insert(_ context.Context, companyID string, ev InteractionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[companyID] = append(r.events[companyID], ev)
	return nil
}

// ListByCompany returns a copy of a company's events in insertion order.
func (r *InMemoryRepository) ListByCompany(_ context.Context, companyID string) ([]InteractionEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := r.events[companyID]
	// Return a copy to avoid external modification
	result := make([]InteractionEvent, len(events))
	copy(result, events)
	return result, nil
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{
		db:     db,
		logger: logger,
	}
}

// Insert stores a single event row. The seq column is a bigserial so
// ListByCompany can reproduce insertion order for equal timestamps.
func (r *PostgresRepository) Insert(ctx context.Context, companyID string, ev InteractionEvent) error {
	ctx, endSpan := tracing.StartDBSpan(ctx, "interaction_events", tracing.DBOperationInsert)
	var err error
	defer func() { endSpan(err) }()

	query := `
		INSERT INTO interaction_events (id, company_id, student_id, content_id, kind, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.db.ExecContext(ctx, query,
		uuid.New().String(), companyID, ev.StudentID, ev.ContentID, ev.Kind, ev.Timestamp)
	if err != nil {
		r.logger.Error("failed to insert interaction event",
			slog.String("company_id", companyID),
			slog.String("student_id", ev.StudentID),
			slog.String("error", err.Error()))
		err = fmt.Errorf("failed to insert interaction event: %w", err)
		return err
	}
	return nil
}

// ListByCompany returns all events for a company ordered by insertion sequence.
func (r *PostgresRepository) ListByCompany(ctx context.Context, companyID string) (events []InteractionEvent, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "interaction_events", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT student_id, content_id, kind, occurred_at
		FROM interaction_events
		WHERE company_id = $1
		ORDER BY seq ASC
	`
	rows, err := r.db.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list interaction events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warn("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	for rows.Next() {
		var ev InteractionEvent
		if err := rows.Scan(&ev.StudentID, &ev.ContentID, &ev.Kind, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan interaction event: %w", err)
		}
		ev.Timestamp = ev.Timestamp.UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interaction events: %w", err)
	}
	return events, nil
}
