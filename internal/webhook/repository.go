package webhook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tmajkow/coursepulse/internal/tracing"
)

// ErrAlreadyProcessed is returned when recording a delivery that was
// already recorded. Whop retries deliveries, so handlers treat this as
// a successful acknowledgement, not an error.
var ErrAlreadyProcessed = errors.New("webhook delivery already processed")

// ProcessedDelivery is a recorded webhook delivery.
type ProcessedDelivery struct {
	ID          string
	DeliveryID  string
	EventType   string
	CompanyID   string
	ProcessedAt time.Time
}

// Repository tracks processed webhook deliveries for dedup.
type Repository interface {
	// Record marks a delivery as processed.
	// Returns ErrAlreadyProcessed on duplicates.
	Record(ctx context.Context, deliveryID, eventType, companyID string) error

	// HasProcessed reports whether a delivery was already recorded.
	HasProcessed(ctx context.Context, deliveryID string) (bool, error)
}

// InMemoryRepository implements Repository with in-memory storage.
// Used for testing and development.
type InMemoryRepository struct {
	mu         sync.RWMutex
	deliveries map[string]*ProcessedDelivery
}

// NewInMemoryRepository creates a new in-memory delivery repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		deliveries: make(map[string]*ProcessedDelivery),
	}
}

// Record marks a delivery as processed.
func (r *InMemoryRepository) Record(_ context.Context, deliveryID, eventType, companyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.deliveries[deliveryID]; exists {
		return ErrAlreadyProcessed
	}

	r.deliveries[deliveryID] = &ProcessedDelivery{
		ID:          uuid.New().String(),
		DeliveryID:  deliveryID,
		EventType:   eventType,
		CompanyID:   companyID,
		ProcessedAt: time.Now(),
	}
	return nil
}

// HasProcessed reports whether a delivery was already recorded.
func (r *InMemoryRepository) HasProcessed(_ context.Context, deliveryID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.deliveries[deliveryID]
	return exists, nil
}

// PostgresRepository implements Repository using PostgreSQL.
// Dedup relies on the unique constraint on delivery_id so concurrent
// retries cannot both succeed.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Record marks a delivery as processed.
func (r *PostgresRepository) Record(ctx context.Context, deliveryID, eventType, companyID string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "webhook_deliveries", tracing.DBOperationInsert)
	defer func() {
		// A retry losing the insert race is expected, not a span error.
		if errors.Is(err, ErrAlreadyProcessed) {
			endSpan(nil)
			return
		}
		endSpan(err)
	}()

	query := `
		INSERT INTO webhook_deliveries (id, delivery_id, event_type, company_id, processed_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	if _, err = r.db.ExecContext(ctx, query, uuid.New().String(), deliveryID, eventType, companyID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return ErrAlreadyProcessed
		}
		err = fmt.Errorf("failed to record webhook delivery: %w", err)
		return err
	}
	return nil
}

// HasProcessed reports whether a delivery was already recorded.
func (r *PostgresRepository) HasProcessed(ctx context.Context, deliveryID string) (exists bool, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "webhook_deliveries", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `SELECT EXISTS (SELECT 1 FROM webhook_deliveries WHERE delivery_id = $1)`
	if err = r.db.QueryRowContext(ctx, query, deliveryID).Scan(&exists); err != nil {
		err = fmt.Errorf("failed to check webhook delivery: %w", err)
		return false, err
	}
	return exists, nil
}
