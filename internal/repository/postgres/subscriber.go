package postgres

import (
	"context"
	"fmt"

	"github.com/hernancolliard/tienda-online/internal/domain"
	"github.com/hernancolliard/tienda-online/internal/repository"
	"github.com/hernancolliard/tienda-online/pkg/database"
	apperrors "github.com/hernancolliard/tienda-online/pkg/errors"
)

// SubscriberRepository implements repository.SubscriberRepository.
type SubscriberRepository struct {
	db database.DBTX
}

var _ repository.SubscriberRepository = (*SubscriberRepository)(nil)

// NewSubscriberRepository creates a PostgreSQL-backed subscriber repository.
func NewSubscriberRepository(db database.DBTX) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

// Create inserts s. A repeated email is ErrAlreadyExists; a missing table
// means signups are switched off and is ErrUnavailable.
func (r *SubscriberRepository) Create(ctx context.Context, s *domain.Subscriber) (err error) {
	query := `
		INSERT INTO subscribers (email)
		VALUES ($1)
		RETURNING id, created_at`
	ctx, end := database.TraceQuery(ctx, "CreateSubscriber", query)
	defer func() { end(err) }()

	if err := r.db.QueryRow(ctx, query, s.Email).Scan(&s.ID, &s.CreatedAt); err != nil {
		switch {
		case isUniqueViolation(err):
			return apperrors.AlreadyExists("subscriber", "email", s.Email)
		case isUndefinedTable(err):
			return apperrors.Unavailable("newsletter signups are not enabled", err)
		}
		return fmt.Errorf("insert subscriber: %w", err)
	}
	return nil
}

// ListEmails returns every subscribed address in signup order.
func (r *SubscriberRepository) ListEmails(ctx context.Context) (_ []string, err error) {
	query := `SELECT email FROM subscribers ORDER BY id`
	ctx, end := database.TraceQuery(ctx, "ListSubscriberEmails", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return emails, nil
}
