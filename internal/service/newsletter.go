package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hernancolliard/tienda-online/internal/domain"
	"github.com/hernancolliard/tienda-online/internal/mailer"
	"github.com/hernancolliard/tienda-online/internal/repository"
	apperrors "github.com/hernancolliard/tienda-online/pkg/errors"
	"github.com/hernancolliard/tienda-online/pkg/validator"
)

// NewsletterService manages signups and new-product announcements.
type NewsletterService struct {
	repo    repository.SubscriberRepository
	sender  mailer.Sender
	baseURL string
	logger  *slog.Logger
}

// NewNewsletterService creates a new newsletter service.
func NewNewsletterService(repo repository.SubscriberRepository, sender mailer.Sender, baseURL string, logger *slog.Logger) *NewsletterService {
	return &NewsletterService{repo: repo, sender: sender, baseURL: baseURL, logger: logger}
}

// Subscribe signs email up. A repeated address is a conflict.
func (s *NewsletterService) Subscribe(ctx context.Context, email string) (*domain.Subscriber, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validator.Var(email, "required,email,max=254"); err != nil {
		return nil, apperrors.InvalidInput("a valid email address is required")
	}

	sub := &domain.Subscriber{Email: email}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscriber: %w", err)
	}

	s.logger.InfoContext(ctx, "newsletter subscriber added", slog.Int64("subscriber_id", sub.ID))
	return sub, nil
}

// AnnounceProduct mails every subscriber about p. Individual delivery
// failures are logged and skipped; an error is returned only when the list
// cannot be read or no mail at all could be delivered.
func (s *NewsletterService) AnnounceProduct(ctx context.Context, p domain.ProductAnnouncement) error {
	emails, err := s.repo.ListEmails(ctx)
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}
	if len(emails) == 0 {
		s.logger.InfoContext(ctx, "no subscribers to announce to", slog.Int64("product_id", p.ID))
		return nil
	}

	sent := 0
	var errs []error
	for _, to := range emails {
		msg, err := mailer.Announcement(to, s.baseURL, p)
		if err == nil {
			err = s.sender.Send(ctx, msg)
		}
		mailDeliveries.WithLabelValues(outcome(err)).Inc()
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to send product announcement",
				slog.String("to", to),
				slog.Int64("product_id", p.ID),
				slog.String("sender", s.sender.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		sent++
	}

	s.logger.InfoContext(ctx, "product announced",
		slog.Int64("product_id", p.ID),
		slog.Int("sent", sent),
		slog.Int("failed", len(errs)),
	)
	if sent == 0 {
		return fmt.Errorf("announce product %d: %w", p.ID, errors.Join(errs...))
	}
	return nil
}
