package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hernancolliard/tienda-online/internal/domain"
	"github.com/hernancolliard/tienda-online/internal/repository"
	apperrors "github.com/hernancolliard/tienda-online/pkg/errors"
	"github.com/hernancolliard/tienda-online/pkg/pagination"
	"github.com/hernancolliard/tienda-online/pkg/validator"
)

// InstagramPostInput holds the fields an admin sets on a feed post.
type InstagramPostInput struct {
	ImageURL string `json:"image_url" validate:"required,url,max=2048"`
	Caption  string `json:"caption" validate:"max=2200"`
	PostLink string `json:"post_link" validate:"omitempty,url,max=2048"`
}

// InstagramService manages the storefront's Instagram feed.
type InstagramService struct {
	repo   repository.InstagramRepository
	logger *slog.Logger
}

// NewInstagramService creates a new Instagram feed service.
func NewInstagramService(repo repository.InstagramRepository, logger *slog.Logger) *InstagramService {
	return &InstagramService{repo: repo, logger: logger}
}

// List returns one page of posts, newest first, and the total count.
func (s *InstagramService) List(ctx context.Context, p pagination.Params) ([]domain.InstagramPost, int, error) {
	posts, total, err := s.repo.List(ctx, p.PerPage, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list instagram posts: %w", err)
	}
	return posts, total, nil
}

// Create adds a post to the feed.
func (s *InstagramService) Create(ctx context.Context, input InstagramPostInput) (*domain.InstagramPost, error) {
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	post := &domain.InstagramPost{ImageURL: input.ImageURL, Caption: input.Caption, PostLink: input.PostLink}
	if err := s.repo.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("create instagram post: %w", err)
	}

	s.logger.InfoContext(ctx, "instagram post created", slog.Int64("post_id", post.ID))
	return post, nil
}

// Update replaces the fields of an existing post.
func (s *InstagramService) Update(ctx context.Context, id int64, input InstagramPostInput) (*domain.InstagramPost, error) {
	if id <= 0 {
		return nil, apperrors.InvalidInput("post id must be positive")
	}
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	post := &domain.InstagramPost{ID: id, ImageURL: input.ImageURL, Caption: input.Caption, PostLink: input.PostLink}
	if err := s.repo.Update(ctx, post); err != nil {
		return nil, fmt.Errorf("update instagram post: %w", err)
	}

	s.logger.InfoContext(ctx, "instagram post updated", slog.Int64("post_id", id))
	return post, nil
}

// Delete removes a post.
func (s *InstagramService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperrors.InvalidInput("post id must be positive")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete instagram post: %w", err)
	}

	s.logger.InfoContext(ctx, "instagram post deleted", slog.Int64("post_id", id))
	return nil
}
