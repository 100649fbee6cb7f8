package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hernancolliard/tienda-online/internal/domain"
	"github.com/hernancolliard/tienda-online/internal/repository"
	"github.com/hernancolliard/tienda-online/pkg/database"
	apperrors "github.com/hernancolliard/tienda-online/pkg/errors"
)

// InstagramRepository implements repository.InstagramRepository.
type InstagramRepository struct {
	db database.DBTX
}

var _ repository.InstagramRepository = (*InstagramRepository)(nil)

// NewInstagramRepository creates a PostgreSQL-backed Instagram post repository.
func NewInstagramRepository(db database.DBTX) *InstagramRepository {
	return &InstagramRepository{db: db}
}

// List returns a page of posts, newest first, with the total count. A
// missing table reads as an empty feed.
func (r *InstagramRepository) List(ctx context.Context, limit, offset int) (_ []domain.InstagramPost, _ int, err error) {
	query := `
		SELECT id, image_url, COALESCE(caption, ''), COALESCE(post_link, ''), created_at,
		       count(*) OVER() AS total_count
		FROM instagram_posts
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`
	ctx, end := database.TraceQuery(ctx, "ListInstagramPosts", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		if isUndefinedTable(err) {
			return []domain.InstagramPost{}, 0, nil
		}
		return nil, 0, fmt.Errorf("list instagram posts: %w", err)
	}
	defer rows.Close()

	var (
		posts []domain.InstagramPost
		total int
	)
	for rows.Next() {
		var p domain.InstagramPost
		if err := rows.Scan(&p.ID, &p.ImageURL, &p.Caption, &p.PostLink, &p.CreatedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("scan instagram post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		if isUndefinedTable(err) {
			return []domain.InstagramPost{}, 0, nil
		}
		return nil, 0, fmt.Errorf("iterate instagram posts: %w", err)
	}

	// A page past the end has no rows to carry the window count.
	if len(posts) == 0 && offset > 0 {
		if err := r.db.QueryRow(ctx, `SELECT count(*) FROM instagram_posts`).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count instagram posts: %w", err)
		}
	}
	return posts, total, nil
}

// Create inserts post and fills in its ID and CreatedAt.
func (r *InstagramRepository) Create(ctx context.Context, post *domain.InstagramPost) (err error) {
	query := `
		INSERT INTO instagram_posts (image_url, caption, post_link)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	ctx, end := database.TraceQuery(ctx, "CreateInstagramPost", query)
	defer func() { end(err) }()

	if err := r.db.QueryRow(ctx, query, post.ImageURL, post.Caption, post.PostLink).Scan(&post.ID, &post.CreatedAt); err != nil {
		if isUndefinedTable(err) {
			return apperrors.Unavailable("instagram feed is not enabled", err)
		}
		return fmt.Errorf("insert instagram post: %w", err)
	}
	return nil
}

// Update overwrites the editable fields of post.
func (r *InstagramRepository) Update(ctx context.Context, post *domain.InstagramPost) (err error) {
	query := `
		UPDATE instagram_posts
		SET image_url = $1, caption = $2, post_link = $3
		WHERE id = $4
		RETURNING created_at`
	ctx, end := database.TraceQuery(ctx, "UpdateInstagramPost", query)
	defer func() { end(err) }()

	if err := r.db.QueryRow(ctx, query, post.ImageURL, post.Caption, post.PostLink, post.ID).Scan(&post.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("instagram post", post.ID)
		}
		return fmt.Errorf("update instagram post: %w", err)
	}
	return nil
}

// Delete removes the post with id.
func (r *InstagramRepository) Delete(ctx context.Context, id int64) (err error) {
	query := `DELETE FROM instagram_posts WHERE id = $1`
	ctx, end := database.TraceQuery(ctx, "DeleteInstagramPost", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete instagram post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("instagram post", id)
	}
	return nil
}
