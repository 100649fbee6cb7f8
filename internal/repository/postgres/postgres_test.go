package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hernancolliard/tienda-online/internal/domain"
	"github.com/hernancolliard/tienda-online/pkg/database"
	apperrors "github.com/hernancolliard/tienda-online/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

var productColumns = []string{
	"id", "name", "description", "price", "images", "category_id", "category_name",
	"stock_quantity", "sizes", "discount_percentage",
}

func productRow(id int64, price string, stock int) []any {
	return []any{
		id, "Campera Jean", "Talle unico", price, []string{"https://cdn.example.com/c.jpg"},
		int64(3), "Abrigos", stock, []string{"S", "M"}, 10,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// CatalogReader
// ─────────────────────────────────────────────────────────────────────────────

func TestCatalogReader_GetByID(t *testing.T) {
	mock := newMock(t)
	repo := NewCatalogReader(mock)

	mock.ExpectQuery(`FROM products p\s+LEFT JOIN categories c ON c.id = p.category_id\s+WHERE p.id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(productColumns).AddRow(productRow(7, "45999.90", 4)...))

	p, err := repo.GetByID(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, int64(7), p.ID)
	assert.Equal(t, "Campera Jean", p.Name)
	assert.True(t, decimal.RequireFromString("45999.90").Equal(p.Price))
	assert.Equal(t, 4, p.StockQuantity)
	assert.Equal(t, "Abrigos", p.CategoryName)
	assert.Equal(t, []string{"S", "M"}, p.Sizes)
	assert.Equal(t, 10, p.DiscountPercentage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogReader_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewCatalogReader(mock)

	mock.ExpectQuery(`WHERE p.id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 99)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogReader_GetByID_BadPrice(t *testing.T) {
	mock := newMock(t)
	repo := NewCatalogReader(mock)

	mock.ExpectQuery(`WHERE p.id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(productColumns).AddRow(productRow(7, "NaN?", 4)...))

	_, err := repo.GetByID(context.Background(), 7)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse price")
}

func TestCatalogReader_GetByIDs(t *testing.T) {
	mock := newMock(t)
	repo := NewCatalogReader(mock)

	mock.ExpectQuery(`WHERE p.id = ANY\(\$1\)`).
		WithArgs([]int64{1, 2, 3}).
		WillReturnRows(pgxmock.NewRows(productColumns).
			AddRow(productRow(1, "100", 2)...).
			AddRow(productRow(3, "300", 0)...))

	got, err := repo.GetByIDs(context.Background(), []int64{1, 2, 3})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Contains(t, got, int64(1))
	assert.NotContains(t, got, int64(2))
	assert.Equal(t, 0, got[3].StockQuantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogReader_GetByIDs_Empty(t *testing.T) {
	mock := newMock(t)
	repo := NewCatalogReader(mock)

	got, err := repo.GetByIDs(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogReader_GetByIDs_QueryError(t *testing.T) {
	mock := newMock(t)
	repo := NewCatalogReader(mock)

	mock.ExpectQuery(`WHERE p.id = ANY`).
		WithArgs([]int64{1}).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetByIDs(context.Background(), []int64{1})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

// ─────────────────────────────────────────────────────────────────────────────
// InstagramRepository
// ─────────────────────────────────────────────────────────────────────────────

var instagramColumns = []string{"id", "image_url", "caption", "post_link", "created_at", "total_count"}

func TestInstagram_List(t *testing.T) {
	mock := newMock(t)
	repo := NewInstagramRepository(mock)

	mock.ExpectQuery(`FROM instagram_posts\s+ORDER BY created_at DESC, id DESC\s+LIMIT \$1 OFFSET \$2`).
		WithArgs(2, 0).
		WillReturnRows(pgxmock.NewRows(instagramColumns).
			AddRow(int64(5), "https://cdn.example.com/5.jpg", "Nueva coleccion", "https://instagram.com/p/5", now, 3).
			AddRow(int64(4), "https://cdn.example.com/4.jpg", "", "", now.Add(-time.Hour), 3))

	posts, total, err := repo.List(context.Background(), 2, 0)

	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, posts, 2)
	assert.Equal(t, int64(5), posts[0].ID)
	assert.Equal(t, "Nueva coleccion", posts[0].Caption)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstagram_List_PastTheEnd(t *testing.T) {
	mock := newMock(t)
	repo := NewInstagramRepository(mock)

	mock.ExpectQuery(`FROM instagram_posts`).
		WithArgs(10, 20).
		WillReturnRows(pgxmock.NewRows(instagramColumns))
	mock.ExpectQuery(`SELECT count\(\*\) FROM instagram_posts`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(12))

	posts, total, err := repo.List(context.Background(), 10, 20)

	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.Equal(t, 12, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstagram_List_MissingTableIsEmpty(t *testing.T) {
	mock := newMock(t)
	repo := NewInstagramRepository(mock)

	mock.ExpectQuery(`FROM instagram_posts`).
		WithArgs(20, 0).
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "instagram_posts" does not exist`})

	posts, total, err := repo.List(context.Background(), 20, 0)

	require.NoError(t, err)
	assert.NotNil(t, posts)
	assert.Empty(t, posts)
	assert.Zero(t, total)
}

func TestInstagram_Create(t *testing.T) {
	mock := newMock(t)
	repo := NewInstagramRepository(mock)

	mock.ExpectQuery(`INSERT INTO instagram_posts`).
		WithArgs("https://cdn.example.com/9.jpg", "Sale", "https://instagram.com/p/9").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(9), now))

	post := &domain.InstagramPost{ImageURL: "https://cdn.example.com/9.jpg", Caption: "Sale", PostLink: "https://instagram.com/p/9"}
	require.NoError(t, repo.Create(context.Background(), post))

	assert.Equal(t, int64(9), post.ID)
	assert.Equal(t, now, post.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstagram_Update(t *testing.T) {
	mock := newMock(t)
	repo := NewInstagramRepository(mock)

	mock.ExpectQuery(`UPDATE instagram_posts`).
		WithArgs("https://cdn.example.com/9b.jpg", "Sale!", "", int64(9)).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

	post := &domain.InstagramPost{ID: 9, ImageURL: "https://cdn.example.com/9b.jpg", Caption: "Sale!"}
	require.NoError(t, repo.Update(context.Background(), post))
	assert.Equal(t, now, post.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstagram_Update_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewInstagramRepository(mock)

	mock.ExpectQuery(`UPDATE instagram_posts`).
		WithArgs("https://x", "", "", int64(404)).
		WillReturnError(pgx.ErrNoRows)

	err := repo.Update(context.Background(), &domain.InstagramPost{ID: 404, ImageURL: "https://x"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInstagram_Delete(t *testing.T) {
	mock := newMock(t)
	repo := NewInstagramRepository(mock)

	mock.ExpectExec(`DELETE FROM instagram_posts WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM instagram_posts WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.Delete(context.Background(), 9))
	assert.ErrorIs(t, repo.Delete(context.Background(), 9), apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ─────────────────────────────────────────────────────────────────────────────
// SubscriberRepository
// ─────────────────────────────────────────────────────────────────────────────

func TestSubscriber_Create(t *testing.T) {
	mock := newMock(t)
	repo := NewSubscriberRepository(mock)

	mock.ExpectQuery(`INSERT INTO subscribers \(email\)`).
		WithArgs("ana@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))

	s := &domain.Subscriber{Email: "ana@example.com"}
	require.NoError(t, repo.Create(context.Background(), s))
	assert.Equal(t, int64(1), s.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriber_Create_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"duplicate email", &pgconn.PgError{Code: "23505"}, apperrors.ErrAlreadyExists},
		{"table missing", &pgconn.PgError{Code: "42P01"}, apperrors.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			repo := NewSubscriberRepository(mock)

			mock.ExpectQuery(`INSERT INTO subscribers`).
				WithArgs("ana@example.com").
				WillReturnError(tt.err)

			err := repo.Create(context.Background(), &domain.Subscriber{Email: "ana@example.com"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSubscriber_ListEmails(t *testing.T) {
	mock := newMock(t)
	repo := NewSubscriberRepository(mock)

	mock.ExpectQuery(`SELECT email FROM subscribers ORDER BY id`).
		WillReturnRows(pgxmock.NewRows([]string{"email"}).AddRow("ana@example.com").AddRow("luis@example.com"))

	emails, err := repo.ListEmails(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"ana@example.com", "luis@example.com"}, emails)
	assert.NoError(t, mock.ExpectationsWereMet())
}
