package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/hernancolliard/tienda-online/internal/domain"
	"github.com/hernancolliard/tienda-online/internal/repository"
	"github.com/hernancolliard/tienda-online/pkg/database"
	apperrors "github.com/hernancolliard/tienda-online/pkg/errors"
)

// Price is selected as text and parsed into a decimal so no precision is
// lost between NUMERIC and the cart.
const productSelect = `
		SELECT p.id, p.name, COALESCE(p.description, ''), p.price::text,
		       COALESCE(p.images, '{}'), COALESCE(p.category_id, 0), COALESCE(c.name, ''),
		       p.stock_quantity, COALESCE(p.sizes, '{}'), COALESCE(p.discount_percentage, 0)
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id`

// CatalogReader implements repository.CatalogReader over the catalog's
// products table. It never writes.
type CatalogReader struct {
	db database.DBTX
}

var _ repository.CatalogReader = (*CatalogReader)(nil)

// NewCatalogReader creates a PostgreSQL-backed catalog reader.
func NewCatalogReader(db database.DBTX) *CatalogReader {
	return &CatalogReader{db: db}
}

// GetByID returns the product or an ErrNotFound app error.
func (r *CatalogReader) GetByID(ctx context.Context, id int64) (_ *domain.ProductRef, err error) {
	query := productSelect + `
		WHERE p.id = $1`
	ctx, end := database.TraceQuery(ctx, "GetProductByID", query)
	defer func() { end(err) }()

	p, err := scanProduct(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", id)
		}
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

// GetByIDs returns the products found among ids, keyed by id.
func (r *CatalogReader) GetByIDs(ctx context.Context, ids []int64) (_ map[int64]domain.ProductRef, err error) {
	out := make(map[int64]domain.ProductRef, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := productSelect + `
		WHERE p.id = ANY($1)`
	ctx, end := database.TraceQuery(ctx, "GetProductsByIDs", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

func scanProduct(row pgx.Row) (*domain.ProductRef, error) {
	var (
		p     domain.ProductRef
		price string
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Description, &price,
		&p.Images, &p.CategoryID, &p.CategoryName,
		&p.StockQuantity, &p.Sizes, &p.DiscountPercentage,
	); err != nil {
		return nil, err
	}

	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price of product %d: %w", p.ID, err)
	}
	p.Price = d
	return &p, nil
}
