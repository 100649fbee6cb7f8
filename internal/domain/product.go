package domain

import (
	"github.com/shopspring/decimal"

	apperrors "github.com/hernancolliard/tienda-online/pkg/errors"
)

// ProductRef is a snapshot of a catalog product taken when it entered the
// cart. Price and StockQuantity are what the catalog reported at that time.
type ProductRef struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	Price              decimal.Decimal `json:"price"`
	Images             []string        `json:"images"`
	CategoryID         int64           `json:"category_id,omitempty"`
	CategoryName       string          `json:"category_name,omitempty"`
	StockQuantity      int             `json:"stock_quantity"`
	Sizes              []string        `json:"sizes,omitempty"`
	DiscountPercentage int             `json:"discount_percentage,omitempty"`
}

// Validate checks the fields the cart relies on.
func (p ProductRef) Validate() error {
	switch {
	case p.ID <= 0:
		return apperrors.InvalidInput("product id must be positive")
	case p.Price.IsNegative():
		return apperrors.InvalidInput("product price must not be negative")
	case p.StockQuantity < 0:
		return apperrors.InvalidInput("product stock must not be negative")
	}
	return nil
}

// PrimaryImage returns the first image URL, or "" when there is none.
func (p ProductRef) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
