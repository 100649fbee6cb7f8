package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "github.com/hernancolliard/tienda-online/pkg/errors"
)

// CurrencyARS is the only currency the storefront sells in.
const CurrencyARS = "ARS"

// CheckoutLine is one line of a payment preference, priced from the catalog.
type CheckoutLine struct {
	ProductID   int64           `json:"product_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	PictureURL  string          `json:"picture_url,omitempty"`
}

// BackURLs are where the provider sends the shopper after paying.
type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// PaymentPreference is everything the provider needs to open a checkout.
type PaymentPreference struct {
	Lines             []CheckoutLine
	Currency          string
	ExternalReference string
	BackURLs          BackURLs
	AutoReturn        string
	NotificationURL   string
}

// Total returns the sum of unit price × quantity over the lines.
func (p PaymentPreference) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range p.Lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// PreferenceResult is what the provider returns for a created preference.
type PreferenceResult struct {
	ID          string `json:"preference_id"`
	RedirectURL string `json:"redirect_url"`
}

// StockShortage describes a line the catalog can no longer fill.
type StockShortage struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// FeedbackStatus is the outcome the provider reports when the shopper returns.
type FeedbackStatus string

const (
	FeedbackSuccess FeedbackStatus = "success"
	FeedbackFailure FeedbackStatus = "failure"
	FeedbackPending FeedbackStatus = "pending"
)

// ParseFeedbackStatus accepts exactly success, failure or pending.
func ParseFeedbackStatus(s string) (FeedbackStatus, error) {
	switch st := FeedbackStatus(s); st {
	case FeedbackSuccess, FeedbackFailure, FeedbackPending:
		return st, nil
	}
	return "", apperrors.InvalidInput(fmt.Sprintf("unknown feedback status %q", s))
}

// PaymentNotification is a provider webhook call. Type and DataID may come
// from the body or from the "topic"/"type" and "id"/"data.id" query values.
type PaymentNotification struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Action   string `json:"action,omitempty"`
	DataID   string `json:"data_id"`
	LiveMode bool   `json:"live_mode"`
}
