package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstagramPost is a post shown in the storefront's Instagram feed.
type InstagramPost struct {
	ID        int64     `json:"id"`
	ImageURL  string    `json:"image_url"`
	Caption   string    `json:"caption"`
	PostLink  string    `json:"post_link"`
	CreatedAt time.Time `json:"created_at"`
}

// Subscriber is a newsletter signup.
type Subscriber struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductAnnouncement is the payload of the catalog's product-created event.
type ProductAnnouncement struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
}
