package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/hernancolliard/tienda-online/internal/domain"
	"github.com/hernancolliard/tienda-online/internal/event"
	"github.com/hernancolliard/tienda-online/internal/repository"
	"github.com/hernancolliard/tienda-online/internal/repository/memory"
	apperrors "github.com/hernancolliard/tienda-online/pkg/errors"
	pkgkafka "github.com/hernancolliard/tienda-online/pkg/kafka"
)

// --- Mock Catalog ---

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) GetByID(ctx context.Context, id int64) (*domain.ProductRef, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProductRef), args.Error(1)
}

func (m *mockCatalog) GetByIDs(ctx context.Context, ids []int64) (map[int64]domain.ProductRef, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]domain.ProductRef), args.Error(1)
}

// --- Unreachable store ---

type downStore struct{}

func (downStore) err() error {
	return apperrors.Unavailable("cart storage unavailable", nil)
}

func (s downStore) Load(context.Context, string) (*domain.Cart, error) { return nil, s.err() }
func (s downStore) Save(context.Context, string, *domain.Cart) error   { return s.err() }
func (s downStore) Delete(context.Context, string) error               { return s.err() }
func (s downStore) Update(context.Context, string, func(*domain.Cart) error) (*domain.Cart, error) {
	return nil, s.err()
}
func (s downStore) Watch(context.Context, string) (<-chan repository.CartChange, error) {
	return nil, s.err()
}

// --- Recording publisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ *pkgkafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestCartService(store repository.CartStore, catalog *mockCatalog) (*CartService, *recordingPublisher) {
	logger := newTestLogger()
	pub := &recordingPublisher{}
	return NewCartService(store, catalog, event.NewProducer(pub, logger), logger), pub
}

func newMemoryStore() *memory.CartStore {
	return memory.NewCartStore(time.Hour, newTestLogger())
}

func product(id int64, name, price string, stock int) *domain.ProductRef {
	return &domain.ProductRef{
		ID:            id,
		Name:          name,
		Price:         decimal.RequireFromString(price),
		Images:        []string{"https://cdn.example.com/" + name + ".jpg"},
		StockQuantity: stock,
	}
}
