package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hernancolliard/tienda-online/internal/domain"
	apperrors "github.com/hernancolliard/tienda-online/pkg/errors"
)

func TestGetCart_Empty(t *testing.T) {
	svc, _ := newTestCartService(newMemoryStore(), new(mockCatalog))

	view, err := svc.GetCart(context.Background(), "sess-1")

	require.NoError(t, err)
	assert.Equal(t, "sess-1", view.SessionID)
	assert.NotNil(t, view.Items)
	assert.Empty(t, view.Items)
	assert.True(t, decimal.Zero.Equal(view.Total))
	assert.Equal(t, 0, view.ItemCount)
}

func TestGetCart_FailsOpen(t *testing.T) {
	svc, _ := newTestCartService(downStore{}, new(mockCatalog))

	view, err := svc.GetCart(context.Background(), "sess-1")

	require.NoError(t, err)
	assert.Empty(t, view.Items)
}

func TestGetCart_RequiresSession(t *testing.T) {
	svc, _ := newTestCartService(newMemoryStore(), new(mockCatalog))

	_, err := svc.GetCart(context.Background(), "")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestAddItem_StockCeiling(t *testing.T) {
	catalog := new(mockCatalog)
	svc, pub := newTestCartService(newMemoryStore(), catalog)
	ctx := context.Background()

	catalog.On("GetByID", ctx, int64(1)).Return(product(1, "Remera", "10", 2), nil)

	view, err := svc.AddItem(ctx, "sess-1", 1)
	require.NoError(t, err)
	assert.Empty(t, view.Notices)
	assert.Equal(t, 1, view.ItemCount)

	view, err = svc.AddItem(ctx, "sess-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, view.ItemCount)
	assert.True(t, decimal.NewFromInt(20).Equal(view.Total))

	view, err = svc.AddItem(ctx, "sess-1", 1)
	require.NoError(t, err)
	require.Len(t, view.Notices, 1)
	assert.Equal(t, domain.NoticeStockCeiling, view.Notices[0].Kind)
	assert.Equal(t, 2, view.Notices[0].Limit)
	assert.Equal(t, 2, view.ItemCount)
	assert.True(t, decimal.NewFromInt(20).Equal(view.Total))

	assert.Equal(t, []string{"ecommerce.cart.updated", "ecommerce.cart.updated"}, pub.published())
	catalog.AssertExpectations(t)
}

func TestAddItem_RefreshesSnapshot(t *testing.T) {
	catalog := new(mockCatalog)
	svc, _ := newTestCartService(newMemoryStore(), catalog)
	ctx := context.Background()

	catalog.On("GetByID", ctx, int64(1)).Return(product(1, "Remera", "10", 5), nil).Once()
	catalog.On("GetByID", ctx, int64(1)).Return(product(1, "Remera", "12.50", 5), nil).Once()

	_, err := svc.AddItem(ctx, "sess-1", 1)
	require.NoError(t, err)
	view, err := svc.AddItem(ctx, "sess-1", 1)
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("12.50").Equal(view.Items[0].Price))
	assert.True(t, decimal.NewFromInt(25).Equal(view.Total))
}

func TestAddItem_RejectsUnsellableCatalogRow(t *testing.T) {
	tests := []struct {
		name string
		ref  *domain.ProductRef
	}{
		{"negative price", product(1, "Remera", "-5", 3)},
		{"negative stock", product(1, "Remera", "10", -1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := new(mockCatalog)
			store := newMemoryStore()
			svc, pub := newTestCartService(store, catalog)
			ctx := context.Background()

			catalog.On("GetByID", ctx, int64(1)).Return(tt.ref, nil)

			_, err := svc.AddItem(ctx, "sess-1", 1)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

			cart, err := store.Load(ctx, "sess-1")
			require.NoError(t, err)
			assert.True(t, cart.IsEmpty())
			assert.Empty(t, pub.published())
		})
	}
}

func TestAddItem_OutOfStock(t *testing.T) {
	catalog := new(mockCatalog)
	svc, pub := newTestCartService(newMemoryStore(), catalog)
	ctx := context.Background()

	catalog.On("GetByID", ctx, int64(3)).Return(product(3, "Buzo", "30", 0), nil)

	view, err := svc.AddItem(ctx, "sess-1", 3)
	require.NoError(t, err)
	require.Len(t, view.Notices, 1)
	assert.Equal(t, domain.NoticeOutOfStock, view.Notices[0].Kind)
	assert.Empty(t, view.Items)
	assert.Empty(t, pub.published())
}

func TestAddItem_UnknownProduct(t *testing.T) {
	catalog := new(mockCatalog)
	svc, _ := newTestCartService(newMemoryStore(), catalog)
	ctx := context.Background()

	catalog.On("GetByID", ctx, int64(99)).Return(nil, apperrors.NotFound("product", int64(99)))

	_, err := svc.AddItem(ctx, "sess-1", 99)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestAddItem_InvalidProductID(t *testing.T) {
	svc, _ := newTestCartService(newMemoryStore(), new(mockCatalog))

	_, err := svc.AddItem(context.Background(), "sess-1", 0)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestAddItem_StoreDown(t *testing.T) {
	catalog := new(mockCatalog)
	svc, _ := newTestCartService(downStore{}, catalog)
	ctx := context.Background()

	catalog.On("GetByID", ctx, int64(1)).Return(product(1, "Remera", "10", 2), nil)

	_, err := svc.AddItem(ctx, "sess-1", 1)
	require.Error(t, err)
	assert.Equal(t, 503, apperrors.HTTPStatus(err))
}

func seedCart(t *testing.T, svc *CartService, catalog *mockCatalog, p *domain.ProductRef, times int) {
	t.Helper()
	catalog.On("GetByID", context.Background(), p.ID).Return(p, nil)
	for range times {
		_, err := svc.AddItem(context.Background(), "sess-1", p.ID)
		require.NoError(t, err)
	}
}

func TestUpdateItemQuantity(t *testing.T) {
	catalog := new(mockCatalog)
	svc, pub := newTestCartService(newMemoryStore(), catalog)
	ctx := context.Background()
	seedCart(t, svc, catalog, product(1, "Remera", "10", 4), 1)

	view, err := svc.UpdateItemQuantity(ctx, "sess-1", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, view.ItemCount)
	assert.Empty(t, view.Notices)

	view, err = svc.UpdateItemQuantity(ctx, "sess-1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, view.ItemCount)
	require.Len(t, view.Notices, 1)
	assert.Equal(t, 10, view.Notices[0].Requested)

	view, err = svc.UpdateItemQuantity(ctx, "sess-1", 1, 0)
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	assert.Len(t, pub.published(), 4)
}

func TestUpdateItemQuantity_ClampWithoutChangeDoesNotPublish(t *testing.T) {
	catalog := new(mockCatalog)
	svc, pub := newTestCartService(newMemoryStore(), catalog)
	seedCart(t, svc, catalog, product(1, "Remera", "10", 1), 1)

	view, err := svc.UpdateItemQuantity(context.Background(), "sess-1", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, view.ItemCount)
	require.Len(t, view.Notices, 1)
	assert.Len(t, pub.published(), 1)
}

func TestUpdateItemQuantity_Missing(t *testing.T) {
	svc, _ := newTestCartService(newMemoryStore(), new(mockCatalog))

	_, err := svc.UpdateItemQuantity(context.Background(), "sess-1", 42, 2)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestRemoveItem(t *testing.T) {
	catalog := new(mockCatalog)
	svc, pub := newTestCartService(newMemoryStore(), catalog)
	ctx := context.Background()
	seedCart(t, svc, catalog, product(1, "Remera", "10", 4), 1)
	seedCart(t, svc, catalog, product(2, "Gorra", "5", 4), 1)

	view, err := svc.RemoveItem(ctx, "sess-1", 1)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, int64(2), view.Items[0].ID)

	view, err = svc.RemoveItem(ctx, "sess-1", 1)
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)

	assert.Len(t, pub.published(), 3)
}

func TestClearCart(t *testing.T) {
	catalog := new(mockCatalog)
	store := newMemoryStore()
	svc, pub := newTestCartService(store, catalog)
	ctx := context.Background()
	seedCart(t, svc, catalog, product(1, "Remera", "10", 4), 2)

	require.NoError(t, svc.ClearCart(ctx, "sess-1", ClearReasonShopper))

	view, err := svc.GetCart(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Equal(t, "ecommerce.cart.cleared", pub.published()[len(pub.published())-1])
}

func TestClearCart_StoreDown(t *testing.T) {
	svc, pub := newTestCartService(downStore{}, new(mockCatalog))

	err := svc.ClearCart(context.Background(), "sess-1", ClearReasonShopper)
	assert.Equal(t, 503, apperrors.HTTPStatus(err))
	assert.Empty(t, pub.published())
}

func TestWatch(t *testing.T) {
	catalog := new(mockCatalog)
	svc, _ := newTestCartService(newMemoryStore(), catalog)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	views, err := svc.Watch(ctx, "sess-1")
	require.NoError(t, err)

	seedCart(t, svc, catalog, product(1, "Remera", "10", 4), 1)

	select {
	case v := <-views:
		assert.Equal(t, "sess-1", v.SessionID)
		assert.Equal(t, 1, v.ItemCount)
	case <-time.After(2 * time.Second):
		t.Fatal("no cart view received")
	}

	cancel()
	for range views {
	}
}

func TestWatch_StoreDown(t *testing.T) {
	svc, _ := newTestCartService(downStore{}, new(mockCatalog))

	_, err := svc.Watch(context.Background(), "sess-1")
	assert.Equal(t, 503, apperrors.HTTPStatus(err))
}
