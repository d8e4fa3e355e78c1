package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/auth"
	"storefront/internal/redisclient"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCartFixture(t *testing.T) (*CartService, *catalogFixture, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	catalog := newCatalogFixture()
	svc := NewCartService(redisclient.NewClientWithRedis(rdb), NewCatalogService(catalog.store), 24*time.Hour)
	return svc, catalog, mr
}

func TestCartService_AnonymousRequiresCartID(t *testing.T) {
	svc, _, _ := newCartFixture(t)

	_, err := svc.Get(context.Background(), auth.Identity{}, "")
	assert.ErrorIs(t, err, ErrCartIDRequired)
}

func TestCartService_AddUpdateRemove(t *testing.T) {
	svc, catalog, mr := newCartFixture(t)
	ctx := context.Background()
	anon := auth.Identity{}

	sum, err := svc.AddItem(ctx, anon, "c1", AddItemRequest{ProductID: catalog.tshirt.ID, Size: "XL", Color: "Black", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, sum.Items, 1)
	line := sum.Items[0]
	assert.Equal(t, catalog.tshirt.ID+"-XL-Black", line.ID)
	assert.Equal(t, "Crew T-Shirt (XL)", line.Name)
	assert.Equal(t, "109.98", sum.Total.StringFixed(2))
	assert.True(t, mr.Exists("cart:anon:c1"))

	sum, err = svc.AddItem(ctx, anon, "c1", AddItemRequest{ProductID: catalog.sticker.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.ItemCount)

	sum, err = svc.UpdateQuantity(ctx, anon, "c1", line.ID, 0)
	require.NoError(t, err)
	assert.Len(t, sum.Items, 2)
	assert.Equal(t, 2, sum.ItemCount)

	_, err = svc.UpdateQuantity(ctx, anon, "c1", "missing", 3)
	assert.ErrorIs(t, err, ErrItemNotFound)

	sum, err = svc.RemoveItem(ctx, anon, "c1", line.ID)
	require.NoError(t, err)
	assert.Len(t, sum.Items, 1)

	sum, err = svc.Clear(ctx, anon, "c1")
	require.NoError(t, err)
	assert.Empty(t, sum.Items)
	assert.False(t, mr.Exists("cart:anon:c1"))
}

func TestCartService_SizeRequired(t *testing.T) {
	svc, catalog, _ := newCartFixture(t)

	_, err := svc.AddItem(context.Background(), auth.Identity{}, "c1", AddItemRequest{ProductID: catalog.tshirt.ID})
	assert.ErrorIs(t, err, ErrSizeRequired)
}

func TestCartService_SignInMergesAnonymousCart(t *testing.T) {
	svc, catalog, mr := newCartFixture(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, auth.Identity{}, "c1", AddItemRequest{ProductID: catalog.sticker.ID, Quantity: 2})
	require.NoError(t, err)

	sum, err := svc.Get(ctx, shopper, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.ItemCount)
	assert.False(t, mr.Exists("cart:anon:c1"))
	assert.True(t, mr.Exists("cart:user:user-1"))

	loaded, err := svc.Load(ctx, shopper.UserID)
	require.NoError(t, err)
	assert.Len(t, loaded.Items, 1)

	require.NoError(t, svc.ClearForCustomer(ctx, shopper.UserID))
	assert.False(t, mr.Exists("cart:user:user-1"))
}

func TestCartService_RejectsUnknownVariant(t *testing.T) {
	svc, catalog, mr := newCartFixture(t)
	ctx := context.Background()

	for _, req := range []AddItemRequest{
		{ProductID: catalog.tshirt.ID, Size: "XXL", Color: "Black"},
		{ProductID: catalog.tshirt.ID, Size: "XL", Color: "Plaid"},
		{ProductID: catalog.tshirt.ID, Size: "M"},
	} {
		_, err := svc.AddItem(ctx, auth.Identity{}, "c1", req)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, "size=%s color=%s", req.Size, req.Color)
	}
	assert.False(t, mr.Exists("cart:anon:c1"))
}
