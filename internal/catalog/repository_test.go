package catalog_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *catalog.Repository {
	repo, err := catalog.NewRepository(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.RunMigrations("../../migrations/catalog"))
	return repo
}

func TestListProducts_SeededCatalog(t *testing.T) {
	repo := setupTestDB(t)

	products, err := repo.ListProducts(context.Background(), catalog.ListFilter{})
	require.NoError(t, err)
	require.Len(t, products, 3)

	byID := map[string]*domain.Product{}
	for _, p := range products {
		byID[p.ID] = p
	}
	assert.Equal(t, int64(2499), byID["tshirt-logo"].Price)
	assert.Equal(t, int64(5499), byID["hoodie-zip"].Price)
	assert.Equal(t, int64(1999), byID["cap-baseball"].Price)
	assert.Equal(t, "usd", byID["cap-baseball"].Currency)
}

func TestListProducts_Filters(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	products, err := repo.ListProducts(ctx, catalog.ListFilter{Search: "HOODIE"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "hoodie-zip", products[0].ID)

	products, err = repo.ListProducts(ctx, catalog.ListFilter{Category: "accessories"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "cap-baseball", products[0].ID)

	products, err = repo.ListProducts(ctx, catalog.ListFilter{Search: "cotton", Category: "accessories"})
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestGetProduct_NotFound(t *testing.T) {
	repo := setupTestDB(t)

	p, err := repo.GetProduct(context.Background(), "nope")
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
	assert.Nil(t, p)
}

func TestProductCRUD(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	p := &domain.Product{ID: "socks", Name: "Socks", Description: "Wool socks", Price: 999, Currency: "usd", Category: "accessories"}
	require.NoError(t, repo.CreateProduct(ctx, p))
	assert.ErrorIs(t, repo.CreateProduct(ctx, p), catalog.ErrProductExists)

	got, err := repo.GetProduct(ctx, "socks")
	require.NoError(t, err)
	assert.Equal(t, "Socks", got.Name)
	assert.Equal(t, int64(999), got.Price)

	got.Price = 1299
	got.Name = "Wool Socks"
	require.NoError(t, repo.UpdateProduct(ctx, got))

	got, err = repo.GetProduct(ctx, "socks")
	require.NoError(t, err)
	assert.Equal(t, int64(1299), got.Price)
	assert.Equal(t, "Wool Socks", got.Name)

	require.NoError(t, repo.DeleteProduct(ctx, "socks"))
	assert.ErrorIs(t, repo.DeleteProduct(ctx, "socks"), catalog.ErrProductNotFound)
	assert.ErrorIs(t, repo.UpdateProduct(ctx, &domain.Product{ID: "socks"}), catalog.ErrProductNotFound)
}
