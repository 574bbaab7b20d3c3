package devserver

import (
	"context"
	"testing"

	"cartsync/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestDB(t *testing.T) (*MongoStore, func()) {
	if testing.Short() {
		t.Skip("skipping MongoDB integration test in short mode")
	}

	ctx := context.Background()

	// Start MongoDB container
	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	// Get connection string
	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	// Connect to MongoDB
	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	store := NewMongoStore(db)
	require.NoError(t, store.CreateIndexes(ctx))

	cleanup := func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return store, cleanup
}

func TestMongoList_EmptyCart(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	rows, err := store.List(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMongoUpsert_NewRow(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user123"

	created, err := store.Upsert(ctx, userID, remote.Row{
		ProductID: "p1",
		Quantity:  3,
		Price:     15,
		Title:     "Widget",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	rows, err := store.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p1", rows[0].ProductID)
	assert.Equal(t, 3, rows[0].Quantity)
	assert.Equal(t, 15.0, rows[0].Price)
	assert.Equal(t, "Widget", rows[0].Title)
}

func TestMongoUpsert_MatchingCombination_AddsQuantity(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user123"

	opts := map[string]string{"color": "red", "size": "M"}
	first, err := store.Upsert(ctx, userID, remote.Row{ProductID: "p1", Quantity: 2, SelectedOptions: opts})
	require.NoError(t, err)

	second, err := store.Upsert(ctx, userID, remote.Row{ProductID: "p1", Quantity: 5, SelectedOptions: opts})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 7, second.Quantity)

	rows, err := store.List(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMongoUpsert_DifferentOptions_SeparateRows(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user123"

	_, err := store.Upsert(ctx, userID, remote.Row{
		ProductID: "p1", Quantity: 1, SelectedOptions: map[string]string{"color": "red"},
	})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, userID, remote.Row{
		ProductID: "p1", Quantity: 1, SelectedOptions: map[string]string{"color": "blue"},
	})
	require.NoError(t, err)

	rows, err := store.List(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestMongoUpdateQuantity(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user123"

	created, err := store.Upsert(ctx, userID, remote.Row{ProductID: "p1", Quantity: 2})
	require.NoError(t, err)

	updated, err := store.UpdateQuantity(ctx, userID, created.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, updated.Quantity)

	_, err = store.UpdateQuantity(ctx, userID, "missing", 1)
	assert.ErrorIs(t, err, ErrRowNotFound)

	// Other users cannot touch the row
	_, err = store.UpdateQuantity(ctx, "someone-else", created.ID, 1)
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestMongoDelete(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user123"

	created, err := store.Upsert(ctx, userID, remote.Row{ProductID: "p1", Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, userID, created.ID))
	assert.ErrorIs(t, store.Delete(ctx, userID, created.ID), ErrRowNotFound)
}

func TestMongoDeleteAll(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user123"

	_, err := store.Upsert(ctx, userID, remote.Row{ProductID: "p1", Quantity: 1})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, userID, remote.Row{ProductID: "p2", Quantity: 1})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, "other-user", remote.Row{ProductID: "p1", Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, store.DeleteAll(ctx, userID))

	rows, err := store.List(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Other carts are untouched
	rows, err = store.List(ctx, "other-user")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
