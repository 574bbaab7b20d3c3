package devserver

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cartsync/internal/catalog"
	"cartsync/internal/engine"
	"cartsync/internal/remote"
	"cartsync/internal/session"
	"cartsync/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Full stack: engine -> HTTP clients -> devserver, with a real JWT
// session. Covers the guest-to-authenticated merge path end to end.
func TestEngine_GuestLoginMerge_EndToEnd(t *testing.T) {
	srv := NewServer(NewMemoryStore(), testProducts(), testSecret, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sess := session.NewTokenSession(testSecret)
	blobs := storage.NewMemoryStore()
	cat := catalog.NewHTTPClient(ts.URL, ts.Client())
	store := remote.NewHTTPClient(ts.URL, ts.Client(), sess)

	eng := engine.New(cat, store, sess, blobs, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer eng.Close()

	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))

	// Guest shopping
	require.NoError(t, eng.Add(ctx, engine.AddInput{
		ProductID: "p1", Quantity: 2, UnitPrice: 15, UnitDiscountedPrice: 10,
	}))
	require.NoError(t, eng.Add(ctx, engine.AddInput{
		ProductID: "p2", VariantID: "v1", Quantity: 1, UnitPrice: 60,
	}))
	eng.SelectAll()

	// Wait until the async guest snapshot holds both lines before logging in
	require.Eventually(t, func() bool {
		data, err := blobs.Read(ctx, "cart:guest-items")
		return err == nil && strings.Contains(string(data), "p2")
	}, time.Second, 10*time.Millisecond)

	token, err := session.SignToken(testSecret, "user-1", time.Hour)
	require.NoError(t, err)
	require.True(t, sess.SetToken(token))

	// Login merged the guest cart into the server and reloaded it
	lines := eng.Lines()
	require.Len(t, lines, 2)
	for _, l := range lines {
		assert.NotEmpty(t, l.RemoteID)
	}
	assert.True(t, eng.IsAllSelected(), "selection must survive the merge reload")

	// Authenticated mutation round-trips through the server
	require.NoError(t, eng.UpdateQuantity(ctx, lines[0].Identity(), 5))
	assert.Equal(t, 5, eng.Lines()[0].Quantity)

	rows, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Logout tears everything down
	sess.ClearToken()
	assert.Empty(t, eng.Lines())
	assert.False(t, eng.Ready())
}

func TestEngine_AuthenticatedPricingComesFromServer(t *testing.T) {
	srv := NewServer(NewMemoryStore(), testProducts(), testSecret, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sess := session.NewTokenSession(testSecret)
	token, err := session.SignToken(testSecret, "user-9", time.Hour)
	require.NoError(t, err)
	require.True(t, sess.SetToken(token))

	eng := engine.New(
		catalog.NewHTTPClient(ts.URL, ts.Client()),
		remote.NewHTTPClient(ts.URL, ts.Client(), sess),
		sess,
		storage.NewMemoryStore(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	defer eng.Close()

	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))

	// The request's price snapshot is ignored on the authenticated path
	require.NoError(t, eng.Add(ctx, engine.AddInput{ProductID: "p1", Quantity: 1, UnitPrice: 999}))

	lines := eng.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 15.0, lines[0].UnitPrice)
	assert.Equal(t, 10.0, lines[0].UnitDiscountedPrice)
	assert.Equal(t, 10.0, eng.TotalPrice())
}
