package drive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
)

func TestEnsureUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.users.EnsureUser(ctx, &models.AccessClaims{})
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	claims := &models.AccessClaims{Email: " Alice@Example.com ", Name: "Alice"}
	claims.Subject = "alice"
	u, err := h.users.EnsureUser(ctx, claims)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", u.Email)
	require.Equal(t, int64(testQuota), u.StorageLimit)

	_, err = h.users.SetPublicKey(ctx, "alice", "pk")
	require.NoError(t, err)

	claims.Name = "Alice L."
	again, err := h.users.EnsureUser(ctx, claims)
	require.NoError(t, err)
	require.Equal(t, "Alice L.", again.DisplayName)
	require.Equal(t, "pk", again.PublicKey, "profile refresh keeps the key")
}

func TestLookupByEmail(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.user(t, "bob")

	summary, err := h.users.LookupByEmail(ctx, "BOB@example.com")
	require.NoError(t, err)
	require.Equal(t, "bob", summary.ID)
	require.Equal(t, "pk-bob", summary.PublicKey)

	_, err = h.users.LookupByEmail(ctx, "not-an-email")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.users.LookupByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetPublicKey_Required(t *testing.T) {
	h := newHarness(t)
	h.user(t, "carol")

	_, err := h.users.SetPublicKey(context.Background(), "carol", "   ")
	require.ErrorIs(t, err, domain.ErrValidation)
}
