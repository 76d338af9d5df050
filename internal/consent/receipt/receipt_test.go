package receipt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/internal/ledger"
	dErrors "veritas/pkg/domain-errors"
)

func grantEvent(t *testing.T) *ledger.Event {
	t.Helper()
	store := ledger.NewInMemoryStore()
	event, err := store.Append(context.Background(), ledger.Draft{
		ActorType: ledger.ActorUser,
		ActorID:   "u1",
		Payload: ledger.GrantedPayload{
			ConsentID: "c1",
			UserID:    "u1",
			AppID:     "app-demo-v1",
			Purposes:  []ledger.PurposeLink{{PurposeCode: "CORE_FUNCTION", DataCategories: []string{"email"}}},
		},
	})
	require.NoError(t, err)
	return event
}

func TestIssueAndParse(t *testing.T) {
	signer := NewSigner("receipt-key", "https://veritas.local")
	event := grantEvent(t)

	token, err := signer.Issue(event, "Chrome on Mac OS X")
	require.NoError(t, err)

	claims, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "c1", claims.ConsentID)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, event.ID, claims.EventID)
	assert.Equal(t, event.Sequence, claims.Sequence)
	assert.Equal(t, event.HashCurrent, claims.EventHash)
	assert.Equal(t, "Chrome on Mac OS X", claims.Device)
}

func TestIssueRejectsNonGrantEvents(t *testing.T) {
	signer := NewSigner("receipt-key", "https://veritas.local")
	store := ledger.NewInMemoryStore()
	_, err := store.Append(context.Background(), ledger.Draft{
		ActorType: ledger.ActorUser,
		ActorID:   "u1",
		Payload: ledger.GrantedPayload{
			ConsentID: "c1", UserID: "u1", AppID: "app-demo-v1",
			Purposes: []ledger.PurposeLink{{PurposeCode: "CORE_FUNCTION", DataCategories: []string{"email"}}},
		},
	})
	require.NoError(t, err)
	revoke, err := store.Append(context.Background(), ledger.Draft{
		ActorType: ledger.ActorUser,
		ActorID:   "u1",
		Payload:   ledger.RevokedPayload{ConsentID: "c1", UserID: "u1", AppID: "app-demo-v1", Reason: "user request"},
	})
	require.NoError(t, err)

	_, err = signer.Issue(revoke, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestParseRejections(t *testing.T) {
	signer := NewSigner("receipt-key", "https://veritas.local")
	event := grantEvent(t)

	t.Run("empty receipt", func(t *testing.T) {
		_, err := signer.Parse("")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("wrong key", func(t *testing.T) {
		other := NewSigner("another-key", "https://veritas.local")
		token, err := other.Issue(event, "")
		require.NoError(t, err)

		_, err = signer.Parse(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewSigner("receipt-key", "https://impostor.local")
		token, err := other.Issue(event, "")
		require.NoError(t, err)

		_, err = signer.Parse(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
