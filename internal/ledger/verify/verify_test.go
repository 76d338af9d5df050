package verify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/internal/ledger"
	dErrors "veritas/pkg/domain-errors"
)

// corruptingSource wraps a store and mutates the copies it hands out, so
// tests can simulate tampering with persisted data without touching the
// store's append-only internals.
type corruptingSource struct {
	ledger.Store
	corrupt func(*ledger.Event)
}

func (c *corruptingSource) Query(ctx context.Context, filter ledger.Filter, page ledger.Page) ([]*ledger.Event, error) {
	events, err := c.Store.Query(ctx, filter, page)
	if err != nil {
		return nil, err
	}
	if c.corrupt != nil {
		for _, event := range events {
			c.corrupt(event)
		}
	}
	return events, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedChain(t *testing.T, n int) *ledger.InMemoryStore {
	t.Helper()
	store := ledger.NewInMemoryStore()
	for i := 0; i < n; i++ {
		_, err := store.Append(context.Background(), ledger.Draft{
			ActorType: ledger.ActorUser,
			ActorID:   "u1",
			Payload: ledger.GrantedPayload{
				ConsentID: fmt.Sprintf("c%d", i),
				UserID:    "u1",
				AppID:     "app-demo-v1",
				Purposes:  []ledger.PurposeLink{{PurposeCode: "CORE_FUNCTION", DataCategories: []string{"email", "profile"}}},
			},
		})
		require.NoError(t, err)
	}
	return store
}

func TestVerifyUntamperedChain(t *testing.T) {
	store := seedChain(t, 7)
	engine := NewEngine(store, testLogger(), WithBatchSize(3))

	report, err := engine.Verify(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, report.Status)
	assert.Equal(t, 7, report.VerifiedCount)
	assert.Empty(t, report.Violations)
}

func TestVerifyEmptyLedger(t *testing.T) {
	engine := NewEngine(ledger.NewInMemoryStore(), testLogger())

	report, err := engine.Verify(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, report.Status)
	assert.Zero(t, report.VerifiedCount)
}

func TestVerifyPayloadCorruption(t *testing.T) {
	store := seedChain(t, 8)
	source := &corruptingSource{Store: store, corrupt: func(e *ledger.Event) {
		if e.Sequence == 2 {
			e.ActorID = "intruder"
		}
	}}
	engine := NewEngine(source, testLogger())

	report, err := engine.Verify(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, report.Status)
	assert.Equal(t, 8, report.VerifiedCount)

	// A single corrupted event yields a single finding. Later events link to
	// the stored hash, so the corruption does not cascade down the chain.
	require.Len(t, report.Violations, 1)
	assert.Equal(t, int64(2), report.Violations[0].Sequence)
	assert.Equal(t, KindPayloadMismatch, report.Violations[0].Kind)
}

func TestVerifyCorruptedHashAtSequence(t *testing.T) {
	store := seedChain(t, 8)
	source := &corruptingSource{Store: store, corrupt: func(e *ledger.Event) {
		if e.Sequence == 5 {
			e.HashCurrent = "0000000000000000000000000000000000000000000000000000000000000001"
		}
	}}
	engine := NewEngine(source, testLogger())

	report, err := engine.Verify(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, report.Status)

	// Overwriting hash_current breaks two facts: the event no longer matches
	// its own hash, and its successor no longer anchors to it. Nothing past
	// sequence 6 is implicated.
	require.Len(t, report.Violations, 2)
	assert.Equal(t, int64(5), report.Violations[0].Sequence)
	assert.Equal(t, KindPayloadMismatch, report.Violations[0].Kind)
	assert.Equal(t, int64(6), report.Violations[1].Sequence)
	assert.Equal(t, KindLinkBreak, report.Violations[1].Kind)
}

func TestVerifyTamperedTail(t *testing.T) {
	store := seedChain(t, 6)
	_, err := store.TamperTail(context.Background())
	require.NoError(t, err)

	engine := NewEngine(store, testLogger())
	report, err := engine.Verify(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, report.Status)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, int64(5), report.Violations[0].Sequence)
	assert.Equal(t, KindPayloadMismatch, report.Violations[0].Kind)
}

func TestVerifyIncremental(t *testing.T) {
	store := seedChain(t, 10)
	engine := NewEngine(store, testLogger())

	report, err := engine.Verify(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, report.Status)
	assert.Equal(t, 6, report.VerifiedCount)

	t.Run("negative from_sequence rejected", func(t *testing.T) {
		_, err := engine.Verify(context.Background(), -1)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("from_sequence past tail rejected", func(t *testing.T) {
		_, err := engine.Verify(context.Background(), 42)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func TestVerifyCancellable(t *testing.T) {
	store := seedChain(t, 5)
	engine := NewEngine(store, testLogger(), WithBatchSize(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Verify(ctx, 0)
	require.Error(t, err)
}
