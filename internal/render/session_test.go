package render

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/journeybff/model"
)

func TestSession_staleResponsesAreDiscarded(t *testing.T) {
	s := NewSession("k")
	first, ok := s.begin()
	require.True(t, ok)
	s.end()
	second, ok := s.begin()
	require.True(t, ok)
	s.end()

	require.True(t, s.apply(second, "J", &model.Step{JourneyStep: "B-2"}))
	assert.False(t, s.apply(first, "J", &model.Step{JourneyStep: "A-1"}))
	assert.Equal(t, "B-2", s.step.JourneyStep)

	assert.False(t, s.setOffers(first, []OfferOption{{Card: model.OfferCard{OfferID: "o1"}}}))
	assert.Nil(t, s.offers)
}

func TestSession_beginIsExclusive(t *testing.T) {
	s := NewSession("k")
	_, ok := s.begin()
	require.True(t, ok)
	_, ok = s.begin()
	assert.False(t, ok)
	s.end()
	_, ok = s.begin()
	assert.True(t, ok)
}

func TestSession_ledgersRecordOnce(t *testing.T) {
	s := NewSession("k")
	key := StepKey("J", "Scoring-2")
	assert.True(t, s.markAutoAdvanced(key))
	assert.False(t, s.markAutoAdvanced(key))
	assert.True(t, s.markAutoAdvanced(StepKey("J2", "Scoring-2")))

	assert.True(t, s.markWidgetHandled(key))
	assert.False(t, s.markWidgetHandled(key))
	s.unmarkWidgetHandled(key)
	assert.True(t, s.markWidgetHandled(key))

	s.reset()
	assert.True(t, s.markAutoAdvanced(key))
}

func TestNewSession_generatesKey(t *testing.T) {
	assert.NotEmpty(t, NewSession("").Key())
	assert.NotEqual(t, NewSession("").Key(), NewSession("").Key())
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2, time.Minute)

	a, err := Open(ctx, store, "a")
	require.NoError(t, err)
	again, err := Open(ctx, store, "a")
	require.NoError(t, err)
	assert.Same(t, a, again)

	_, err = Open(ctx, store, "b")
	require.NoError(t, err)
	_, err = Open(ctx, store, "c")
	require.NoError(t, err)
	_, ok, err := store.Load(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok, "least recently used session is evicted")

	require.NoError(t, store.Delete(ctx, "c"))
	_, ok, _ = store.Load(ctx, "c")
	assert.False(t, ok)
}

func TestMemoryStore_expires(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, 20*time.Millisecond)
	_, err := Open(ctx, store, "a")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		_, ok, _ := store.Load(ctx, "a")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
