package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorer(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorer(nil, quietLogger())

	assert.False(t, s.HasDataInSlot(ctx, 0))
	assert.Equal(t, 0, s.RetrieveSavedGameData(ctx, 0).Count())

	require.NoError(t, s.StoreSavedGameData(ctx, 4, sampleGame("Cave")))
	require.NoError(t, s.StoreSavedGameData(ctx, 1, sampleGame("Town")))
	assert.Error(t, s.StoreSavedGameData(ctx, -1, sampleGame("Town")))
	assert.Error(t, s.StoreSavedGameData(ctx, 2, nil))

	got := s.RetrieveSavedGameData(ctx, 4)
	assert.Equal(t, "Cave", got.SceneName)
	assert.Equal(t, 2, got.Count())

	slots := s.ListSlots(ctx)
	require.Len(t, slots, 2)
	assert.Equal(t, 1, slots[0].Slot)
	assert.Equal(t, "Cave", slots[1].SceneName)

	s.DeleteSavedGameData(ctx, 4)
	assert.False(t, s.HasDataInSlot(ctx, 4))
}
