package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/DialogueEngine/internal/savesystem"
	"github.com/Corphon/DialogueEngine/internal/storage"
	"github.com/Corphon/DialogueEngine/internal/utils"
)

func TestStatsService(t *testing.T) {
	logger := quietLogger()
	metrics := utils.NewDialogueMetrics(utils.NewMetricsCollector(), logger)
	conversations := NewConversationService(loadFixture(t), ConversationServiceOptions{
		AlwaysForceResponseMenu: true,
		Metrics:                 metrics,
		Logger:                  logger,
	})
	saves := NewSaveService(savesystem.New(storage.NewMemoryStorer(nil, logger)), metrics, logger)
	stats := NewStatsService(metrics, conversations)

	snap, err := conversations.Start(StartRequest{Conversation: "Gate"})
	require.NoError(t, err)
	conversations.Continue(snap.ID)
	conversations.Continue(snap.ID)
	_, err = conversations.Choose(snap.ID, 0)
	require.NoError(t, err)
	require.NoError(t, saves.Save(context.Background(), 0))
	assert.Error(t, saves.Load(context.Background(), 9))

	got := stats.GetStats(false)
	assert.Equal(t, int64(1), got.ConversationsStarted)
	assert.Equal(t, 1, got.ActiveSessions)
	assert.Equal(t, int64(1), got.ResponsesSelected)
	assert.Equal(t, int64(3), got.SubtitlesShown)
	assert.Equal(t, int64(1), got.Saves)
	assert.Equal(t, int64(1), got.LoadFailures)
	assert.Nil(t, got.Metrics)

	assert.NotNil(t, stats.GetStats(true).Metrics)
}
