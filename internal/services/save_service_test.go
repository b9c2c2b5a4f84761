package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/DialogueEngine/internal/conversation"
	"github.com/Corphon/DialogueEngine/internal/errors"
	"github.com/Corphon/DialogueEngine/internal/savesystem"
	"github.com/Corphon/DialogueEngine/internal/storage"
	"github.com/Corphon/DialogueEngine/internal/utils"
)

func newTestSaveService(t *testing.T) *SaveService {
	t.Helper()
	logger := quietLogger()
	system := savesystem.New(storage.NewMemoryStorer(nil, logger),
		savesystem.WithLogger(logger),
		savesystem.WithScene("main", 0),
	)
	return NewSaveService(system, utils.NewDialogueMetrics(utils.NewMetricsCollector(), logger), logger)
}

func TestSaveServiceSlots(t *testing.T) {
	ctx := context.Background()
	svc := newTestSaveService(t)

	assert.True(t, errors.IsValidationError(svc.Save(ctx, -1)))
	assert.True(t, errors.IsValidationError(svc.Load(ctx, -1)))
	assert.True(t, errors.IsNotFoundError(svc.Load(ctx, 0)))
	assert.True(t, errors.IsNotFoundError(svc.Delete(ctx, 0)))

	require.NoError(t, svc.Save(ctx, 0))
	assert.Equal(t, []SlotStatus{{Slot: 0, HasData: true, SceneName: "main"}}, svc.Slots(ctx))
	assert.Equal(t, SlotStatus{Slot: 0, HasData: true, SceneName: "main"}, svc.Slot(ctx, 0))
	assert.Equal(t, SlotStatus{Slot: 3}, svc.Slot(ctx, 3))

	require.NoError(t, svc.Delete(ctx, 0))
	assert.Empty(t, svc.Slots(ctx))
}

func TestSaveServiceBlobsSurviveSaveLoad(t *testing.T) {
	ctx := context.Background()
	svc := newTestSaveService(t)
	loads := 0
	svc.OnLoad(func() { loads++ })

	_, err := svc.PutBlob("", "x", false)
	assert.True(t, errors.IsValidationError(err))

	info, err := svc.PutBlob("inventory", "sword", true)
	require.NoError(t, err)
	assert.Equal(t, &BlobInfo{Key: "inventory", Data: "sword", SaveAcrossSceneChanges: true}, info)
	require.NoError(t, svc.Save(ctx, 1))

	_, err = svc.PutBlob("inventory", "shield", true)
	require.NoError(t, err)
	require.NoError(t, svc.Load(ctx, 1))
	assert.Equal(t, 1, loads)

	info, err = svc.GetBlob("inventory")
	require.NoError(t, err)
	assert.Equal(t, "sword", info.Data)

	require.NoError(t, svc.DeleteBlob("inventory"))
	_, err = svc.GetBlob("inventory")
	assert.True(t, errors.IsNotFoundError(err))
	assert.True(t, errors.IsNotFoundError(svc.DeleteBlob("inventory")))
	assert.Empty(t, svc.Record())
}

func TestSaveServiceBlobKeyConflict(t *testing.T) {
	svc := newTestSaveService(t)
	svc.System().RegisterSaver(conversation.NewVariableTable())

	_, err := svc.PutBlob(conversation.VariablesSaveKey, "[]", true)
	assert.True(t, errors.IsConflictError(err))
	_, err = svc.GetBlob(conversation.VariablesSaveKey)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestSaveServiceRegisterPicksUpHeldData(t *testing.T) {
	ctx := context.Background()
	svc := newTestSaveService(t)

	_, err := svc.PutBlob("quest", "started", false)
	require.NoError(t, err)
	require.NoError(t, svc.Save(ctx, 0))
	require.NoError(t, svc.DeleteBlob("quest"))

	require.NoError(t, svc.Load(ctx, 0))
	info, err := svc.PutBlob("quest", "", false)
	require.NoError(t, err)
	assert.Equal(t, "started", info.Data)
}

func TestSaveServiceScenes(t *testing.T) {
	svc := newTestSaveService(t)
	assert.Equal(t, &SceneInfo{Name: "main", Index: 0}, svc.Scene())

	_, err := svc.ChangeScene("", 1)
	assert.True(t, errors.IsValidationError(err))
	_, err = svc.ChangeScene("Forest", -1)
	assert.True(t, errors.IsValidationError(err))

	_, err = svc.PutBlob("town_npc", "talked", false)
	require.NoError(t, err)
	_, err = svc.PutBlob("player", "hp=10", true)
	require.NoError(t, err)

	scene, err := svc.ChangeScene("Forest", 1)
	require.NoError(t, err)
	assert.Equal(t, &SceneInfo{Name: "Forest", Index: 1}, scene)
	assert.Len(t, svc.Records(), 2)

	require.NoError(t, svc.DeleteBlob("town_npc"))
	_, err = svc.ChangeScene("Cave", 2)
	require.NoError(t, err)

	records := svc.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "player", records[0].Key)

	svc.Reset()
	assert.Empty(t, svc.Records())
}
