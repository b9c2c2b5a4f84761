package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/DialogueEngine/internal/models"
	"github.com/Corphon/DialogueEngine/internal/utils"
)

func quietLogger() *utils.Logger {
	return utils.NewLogger(io.Discard, utils.FATAL)
}

func newTestDiskStorer(t *testing.T, dir string, password string) *DiskStorer {
	t.Helper()
	s, err := NewDiskStorer(DiskOptions{
		Dir:      dir,
		Encrypt:  password != "",
		Password: password,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	return s
}

func sampleGame(scene string) *models.SavedGameData {
	data := models.NewSavedGameData()
	data.Version = 1
	data.SceneName = scene
	data.SetData("quest", 0, "started")
	data.SetData("dialogue_variables", models.NoSceneIndex, `[{"name":"brave","value":true}]`)
	return data
}

func TestDiskStorerRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestDiskStorer(t, dir, "")

	assert.False(t, s.HasDataInSlot(ctx, 2))
	require.NoError(t, s.StoreSavedGameData(ctx, 2, sampleGame("Town\nSquare")))
	assert.True(t, s.HasDataInSlot(ctx, 2))
	assert.False(t, s.HasDataInSlot(ctx, 0))
	assert.Equal(t, "Town\nSquare", s.SceneNameInSlot(2))

	sidecar, err := os.ReadFile(filepath.Join(dir, SaveInfoFilename))
	require.NoError(t, err)
	assert.Equal(t, "\n\nTown<cr>Square\n", string(sidecar))

	got := s.RetrieveSavedGameData(ctx, 2)
	assert.Equal(t, sampleGame("").Records(), got.Records())
	assert.Equal(t, "Town\nSquare", got.SceneName)

	reopened := newTestDiskStorer(t, dir, "")
	assert.True(t, reopened.HasDataInSlot(ctx, 2))
	assert.Equal(t, "Town\nSquare", reopened.SceneNameInSlot(2))
}

func TestDiskStorerUnnamedScene(t *testing.T) {
	ctx := context.Background()
	s := newTestDiskStorer(t, t.TempDir(), "")

	require.NoError(t, s.StoreSavedGameData(ctx, 0, sampleGame("")))
	assert.True(t, s.HasDataInSlot(ctx, 0))
	assert.Equal(t, "unnamed", s.SceneNameInSlot(0))
}

func TestDiskStorerDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestDiskStorer(t, dir, "")

	require.NoError(t, s.StoreSavedGameData(ctx, 0, sampleGame("A")))
	require.NoError(t, s.StoreSavedGameData(ctx, 1, sampleGame("B")))

	s.DeleteSavedGameData(ctx, 1)
	assert.False(t, s.HasDataInSlot(ctx, 1))
	assert.NoFileExists(t, filepath.Join(dir, SlotFilename(1)))

	sidecar, err := os.ReadFile(filepath.Join(dir, SaveInfoFilename))
	require.NoError(t, err)
	assert.Equal(t, "A\n", string(sidecar))

	s.DeleteSavedGameData(ctx, 7)
	assert.Equal(t, 0, s.RetrieveSavedGameData(ctx, 1).Count())
}

func TestDiskStorerListSlots(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestDiskStorer(t, dir, "")

	require.NoError(t, s.StoreSavedGameData(ctx, 3, sampleGame("Cave")))
	require.NoError(t, s.StoreSavedGameData(ctx, 1, sampleGame("Town")))
	require.NoError(t, os.Remove(filepath.Join(dir, SlotFilename(3))))

	slots := s.ListSlots(ctx)
	require.Len(t, slots, 1)
	assert.Equal(t, 1, slots[0].Slot)
	assert.Equal(t, "Town", slots[0].SceneName)
}

func TestDiskStorerCorruptFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestDiskStorer(t, dir, "")
	require.NoError(t, s.StoreSavedGameData(ctx, 0, sampleGame("Town")))

	require.NoError(t, os.WriteFile(filepath.Join(dir, SlotFilename(0)), []byte("{broken"), 0o644))

	reopened := newTestDiskStorer(t, dir, "")
	assert.True(t, reopened.HasDataInSlot(ctx, 0))
	assert.Equal(t, 0, reopened.RetrieveSavedGameData(ctx, 0).Count())
}

func TestDiskStorerUnreadableSidecar(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestDiskStorer(t, dir, "")
	require.NoError(t, s.StoreSavedGameData(ctx, 0, sampleGame("Town")))

	require.NoError(t, os.WriteFile(filepath.Join(dir, SaveInfoFilename), []byte{0xff, 0xfe, '\n'}, 0o644))

	reopened := newTestDiskStorer(t, dir, "")
	assert.False(t, reopened.HasDataInSlot(ctx, 0))
	assert.Empty(t, reopened.ListSlots(ctx))
}

func TestDiskStorerShortSidecar(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SaveInfoFilename), []byte("Town\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, SlotFilename(0)), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, SlotFilename(5)), []byte("{}"), 0o644))

	s := newTestDiskStorer(t, dir, "")
	assert.True(t, s.HasDataInSlot(ctx, 0))
	assert.False(t, s.HasDataInSlot(ctx, 5))
	assert.Equal(t, "", s.SceneNameInSlot(5))

	slots := s.ListSlots(ctx)
	require.Len(t, slots, 1)
	assert.Equal(t, 0, slots[0].Slot)
}

func TestDiskStorerSceneNameWithCarriageReturn(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestDiskStorer(t, dir, "")

	require.NoError(t, s.StoreSavedGameData(ctx, 0, sampleGame("Dock\r")))
	require.NoError(t, s.StoreSavedGameData(ctx, 1, sampleGame("Pier")))

	reopened := newTestDiskStorer(t, dir, "")
	assert.Equal(t, "Dock\r", reopened.SceneNameInSlot(0))
	assert.Equal(t, "Pier", reopened.SceneNameInSlot(1))
}

func TestDiskStorerEncryption(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestDiskStorer(t, dir, "secret")

	require.NoError(t, s.StoreSavedGameData(ctx, 0, sampleGame("Town")))
	raw, err := os.ReadFile(filepath.Join(dir, SlotFilename(0)))
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "quest"))

	assert.Equal(t, 2, s.RetrieveSavedGameData(ctx, 0).Count())

	wrong := newTestDiskStorer(t, dir, "guess")
	assert.Equal(t, 0, wrong.RetrieveSavedGameData(ctx, 0).Count())

	plain := newTestDiskStorer(t, dir, "")
	assert.Equal(t, 0, plain.RetrieveSavedGameData(ctx, 0).Count())
}

func TestDiskStorerRejectsNegativeSlot(t *testing.T) {
	ctx := context.Background()
	s := newTestDiskStorer(t, t.TempDir(), "")

	assert.Error(t, s.StoreSavedGameData(ctx, -1, sampleGame("Town")))
	assert.False(t, s.HasDataInSlot(ctx, -1))
	assert.Equal(t, 0, s.RetrieveSavedGameData(ctx, -1).Count())
}

func TestSceneNameEscaping(t *testing.T) {
	assert.Equal(t, "a<cr>b", EscapeSceneName("a\nb"))
	assert.Equal(t, "a\nb", UnescapeSceneName("a<cr>b"))
	assert.Equal(t, "save_12.dat", SlotFilename(12))
}
