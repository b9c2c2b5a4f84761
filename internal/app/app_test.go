package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/DialogueEngine/internal/config"
	"github.com/Corphon/DialogueEngine/internal/di"
	"github.com/Corphon/DialogueEngine/internal/errors"
	"github.com/Corphon/DialogueEngine/internal/services"
	"github.com/Corphon/DialogueEngine/internal/storage"
	"github.com/Corphon/DialogueEngine/internal/utils"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir:     dir,
		LogDir:      filepath.Join(dir, "logs"),
		DialogueDB:  "../../data/dialogue.json",
		SaveBackend: backend,
		SaveDir:     filepath.Join(dir, "saves"),
		SceneName:   "Town",
	}
}

func quietLogger() *utils.Logger {
	return utils.NewLogger(io.Discard, utils.FATAL)
}

func TestNewRegistersServices(t *testing.T) {
	a, err := New(testConfig(t, config.BackendMemory), quietLogger())
	require.NoError(t, err)
	defer a.Close()

	conversations, err := di.Resolve[*services.ConversationService](a.Container, di.ServiceConversations)
	require.NoError(t, err)
	assert.Same(t, a.Conversations, conversations)

	saves, err := di.Resolve[*services.SaveService](a.Container, di.ServiceSaves)
	require.NoError(t, err)
	assert.Same(t, a.Saves, saves)

	cache, err := di.Resolve[*storage.DatabaseCache](a.Container, di.ServiceDatabaseCache)
	require.NoError(t, err)
	assert.Same(t, a.DatabaseCache, cache)

	require.NotNil(t, a.Conversations.Database())
	assert.Len(t, a.Conversations.Database().Conversations, 2)
	assert.Equal(t, "Town", a.Saves.Scene().Name)
}

func TestVariablesSurviveSaveAndLoad(t *testing.T) {
	for _, backend := range []string{config.BackendMemory, config.BackendDisk, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			a, err := New(testConfig(t, backend), quietLogger())
			require.NoError(t, err)
			defer a.Close()

			ctx := context.Background()
			a.Conversations.SetVariable("brave", true)
			require.NoError(t, a.Saves.Save(ctx, 1))

			a.Conversations.SetVariable("brave", false)
			require.NoError(t, a.Saves.Load(ctx, 1))
			assert.True(t, a.Conversations.Variables().Get("brave"))

			err = a.Saves.Load(ctx, 2)
			assert.True(t, errors.IsNotFoundError(err))
		})
	}
}

func TestSQLiteBackendPersists(t *testing.T) {
	cfg := testConfig(t, config.BackendSQLite)
	ctx := context.Background()

	a, err := New(cfg, quietLogger())
	require.NoError(t, err)
	a.Conversations.SetVariable("passed_gate", true)
	require.NoError(t, a.Saves.Save(ctx, 0))
	require.NoError(t, a.Close())

	_, err = os.Stat(filepath.Join(cfg.SaveDir, "saves.db"))
	require.NoError(t, err)

	b, err := New(cfg, quietLogger())
	require.NoError(t, err)
	defer b.Close()
	assert.False(t, b.Conversations.Variables().Get("passed_gate"))
	require.NoError(t, b.Saves.Load(ctx, 0))
	assert.True(t, b.Conversations.Variables().Get("passed_gate"))
}

func TestMissingDatabase(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.DialogueDB = filepath.Join(cfg.DataDir, "missing.json")

	a, err := New(cfg, quietLogger())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Conversations.Start(services.StartRequest{Conversation: "Gate"})
	assert.True(t, errors.IsNotFoundError(err))

	require.NoError(t, a.Saves.Save(context.Background(), 0))
}

func TestUnknownBackend(t *testing.T) {
	_, err := New(testConfig(t, "tape"), quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tape")

	_, err = New(nil, quietLogger())
	assert.Error(t, err)
}

type countingCloser struct{ closed int }

func (c *countingCloser) Close() error {
	c.closed++
	return nil
}

func TestCloseEndsSessions(t *testing.T) {
	a, err := New(testConfig(t, config.BackendMemory), quietLogger())
	require.NoError(t, err)

	closer := &countingCloser{}
	a.AddCloser(closer)
	a.AddCloser(nil)

	_, err = a.Conversations.Start(services.StartRequest{Conversation: "Gate"})
	require.NoError(t, err)
	require.Equal(t, 1, a.Conversations.ActiveCount())

	require.NoError(t, a.Close())
	assert.Zero(t, a.Conversations.ActiveCount())
	assert.Equal(t, 1, closer.closed)

	require.NoError(t, a.Close())
	assert.Equal(t, 1, closer.closed)
}

func TestSetupLogger(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.LogLevel = "off"

	logger := SetupLogger(cfg)
	defer logger.Close()
	defer logger.Enable(true)

	logger.Error("not written", nil)
	require.NoError(t, logger.Close())
	content, err := os.ReadFile(filepath.Join(cfg.LogDir, LogFileName))
	require.NoError(t, err)
	assert.Empty(t, content)
}
