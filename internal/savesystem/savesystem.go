// internal/savesystem/savesystem.go
package savesystem

import (
	"context"
	"sync"

	"github.com/Corphon/DialogueEngine/internal/errors"
	"github.com/Corphon/DialogueEngine/internal/models"
	"github.com/Corphon/DialogueEngine/internal/utils"
)

// CurrentVersion is stamped on every recorded saved game.
const CurrentVersion = 1

// Option configures a SaveSystem
type Option func(*SaveSystem)

// WithLogger sets the logger used for warnings.
func WithLogger(logger *utils.Logger) Option {
	return func(s *SaveSystem) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry shares an existing saver registry.
func WithRegistry(registry *Registry) Option {
	return func(s *SaveSystem) {
		if registry != nil {
			s.registry = registry
		}
	}
}

// WithScene sets the starting scene.
func WithScene(name string, index int) Option {
	return func(s *SaveSystem) {
		s.sceneName = name
		s.sceneIndex = index
	}
}

// SaveSystem coordinates the live savers, the in-memory saved game and the
// storer that persists slots.
type SaveSystem struct {
	mu         sync.Mutex
	registry   *Registry
	storer     Storer
	data       *models.SavedGameData
	sceneName  string
	sceneIndex int
	scenes     map[string]int
	logger     *utils.Logger
}

// New 创建存档协调器
func New(storer Storer, opts ...Option) *SaveSystem {
	s := &SaveSystem{
		registry: NewRegistry(),
		storer:   storer,
		data:     models.NewSavedGameData(),
		scenes:   make(map[string]int),
		logger:   utils.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sceneName != "" {
		s.scenes[s.sceneName] = s.sceneIndex
	}
	return s
}

// Registry returns the live saver registry.
func (s *SaveSystem) Registry() *Registry {
	return s.registry
}

// Storer returns the slot storer.
func (s *SaveSystem) Storer() Storer {
	return s.storer
}

// CurrentScene returns the active scene name and index.
func (s *SaveSystem) CurrentScene() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sceneName, s.sceneIndex
}

// SavedGameData returns a copy of the in-memory saved game.
func (s *SaveSystem) SavedGameData() *models.SavedGameData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone()
}

// RegisterSaver makes a saver live and hands it any data already held for
// its key.
func (s *SaveSystem) RegisterSaver(saver Saver) {
	if saver == nil {
		return
	}
	s.registry.Register(saver)

	s.mu.Lock()
	data, ok := s.data.GetData(saver.Key())
	s.mu.Unlock()
	if ok {
		saver.ApplyData(data)
	}
}

// UnregisterSaver removes a saver. Its last recorded data stays in the
// saved game.
func (s *SaveSystem) UnregisterSaver(saver Saver) {
	s.registry.Unregister(saver)
}

// sceneIndexFor picks the scene index a saver's record is filed under
func (s *SaveSystem) sceneIndexFor(saver Saver) int {
	if cs, ok := saver.(CrossSceneSaver); ok && cs.SaveAcrossSceneChanges() {
		return models.NoSceneIndex
	}
	return s.sceneIndex
}

// recordLocked asks every live saver for its data. Caller holds s.mu.
func (s *SaveSystem) recordLocked() {
	for _, saver := range s.registry.Savers() {
		s.data.SetData(saver.Key(), s.sceneIndexFor(saver), saver.RecordData())
	}
	s.data.Version = CurrentVersion
	s.data.SceneName = s.sceneName
	s.data.SceneIndex = s.sceneIndex
}

// applyLocked hands stored data to every live saver that has some.
func (s *SaveSystem) applyLocked() {
	for _, saver := range s.registry.Savers() {
		if data, ok := s.data.GetData(saver.Key()); ok {
			saver.ApplyData(data)
		}
	}
}

// RecordSavedGameData records every live saver into the in-memory saved
// game and returns a copy of the result.
func (s *SaveSystem) RecordSavedGameData() *models.SavedGameData {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recordLocked()
	return s.data.Clone()
}

// ApplySavedGameData replaces the in-memory saved game and applies it to
// the live savers. Nil data is treated as empty.
func (s *SaveSystem) ApplySavedGameData(data *models.SavedGameData) {
	if data == nil {
		data = models.NewSavedGameData()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = data.Clone()
	if data.SceneName != "" {
		s.restoreSceneLocked(data.SceneName, data.SceneIndex)
	}
	s.applyLocked()
}

// restoreSceneLocked makes the loaded scene current. Saved games without a
// scene index fall back to the indexes seen in this process.
func (s *SaveSystem) restoreSceneLocked(name string, index int) {
	if index == models.NoSceneIndex {
		known, ok := s.scenes[name]
		if !ok {
			if name != s.sceneName {
				s.logger.Warn("Saved game has no scene index; keeping the current one", map[string]interface{}{
					"scene": name,
					"index": s.sceneIndex,
				})
			}
			s.sceneName = name
			return
		}
		index = known
	}
	s.sceneName = name
	s.sceneIndex = index
	s.scenes[name] = index
	s.data.SceneIndex = index
}

// SaveToSlot records the live savers and writes the result to slot.
func (s *SaveSystem) SaveToSlot(ctx context.Context, slot int) error {
	if s.storer == nil {
		s.logger.Warn("No storer configured; cannot save", map[string]interface{}{"slot": slot})
		return errors.NewProcessingError("no save storer configured", nil)
	}
	data := s.RecordSavedGameData()
	if err := s.storer.StoreSavedGameData(ctx, slot, data); err != nil {
		return errors.NewStorageError("failed to store saved game", err)
	}
	return nil
}

// LoadFromSlot reads slot and applies it. An empty slot is reported as
// not found and leaves the current state untouched.
func (s *SaveSystem) LoadFromSlot(ctx context.Context, slot int) error {
	if s.storer == nil {
		s.logger.Warn("No storer configured; cannot load", map[string]interface{}{"slot": slot})
		return errors.NewProcessingError("no save storer configured", nil)
	}
	if !s.storer.HasDataInSlot(ctx, slot) {
		return errors.NewNotFoundError("save slot "+slotID(slot)+" is empty", nil)
	}
	s.ApplySavedGameData(s.storer.RetrieveSavedGameData(ctx, slot))
	return nil
}

// HasSavedGameInSlot reports whether slot holds a saved game.
func (s *SaveSystem) HasSavedGameInSlot(ctx context.Context, slot int) bool {
	if s.storer == nil {
		return false
	}
	return s.storer.HasDataInSlot(ctx, slot)
}

// DeleteSavedGameInSlot empties slot.
func (s *SaveSystem) DeleteSavedGameInSlot(ctx context.Context, slot int) {
	if s.storer == nil {
		return
	}
	s.storer.DeleteSavedGameData(ctx, slot)
}

// ChangeScene moves to another scene. Live savers are notified and
// re-recorded, records of scenes other than the outgoing one are evicted,
// and the data is applied to the savers left registered.
func (s *SaveSystem) ChangeScene(name string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, saver := range s.registry.Savers() {
		saver.OnBeforeSceneChange()
	}
	s.recordLocked()
	s.data.DeleteObsoleteSaveData(s.sceneIndex)

	s.logger.Info("Changing scene", map[string]interface{}{
		"from":       s.sceneName,
		"to":         name,
		"from_index": s.sceneIndex,
		"to_index":   index,
	})
	s.sceneName = name
	s.sceneIndex = index
	s.scenes[name] = index
	s.data.SceneName = name
	s.data.SceneIndex = index

	s.applyLocked()
}

// ResetGameState discards the in-memory saved game.
func (s *SaveSystem) ResetGameState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = models.NewSavedGameData()
}

// ListSlots enumerates occupied slots when the storer supports it.
func (s *SaveSystem) ListSlots(ctx context.Context) []SlotInfo {
	if lister, ok := s.storer.(SlotLister); ok {
		return lister.ListSlots(ctx)
	}
	return nil
}

// DeleteSavedData drops the record stored under key from the in-memory
// saved game.
func (s *SaveSystem) DeleteSavedData(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.DeleteData(key)
}
