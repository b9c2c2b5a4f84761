// internal/services/save_service.go
package services

import (
	"context"
	"sync"

	"github.com/Corphon/DialogueEngine/internal/errors"
	"github.com/Corphon/DialogueEngine/internal/models"
	"github.com/Corphon/DialogueEngine/internal/savesystem"
	"github.com/Corphon/DialogueEngine/internal/utils"
)

// SlotStatus 存档槽状态
type SlotStatus struct {
	Slot      int    `json:"slot"`
	HasData   bool   `json:"has_data"`
	SceneName string `json:"scene_name,omitempty"`
}

// SceneInfo describes the active scene
type SceneInfo struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// BlobInfo is the state of a remotely held saver
type BlobInfo struct {
	Key                    string `json:"key"`
	Data                   string `json:"data"`
	SaveAcrossSceneChanges bool   `json:"save_across_scene_changes"`
}

// SaveService 为传输层包装存档协调器
type SaveService struct {
	system  *savesystem.SaveSystem
	metrics *utils.DialogueMetrics
	logger  *utils.Logger

	mu     sync.Mutex
	blobs  map[string]*savesystem.BlobSaver
	onLoad []func()
}

// NewSaveService 创建存档服务
func NewSaveService(system *savesystem.SaveSystem, metrics *utils.DialogueMetrics, logger *utils.Logger) *SaveService {
	if logger == nil {
		logger = utils.GetLogger()
	}
	if metrics == nil {
		metrics = utils.NewDialogueMetrics(nil, logger)
	}
	return &SaveService{
		system:  system,
		metrics: metrics,
		logger:  logger,
		blobs:   make(map[string]*savesystem.BlobSaver),
	}
}

// System returns the underlying coordinator.
func (s *SaveService) System() *savesystem.SaveSystem {
	return s.system
}

// OnLoad registers fn to run after a slot has been applied.
func (s *SaveService) OnLoad(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLoad = append(s.onLoad, fn)
}

func validSlot(slot int) error {
	if slot < 0 {
		return errors.NewValidationError("save slot must not be negative", nil)
	}
	return nil
}

// Save records the live savers into slot.
func (s *SaveService) Save(ctx context.Context, slot int) error {
	if err := validSlot(slot); err != nil {
		return err
	}
	err := s.system.SaveToSlot(ctx, slot)
	s.metrics.RecordSave(slot, err)
	if err != nil {
		s.logger.Error("Save failed", map[string]interface{}{"slot": slot, "error": err.Error()})
		return err
	}
	s.logger.Info("Game saved", map[string]interface{}{"slot": slot})
	return nil
}

// Load applies slot to the live savers and runs the OnLoad hooks.
func (s *SaveService) Load(ctx context.Context, slot int) error {
	if err := validSlot(slot); err != nil {
		return err
	}
	err := s.system.LoadFromSlot(ctx, slot)
	s.metrics.RecordLoad(slot, err)
	if err != nil {
		return err
	}

	s.mu.Lock()
	hooks := append([]func(){}, s.onLoad...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	s.logger.Info("Game loaded", map[string]interface{}{"slot": slot})
	return nil
}

// Delete empties slot.
func (s *SaveService) Delete(ctx context.Context, slot int) error {
	if err := validSlot(slot); err != nil {
		return err
	}
	if !s.system.HasSavedGameInSlot(ctx, slot) {
		return errors.NewNotFoundError("save slot is empty", nil)
	}
	s.system.DeleteSavedGameInSlot(ctx, slot)
	return nil
}

// Slot returns the status of one slot.
func (s *SaveService) Slot(ctx context.Context, slot int) SlotStatus {
	status := SlotStatus{Slot: slot, HasData: s.system.HasSavedGameInSlot(ctx, slot)}
	if status.HasData {
		for _, info := range s.system.ListSlots(ctx) {
			if info.Slot == slot {
				status.SceneName = info.SceneName
				break
			}
		}
	}
	return status
}

// Slots lists occupied slots.
func (s *SaveService) Slots(ctx context.Context) []SlotStatus {
	infos := s.system.ListSlots(ctx)
	out := make([]SlotStatus, 0, len(infos))
	for _, info := range infos {
		out = append(out, SlotStatus{Slot: info.Slot, HasData: true, SceneName: info.SceneName})
	}
	return out
}

// Records returns the in-memory saved game records.
func (s *SaveService) Records() []models.SaveRecord {
	return s.system.SavedGameData().Records()
}

// Record re-records the live savers and returns the result.
func (s *SaveService) Record() []models.SaveRecord {
	return s.system.RecordSavedGameData().Records()
}

// PutBlob creates or updates a remotely held saver.
func (s *SaveService) PutBlob(key, data string, acrossScenes bool) (*BlobInfo, error) {
	if key == "" {
		return nil, errors.NewValidationError("saver key is required", nil)
	}

	s.mu.Lock()
	blob, exists := s.blobs[key]
	if !exists {
		blob = savesystem.NewBlobSaver(key, acrossScenes)
		s.blobs[key] = blob
	}
	s.mu.Unlock()

	if exists {
		blob.SetAcrossSceneChanges(acrossScenes)
		blob.ApplyData(data)
	} else {
		if _, taken := s.system.Registry().Get(key); taken {
			s.mu.Lock()
			delete(s.blobs, key)
			s.mu.Unlock()
			return nil, errors.NewConflictError("saver key is owned by another component: "+key, nil)
		}
		// registering hands the blob any data already saved under its key;
		// the caller's data wins when given
		s.system.RegisterSaver(blob)
		if data != "" {
			blob.ApplyData(data)
		}
	}
	return blobInfo(blob), nil
}

// GetBlob returns a remotely held saver.
func (s *SaveService) GetBlob(key string) (*BlobInfo, error) {
	s.mu.Lock()
	blob, ok := s.blobs[key]
	s.mu.Unlock()
	if !ok {
		return nil, errors.NewNotFoundError("saver not found: "+key, nil)
	}
	return blobInfo(blob), nil
}

// DeleteBlob unregisters a remotely held saver and drops its saved record.
func (s *SaveService) DeleteBlob(key string) error {
	s.mu.Lock()
	blob, ok := s.blobs[key]
	delete(s.blobs, key)
	s.mu.Unlock()
	if !ok {
		return errors.NewNotFoundError("saver not found: "+key, nil)
	}
	s.system.UnregisterSaver(blob)
	s.system.DeleteSavedData(key)
	return nil
}

func blobInfo(blob *savesystem.BlobSaver) *BlobInfo {
	return &BlobInfo{
		Key:                    blob.Key(),
		Data:                   blob.RecordData(),
		SaveAcrossSceneChanges: blob.SaveAcrossSceneChanges(),
	}
}

// ChangeScene moves the save system to another scene.
func (s *SaveService) ChangeScene(name string, index int) (*SceneInfo, error) {
	if name == "" {
		return nil, errors.NewValidationError("scene name is required", nil)
	}
	if index < 0 {
		return nil, errors.NewValidationError("scene index must not be negative", nil)
	}
	s.system.ChangeScene(name, index)
	s.metrics.RecordSceneChange(name)
	return s.Scene(), nil
}

// Scene returns the active scene.
func (s *SaveService) Scene() *SceneInfo {
	name, index := s.system.CurrentScene()
	return &SceneInfo{Name: name, Index: index}
}

// Reset discards the in-memory saved game.
func (s *SaveService) Reset() {
	s.system.ResetGameState()
}
