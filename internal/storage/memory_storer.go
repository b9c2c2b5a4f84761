// internal/storage/memory_storer.go
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Corphon/DialogueEngine/internal/models"
	"github.com/Corphon/DialogueEngine/internal/savesystem"
	"github.com/Corphon/DialogueEngine/internal/utils"
)

type memorySlot struct {
	sceneName string
	content   string
}

// MemoryStorer keeps serialized saves in process memory.
type MemoryStorer struct {
	mu         sync.RWMutex
	slots      map[int]memorySlot
	serializer savesystem.Serializer
	logger     *utils.Logger
}

// NewMemoryStorer 创建内存存档存储
func NewMemoryStorer(serializer savesystem.Serializer, logger *utils.Logger) *MemoryStorer {
	if serializer == nil {
		serializer = savesystem.JSONSerializer{}
	}
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &MemoryStorer{
		slots:      make(map[int]memorySlot),
		serializer: serializer,
		logger:     logger,
	}
}

// HasDataInSlot implements savesystem.Storer.
func (m *MemoryStorer) HasDataInSlot(ctx context.Context, slot int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.slots[slot]
	return ok
}

// StoreSavedGameData implements savesystem.Storer.
func (m *MemoryStorer) StoreSavedGameData(ctx context.Context, slot int, data *models.SavedGameData) error {
	if slot < 0 {
		return fmt.Errorf("invalid save slot %d", slot)
	}
	content, err := m.serializer.Serialize(data)
	if err != nil {
		m.logger.Error("Failed to serialize saved game", map[string]interface{}{"slot": slot, "error": err.Error()})
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[slot] = memorySlot{sceneName: data.SceneName, content: content}
	return nil
}

// RetrieveSavedGameData implements savesystem.Storer.
func (m *MemoryStorer) RetrieveSavedGameData(ctx context.Context, slot int) *models.SavedGameData {
	m.mu.RLock()
	entry, ok := m.slots[slot]
	m.mu.RUnlock()
	if !ok {
		return models.NewSavedGameData()
	}

	data, err := m.serializer.Deserialize(entry.content)
	if err != nil {
		m.logger.Error("Failed to deserialize saved game", map[string]interface{}{"slot": slot, "error": err.Error()})
		return models.NewSavedGameData()
	}
	return data
}

// DeleteSavedGameData implements savesystem.Storer.
func (m *MemoryStorer) DeleteSavedGameData(ctx context.Context, slot int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, slot)
}

// ListSlots implements savesystem.SlotLister.
func (m *MemoryStorer) ListSlots(ctx context.Context) []savesystem.SlotInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	slots := make([]savesystem.SlotInfo, 0, len(m.slots))
	for slot, entry := range m.slots {
		slots = append(slots, savesystem.SlotInfo{Slot: slot, SceneName: entry.sceneName})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Slot < slots[j].Slot })
	return slots
}
