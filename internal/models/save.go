// internal/models/save.go
package models

import "sync"

// NoSceneIndex marks a record that persists across scene changes.
const NoSceneIndex = -1

// SaveRecord is one saver's payload inside a saved game
type SaveRecord struct {
	Key        string `json:"key"`
	SceneIndex int    `json:"sceneIndex"`
	Data       string `json:"data"`
}

// SavedGameData holds the records of one save slot. Records keep their
// insertion order so serialized files stay stable between saves.
type SavedGameData struct {
	Version   int
	SceneName string
	// SceneIndex is NoSceneIndex when the saved game predates scene indexes
	SceneIndex int

	mu      sync.RWMutex
	records []SaveRecord
	index   map[string]int
}

// NewSavedGameData 创建空的存档数据
func NewSavedGameData() *SavedGameData {
	return &SavedGameData{SceneIndex: NoSceneIndex, index: make(map[string]int)}
}

// NewSavedGameDataFromRecords rebuilds saved game data from decoded records.
// A later duplicate key overwrites the earlier one.
func NewSavedGameDataFromRecords(version int, sceneName string, records []SaveRecord) *SavedGameData {
	data := NewSavedGameData()
	data.Version = version
	data.SceneName = sceneName
	for _, r := range records {
		data.SetData(r.Key, r.SceneIndex, r.Data)
	}
	return data
}

// GetData returns the payload stored under key.
func (d *SavedGameData) GetData(key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	i, ok := d.index[key]
	if !ok {
		return "", false
	}
	return d.records[i].Data, true
}

// SetData inserts or overwrites the record for key.
func (d *SavedGameData) SetData(key string, sceneIndex int, data string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.index == nil {
		d.index = make(map[string]int)
	}
	if i, ok := d.index[key]; ok {
		d.records[i].SceneIndex = sceneIndex
		d.records[i].Data = data
		return
	}
	d.index[key] = len(d.records)
	d.records = append(d.records, SaveRecord{Key: key, SceneIndex: sceneIndex, Data: data})
}

// DeleteObsoleteSaveData keeps only records belonging to currentSceneIndex
// or marked NoSceneIndex.
func (d *SavedGameData) DeleteObsoleteSaveData(currentSceneIndex int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.records[:0]
	for _, r := range d.records {
		if r.SceneIndex == currentSceneIndex || r.SceneIndex == NoSceneIndex {
			kept = append(kept, r)
		}
	}
	// clear the tail so dropped payloads can be collected
	for i := len(kept); i < len(d.records); i++ {
		d.records[i] = SaveRecord{}
	}
	d.records = kept
	d.index = make(map[string]int, len(kept))
	for i, r := range kept {
		d.index[r.Key] = i
	}
}

// DeleteData removes the record for key if present.
func (d *SavedGameData) DeleteData(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	i, ok := d.index[key]
	if !ok {
		return
	}
	d.records = append(d.records[:i], d.records[i+1:]...)
	delete(d.index, key)
	for j := i; j < len(d.records); j++ {
		d.index[d.records[j].Key] = j
	}
}

// Records returns a copy of the records in insertion order.
func (d *SavedGameData) Records() []SaveRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]SaveRecord, len(d.records))
	copy(out, d.records)
	return out
}

// Count returns the number of records.
func (d *SavedGameData) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// Keys returns the record keys in insertion order.
func (d *SavedGameData) Keys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	keys := make([]string, len(d.records))
	for i, r := range d.records {
		keys[i] = r.Key
	}
	return keys
}

// Clone returns an independent copy.
func (d *SavedGameData) Clone() *SavedGameData {
	clone := NewSavedGameDataFromRecords(d.Version, d.SceneName, d.Records())
	clone.SceneIndex = d.SceneIndex
	return clone
}
