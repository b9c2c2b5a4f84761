// internal/storage/disk_storer.go
package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/Corphon/DialogueEngine/internal/models"
	"github.com/Corphon/DialogueEngine/internal/savesystem"
	"github.com/Corphon/DialogueEngine/internal/utils"
)

const (
	// SaveInfoFilename is the sidecar index recording each slot's scene
	SaveInfoFilename = "saveinfo.dat"

	saveFilePrefix = "save_"
	saveFileSuffix = ".dat"

	// newlineMarker replaces "\n" inside scene names in the sidecar
	newlineMarker = "<cr>"

	// unnamedScene stands in for an empty scene name so the slot still
	// counts as occupied
	unnamedScene = "unnamed"
)

// DiskOptions configures a DiskStorer
type DiskOptions struct {
	Dir        string
	Encrypt    bool
	Password   string
	Serializer savesystem.Serializer
	Logger     *utils.Logger
}

// DiskStorer keeps one file per slot plus a line-oriented sidecar index
// naming the scene each slot was saved from.
type DiskStorer struct {
	files      *FileStorage
	serializer savesystem.Serializer
	encrypt    bool
	password   string
	logger     *utils.Logger

	mu         sync.Mutex
	sceneNames []string
}

// NewDiskStorer 创建磁盘存档存储，并读取存档索引
func NewDiskStorer(opts DiskOptions) (*DiskStorer, error) {
	files, err := NewFileStorage(opts.Dir)
	if err != nil {
		return nil, err
	}
	if opts.Serializer == nil {
		opts.Serializer = savesystem.JSONSerializer{}
	}
	if opts.Logger == nil {
		opts.Logger = utils.GetLogger()
	}
	if opts.Encrypt && opts.Password == "" {
		opts.Logger.Warn("Save encryption enabled without a password; saves stay in plain text", nil)
		opts.Encrypt = false
	}

	d := &DiskStorer{
		files:      files,
		serializer: opts.Serializer,
		encrypt:    opts.Encrypt,
		password:   opts.Password,
		logger:     opts.Logger,
	}
	d.sceneNames = d.readSaveInfo()
	return d, nil
}

// SlotFilename returns the data file name used for slot.
func SlotFilename(slot int) string {
	return saveFilePrefix + strconv.Itoa(slot) + saveFileSuffix
}

// EscapeSceneName makes a scene name safe for one sidecar line.
func EscapeSceneName(name string) string {
	return strings.ReplaceAll(name, "\n", newlineMarker)
}

// UnescapeSceneName reverses EscapeSceneName.
func UnescapeSceneName(line string) string {
	return strings.ReplaceAll(line, newlineMarker, "\n")
}

// readSaveInfo loads the sidecar. A missing or unreadable sidecar yields an
// empty index.
func (d *DiskStorer) readSaveInfo() []string {
	if !d.files.FileExists(SaveInfoFilename) {
		return nil
	}
	content, err := d.files.ReadFile(SaveInfoFilename)
	if err != nil || !utf8.Valid(content) {
		d.logger.Warn("Save info index is unreadable; treating all slots as empty", map[string]interface{}{
			"file":  d.files.Path(SaveInfoFilename),
			"error": fmt.Sprint(err),
		})
		return nil
	}

	// only "\n" is escaped in scene names, so a "\r" belongs to the name
	text := strings.TrimSuffix(string(content), "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	names := make([]string, len(lines))
	for i, line := range lines {
		names[i] = UnescapeSceneName(line)
	}
	return names
}

// writeSaveInfoLocked persists the sidecar. Caller holds d.mu.
func (d *DiskStorer) writeSaveInfoLocked() {
	var b strings.Builder
	for _, name := range d.sceneNames {
		b.WriteString(EscapeSceneName(name))
		b.WriteString("\n")
	}
	if err := d.files.WriteFile(SaveInfoFilename, []byte(b.String())); err != nil {
		d.logger.Error("Failed to write save info index", map[string]interface{}{"error": err.Error()})
	}
}

func (d *DiskStorer) sceneNameLocked(slot int) string {
	if slot < 0 || slot >= len(d.sceneNames) {
		return ""
	}
	return d.sceneNames[slot]
}

func (d *DiskStorer) setSceneNameLocked(slot int, name string) {
	for len(d.sceneNames) <= slot {
		d.sceneNames = append(d.sceneNames, "")
	}
	d.sceneNames[slot] = name
	// trailing empty lines carry no information
	for len(d.sceneNames) > 0 && d.sceneNames[len(d.sceneNames)-1] == "" {
		d.sceneNames = d.sceneNames[:len(d.sceneNames)-1]
	}
}

// SceneNameInSlot returns the scene recorded for slot, or "" when empty.
func (d *DiskStorer) SceneNameInSlot(slot int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sceneNameLocked(slot)
}

// HasDataInSlot implements savesystem.Storer.
func (d *DiskStorer) HasDataInSlot(ctx context.Context, slot int) bool {
	d.mu.Lock()
	name := d.sceneNameLocked(slot)
	d.mu.Unlock()
	return name != "" && d.files.FileExists(SlotFilename(slot))
}

// StoreSavedGameData implements savesystem.Storer.
func (d *DiskStorer) StoreSavedGameData(ctx context.Context, slot int, data *models.SavedGameData) error {
	if slot < 0 {
		err := fmt.Errorf("invalid save slot %d", slot)
		d.logger.Warn("Refusing to store saved game", map[string]interface{}{"slot": slot})
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	content, err := d.serializer.Serialize(data)
	if err != nil {
		d.logger.Error("Failed to serialize saved game", map[string]interface{}{"slot": slot, "error": err.Error()})
		return err
	}
	if d.encrypt {
		content, err = utils.Encrypt(content, d.password)
		if err != nil {
			d.logger.Error("Failed to encrypt saved game", map[string]interface{}{"slot": slot, "error": err.Error()})
			return err
		}
	}

	if err := d.files.WriteFile(SlotFilename(slot), []byte(content)); err != nil {
		d.logger.Error("Failed to write saved game", map[string]interface{}{
			"slot":  slot,
			"file":  d.files.Path(SlotFilename(slot)),
			"error": err.Error(),
		})
		return err
	}

	sceneName := data.SceneName
	if sceneName == "" {
		sceneName = unnamedScene
	}
	d.mu.Lock()
	d.setSceneNameLocked(slot, sceneName)
	d.writeSaveInfoLocked()
	d.mu.Unlock()

	d.logger.Debug("Stored saved game", map[string]interface{}{"slot": slot, "scene": sceneName})
	return nil
}

// RetrieveSavedGameData implements savesystem.Storer.
func (d *DiskStorer) RetrieveSavedGameData(ctx context.Context, slot int) *models.SavedGameData {
	if slot < 0 || ctx.Err() != nil {
		return models.NewSavedGameData()
	}
	name := SlotFilename(slot)
	if !d.files.FileExists(name) {
		return models.NewSavedGameData()
	}

	raw, err := d.files.ReadFile(name)
	if err != nil {
		d.logger.Error("Failed to read saved game", map[string]interface{}{"slot": slot, "error": err.Error()})
		return models.NewSavedGameData()
	}

	content := string(raw)
	if d.encrypt {
		content, err = utils.Decrypt(content, d.password)
		if err != nil {
			d.logger.Error("Failed to decrypt saved game", map[string]interface{}{"slot": slot, "error": err.Error()})
			return models.NewSavedGameData()
		}
	}

	data, err := d.serializer.Deserialize(content)
	if err != nil {
		d.logger.Error("Failed to deserialize saved game", map[string]interface{}{"slot": slot, "error": err.Error()})
		return models.NewSavedGameData()
	}
	return data
}

// DeleteSavedGameData implements savesystem.Storer.
func (d *DiskStorer) DeleteSavedGameData(ctx context.Context, slot int) {
	if slot < 0 {
		return
	}
	if err := d.files.DeleteFile(SlotFilename(slot)); err != nil {
		d.logger.Error("Failed to delete saved game", map[string]interface{}{"slot": slot, "error": err.Error()})
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sceneNameLocked(slot) != "" {
		d.setSceneNameLocked(slot, "")
		d.writeSaveInfoLocked()
	}
}

// ListSlots implements savesystem.SlotLister.
func (d *DiskStorer) ListSlots(ctx context.Context) []savesystem.SlotInfo {
	d.mu.Lock()
	names := make([]string, len(d.sceneNames))
	copy(names, d.sceneNames)
	d.mu.Unlock()

	var slots []savesystem.SlotInfo
	for slot, name := range names {
		if name == "" || !d.files.FileExists(SlotFilename(slot)) {
			continue
		}
		slots = append(slots, savesystem.SlotInfo{Slot: slot, SceneName: name})
	}
	return slots
}
