// internal/savesystem/storer.go
package savesystem

import (
	"context"
	"strconv"

	"github.com/Corphon/DialogueEngine/internal/models"
)

// Storer persists saved games by slot number. Implementations log I/O
// failures and turn them into absent results; they never panic.
type Storer interface {
	// HasDataInSlot reports whether slot holds a saved game.
	HasDataInSlot(ctx context.Context, slot int) bool
	// StoreSavedGameData writes data to slot. The error is informational:
	// a failed store leaves the slot's previous content in place.
	StoreSavedGameData(ctx context.Context, slot int, data *models.SavedGameData) error
	// RetrieveSavedGameData returns the slot's data, or empty data when the
	// slot is empty or unreadable.
	RetrieveSavedGameData(ctx context.Context, slot int) *models.SavedGameData
	// DeleteSavedGameData empties slot.
	DeleteSavedGameData(ctx context.Context, slot int)
}

// SlotInfo summarizes an occupied slot
type SlotInfo struct {
	Slot      int    `json:"slot"`
	SceneName string `json:"scene_name"`
}

// SlotLister is implemented by storers that can enumerate occupied slots.
type SlotLister interface {
	ListSlots(ctx context.Context) []SlotInfo
}

func slotID(slot int) string {
	return strconv.Itoa(slot)
}
