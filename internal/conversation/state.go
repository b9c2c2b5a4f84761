// internal/conversation/state.go
package conversation

import (
	"math/rand"
	"regexp"
	"strings"

	"github.com/Corphon/DialogueEngine/internal/models"
)

// CharacterInfo describes a participant as the view should present it
type CharacterInfo struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	IsPlayer bool   `json:"is_player"`
	Portrait string `json:"portrait,omitempty"`
}

// Subtitle is one displayable line
type Subtitle struct {
	Speaker       CharacterInfo         `json:"speaker"`
	Listener      CharacterInfo         `json:"listener"`
	FormattedText string                `json:"formatted_text"`
	Sequence      string                `json:"sequence,omitempty"`
	DialogueEntry *models.DialogueEntry `json:"-"`
}

// EntryID returns the id of the entry behind the subtitle, or -1.
func (s *Subtitle) EntryID() int {
	if s == nil || s.DialogueEntry == nil {
		return -1
	}
	return s.DialogueEntry.ID
}

// Response is an option leading to another entry
type Response struct {
	DestinationEntry *models.DialogueEntry `json:"-"`
	FormattedText    string                `json:"formatted_text"`
	Enabled          bool                  `json:"enabled"`
	ForceMenu        bool                  `json:"force_menu,omitempty"`
	ForceAuto        bool                  `json:"force_auto,omitempty"`
}

// State is the materialized view of an entry at evaluation time. A new State
// is built on every transition and never reused.
type State struct {
	Subtitle     *Subtitle
	NPCResponses []*Response
	PCResponses  []*Response
	IsGroup      bool

	// set by the controller when the state is presented
	IsPCResponseMenuNext bool
	IsPCAutoResponseNext bool
}

// HasNPCResponse reports whether an NPC line follows this state.
func (s *State) HasNPCResponse() bool {
	return len(s.NPCResponses) > 0
}

// HasPCResponses reports whether the player can respond.
func (s *State) HasPCResponses() bool {
	return len(s.PCResponses) > 0
}

// FirstNPCResponse returns the first valid NPC continuation, or nil.
func (s *State) FirstNPCResponse() *Response {
	if len(s.NPCResponses) == 0 {
		return nil
	}
	return s.NPCResponses[0]
}

// RandomNPCResponse picks uniformly among the valid NPC continuations.
func (s *State) RandomNPCResponse(r *rand.Rand) *Response {
	if len(s.NPCResponses) == 0 {
		return nil
	}
	return s.NPCResponses[r.Intn(len(s.NPCResponses))]
}

// PCAutoResponse returns the response taken without showing a menu: the
// first force-auto response, otherwise the first response.
func (s *State) PCAutoResponse() *Response {
	for _, r := range s.PCResponses {
		if r.ForceAuto {
			return r
		}
	}
	if len(s.PCResponses) == 0 {
		return nil
	}
	return s.PCResponses[0]
}

// Entry returns the dialogue entry the state was built from.
func (s *State) Entry() *models.DialogueEntry {
	if s == nil || s.Subtitle == nil {
		return nil
	}
	return s.Subtitle.DialogueEntry
}

// AnalyzePCResponses classifies what follows a state's line. Content
// libraries depend on the exact formula: a force-auto response stops the
// scan, so force-menu flags on later responses are not seen.
func AnalyzePCResponses(state *State, alwaysForceMenu bool) (isPCResponseMenuNext, isPCAutoResponseNext bool) {
	hasForceMenu := false
	hasForceAuto := false
	numPCResponses := len(state.PCResponses)
	for _, r := range state.PCResponses {
		if r.ForceMenu {
			hasForceMenu = true
		}
		if r.ForceAuto {
			hasForceAuto = true
			break
		}
	}
	hasNPCResponse := state.HasNPCResponse()

	isPCResponseMenuNext = !hasNPCResponse && !hasForceAuto &&
		(numPCResponses > 1 || hasForceMenu || (numPCResponses == 1 && alwaysForceMenu))

	isPCAutoResponseNext = (!hasNPCResponse && hasForceAuto) ||
		(numPCResponses == 1 && !hasForceMenu &&
			(!alwaysForceMenu || isGroupDestination(state.PCResponses[0])))
	return isPCResponseMenuNext, isPCAutoResponseNext
}

func isGroupDestination(r *Response) bool {
	return r.DestinationEntry != nil && r.DestinationEntry.IsGroup
}

var responseTags = regexp.MustCompile(`\[(f|auto)\]`)

// ParseResponseText strips the [f] and [auto] markup from menu text and
// reports which flags were present.
func ParseResponseText(text string) (formatted string, forceMenu, forceAuto bool) {
	for _, m := range responseTags.FindAllStringSubmatch(text, -1) {
		switch m[1] {
		case "f":
			forceMenu = true
		case "auto":
			forceAuto = true
		}
	}
	formatted = strings.TrimSpace(responseTags.ReplaceAllString(text, ""))
	return formatted, forceMenu, forceAuto
}
