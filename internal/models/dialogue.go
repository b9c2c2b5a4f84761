// internal/models/dialogue.go
package models

import (
	"encoding/json"
	"fmt"
	"os"
)

// StartEntryID is the entry every conversation begins at unless told otherwise.
const StartEntryID = 0

// LinkPriority orders outgoing links. Higher levels are evaluated first.
type LinkPriority int

const (
	PriorityVeryLow LinkPriority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityVeryHigh
)

// Actor is a speaker that can take part in conversations
type Actor struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	IsPlayer bool   `json:"is_player"`
	Portrait string `json:"portrait,omitempty"`
}

// Link points from one entry to another, possibly in another conversation
type Link struct {
	DestinationConversationID int          `json:"destination_conversation_id"`
	DestinationEntryID        int          `json:"destination_entry_id"`
	Priority                  LinkPriority `json:"priority"`
}

// UnmarshalJSON decodes a link. Links without a priority are Normal.
func (l *Link) UnmarshalJSON(b []byte) error {
	type rawLink Link
	link := rawLink{Priority: PriorityNormal}
	if err := json.Unmarshal(b, &link); err != nil {
		return err
	}
	*l = Link(link)
	return nil
}

// DialogueEntry is a node of the conversation graph
type DialogueEntry struct {
	ID                int               `json:"id"`
	ConversationID    int               `json:"conversation_id"`
	ActorID           int               `json:"actor_id"`
	ConversantID      int               `json:"conversant_id"`
	IsGroup           bool              `json:"is_group,omitempty"`
	Title             string            `json:"title,omitempty"`
	DialogueText      string            `json:"dialogue_text,omitempty"`
	MenuText          string            `json:"menu_text,omitempty"`
	LocalizedText     map[string]string `json:"localized_text,omitempty"`
	LocalizedMenuText map[string]string `json:"localized_menu_text,omitempty"`
	Sequence          string            `json:"sequence,omitempty"`
	Conditions        []string          `json:"conditions,omitempty"` // flag names, "!flag" negates
	Script            []string          `json:"script,omitempty"`     // "flag" sets, "!flag" clears
	Links             []Link            `json:"links,omitempty"`
}

// Text returns the dialogue text for language, falling back to the default text.
func (e *DialogueEntry) Text(language string) string {
	if language != "" {
		if text, ok := e.LocalizedText[language]; ok && text != "" {
			return text
		}
	}
	return e.DialogueText
}

// Menu returns the response menu text for language. Entries without menu
// text use their dialogue text.
func (e *DialogueEntry) Menu(language string) string {
	if language != "" {
		if text, ok := e.LocalizedMenuText[language]; ok && text != "" {
			return text
		}
	}
	if e.MenuText != "" {
		return e.MenuText
	}
	return e.Text(language)
}

// ConversationOverrideSettings 对话级别的显示覆盖设置
type ConversationOverrideSettings struct {
	UseOverrides                    bool    `json:"use_overrides"`
	AlwaysForceResponseMenu         bool    `json:"always_force_response_menu"`
	SkipPCSubtitleAfterResponseMenu bool    `json:"skip_pc_subtitle_after_response_menu"`
	ShowPCSubtitlesDuringLine       bool    `json:"show_pc_subtitles_during_line"`
	SubtitleCharsPerSecond          float64 `json:"subtitle_chars_per_second,omitempty"`
	MinSubtitleSeconds              float64 `json:"min_subtitle_seconds,omitempty"`
}

// Conversation is a named graph of dialogue entries
type Conversation struct {
	ID               int                           `json:"id"`
	Title            string                        `json:"title"`
	ActorID          int                           `json:"actor_id"`
	ConversantID     int                           `json:"conversant_id"`
	OverrideSettings *ConversationOverrideSettings `json:"override_settings,omitempty"`
	Entries          []DialogueEntry               `json:"entries"`
}

// GetEntry returns the entry with the given id, or nil.
func (c *Conversation) GetEntry(entryID int) *DialogueEntry {
	for i := range c.Entries {
		if c.Entries[i].ID == entryID {
			return &c.Entries[i]
		}
	}
	return nil
}

// DialogueDatabase is the immutable content the conversation engine reads.
type DialogueDatabase struct {
	Version       string         `json:"version,omitempty"`
	Actors        []Actor        `json:"actors"`
	Conversations []Conversation `json:"conversations"`
}

// LoadDialogueDatabase 从JSON文件加载对话数据库
func LoadDialogueDatabase(path string) (*DialogueDatabase, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dialogue database: %w", err)
	}
	return ParseDialogueDatabase(content)
}

// ParseDialogueDatabase decodes a database and stamps each entry with its
// owning conversation id.
func ParseDialogueDatabase(content []byte) (*DialogueDatabase, error) {
	var db DialogueDatabase
	if err := json.Unmarshal(content, &db); err != nil {
		return nil, fmt.Errorf("parse dialogue database: %w", err)
	}
	for ci := range db.Conversations {
		conv := &db.Conversations[ci]
		for ei := range conv.Entries {
			conv.Entries[ei].ConversationID = conv.ID
		}
	}
	return &db, nil
}

// GetActor returns the actor with the given id, or nil.
func (db *DialogueDatabase) GetActor(actorID int) *Actor {
	for i := range db.Actors {
		if db.Actors[i].ID == actorID {
			return &db.Actors[i]
		}
	}
	return nil
}

// GetActorByName returns the actor with the given name, or nil.
func (db *DialogueDatabase) GetActorByName(name string) *Actor {
	for i := range db.Actors {
		if db.Actors[i].Name == name {
			return &db.Actors[i]
		}
	}
	return nil
}

// GetConversation returns the conversation with the given id, or nil.
func (db *DialogueDatabase) GetConversation(conversationID int) *Conversation {
	for i := range db.Conversations {
		if db.Conversations[i].ID == conversationID {
			return &db.Conversations[i]
		}
	}
	return nil
}

// GetConversationByTitle returns the conversation with the given title, or nil.
func (db *DialogueDatabase) GetConversationByTitle(title string) *Conversation {
	for i := range db.Conversations {
		if db.Conversations[i].Title == title {
			return &db.Conversations[i]
		}
	}
	return nil
}

// GetEntry resolves a (conversation, entry) pair.
func (db *DialogueDatabase) GetEntry(conversationID, entryID int) *DialogueEntry {
	conv := db.GetConversation(conversationID)
	if conv == nil {
		return nil
	}
	return conv.GetEntry(entryID)
}

// Validate reports dangling links, unknown actors and missing START entries.
func (db *DialogueDatabase) Validate() []string {
	var problems []string
	for ci := range db.Conversations {
		conv := &db.Conversations[ci]
		if conv.GetEntry(StartEntryID) == nil {
			problems = append(problems, fmt.Sprintf("conversation %d (%s): missing START entry", conv.ID, conv.Title))
		}
		for ei := range conv.Entries {
			entry := &conv.Entries[ei]
			if !entry.IsGroup && entry.ID != StartEntryID && db.GetActor(entry.ActorID) == nil {
				problems = append(problems, fmt.Sprintf("conversation %d entry %d: unknown actor %d", conv.ID, entry.ID, entry.ActorID))
			}
			for _, link := range entry.Links {
				if db.GetEntry(link.DestinationConversationID, link.DestinationEntryID) == nil {
					problems = append(problems, fmt.Sprintf("conversation %d entry %d: link to missing entry %d:%d",
						conv.ID, entry.ID, link.DestinationConversationID, link.DestinationEntryID))
				}
			}
		}
	}
	return problems
}
