// internal/conversation/model.go
package conversation

import (
	"strconv"

	"github.com/Corphon/DialogueEngine/internal/errors"
	"github.com/Corphon/DialogueEngine/internal/models"
)

// Message is what participants receive on conversation start, end and
// linked-conversation jumps.
type Message struct {
	Name           string        `json:"name"`
	ConversationID int           `json:"conversation_id"`
	Actor          CharacterInfo `json:"actor"`
	Conversant     CharacterInfo `json:"conversant"`
	Linked         bool          `json:"linked"`
}

// Participant is notified about the conversations it takes part in
type Participant interface {
	OnConversationMessage(msg Message)
}

// ParticipantFunc adapts a function to Participant.
type ParticipantFunc func(msg Message)

// OnConversationMessage implements Participant.
func (f ParticipantFunc) OnConversationMessage(msg Message) { f(msg) }

// ModelOptions selects the conversation and its participants
type ModelOptions struct {
	ConversationTitle string
	ConversationID    int // used when ConversationTitle is empty
	StartEntryID      int // 0 is the START entry
	Actor             string
	Conversant        string
	Evaluator         Evaluator
	Scripts           ScriptRunner
	Participants      []Participant
}

// DatabaseModel implements Model over a DialogueDatabase.
type DatabaseModel struct {
	db           *models.DialogueDatabase
	runtime      *Runtime
	conversation *models.Conversation
	evaluator    Evaluator
	scripts      ScriptRunner
	participants []Participant
	portraits    map[string]string

	actor      CharacterInfo
	conversant CharacterInfo
	firstState *State
}

// NewDatabaseModel builds a model and materializes its first state.
func NewDatabaseModel(db *models.DialogueDatabase, runtime *Runtime, opts ModelOptions) (*DatabaseModel, error) {
	if db == nil {
		return nil, errors.NewValidationError("dialogue database is required", nil)
	}
	if runtime == nil {
		runtime = NewRuntime("")
	}

	var conv *models.Conversation
	if opts.ConversationTitle != "" {
		conv = db.GetConversationByTitle(opts.ConversationTitle)
	} else {
		conv = db.GetConversation(opts.ConversationID)
	}
	if conv == nil {
		return nil, errors.NewNotFoundError("conversation not found: "+conversationLabel(opts), nil)
	}

	start := conv.GetEntry(opts.StartEntryID)
	if start == nil {
		return nil, errors.NewNotFoundError("start entry not found in "+conv.Title, nil)
	}

	m := &DatabaseModel{
		db:           db,
		runtime:      runtime,
		conversation: conv,
		evaluator:    opts.Evaluator,
		scripts:      opts.Scripts,
		participants: opts.Participants,
		portraits:    make(map[string]string),
	}
	if m.evaluator == nil {
		m.evaluator = AlwaysValid{}
	}
	m.actor = m.resolveParticipant(opts.Actor, conv.ActorID)
	m.conversant = m.resolveParticipant(opts.Conversant, conv.ConversantID)
	m.firstState = m.GetState(start)
	return m, nil
}

func conversationLabel(opts ModelOptions) string {
	if opts.ConversationTitle != "" {
		return opts.ConversationTitle
	}
	return "#" + strconv.Itoa(opts.ConversationID)
}

// Conversation returns the conversation currently walked.
func (m *DatabaseModel) Conversation() *models.Conversation {
	return m.conversation
}

// Actor returns the conversation's actor.
func (m *DatabaseModel) Actor() CharacterInfo { return m.actor }

// Conversant returns the conversation's conversant.
func (m *DatabaseModel) Conversant() CharacterInfo { return m.conversant }

// FirstState implements Model.
func (m *DatabaseModel) FirstState() *State {
	return m.firstState
}

// GetConversationID implements Model.
func (m *DatabaseModel) GetConversationID(state *State) int {
	if entry := state.Entry(); entry != nil {
		return entry.ConversationID
	}
	return m.conversation.ID
}

// GetState runs the entry's script and evaluates its links.
func (m *DatabaseModel) GetState(entry *models.DialogueEntry) *State {
	if entry == nil {
		return nil
	}
	if m.scripts != nil {
		m.scripts.Run(entry)
	}

	state := &State{
		Subtitle: &Subtitle{
			Speaker:       m.characterInfo(entry.ActorID),
			Listener:      m.characterInfo(entry.ConversantID),
			FormattedText: entry.Text(m.runtime.Language),
			Sequence:      entry.Sequence,
			DialogueEntry: entry,
		},
		IsGroup: entry.IsGroup,
	}
	state.NPCResponses, state.PCResponses = m.evaluateLinks(entry)
	return state
}

// UpdateResponses re-evaluates the links of state's entry.
func (m *DatabaseModel) UpdateResponses(state *State) {
	entry := state.Entry()
	if entry == nil {
		return
	}
	state.NPCResponses, state.PCResponses = m.evaluateLinks(entry)
}

// evaluateLinks walks priority levels from highest to lowest and stops at the
// first level with a valid destination.
func (m *DatabaseModel) evaluateLinks(entry *models.DialogueEntry) (npc, pc []*Response) {
	for p := models.PriorityVeryHigh; p >= models.PriorityVeryLow; p-- {
		for _, link := range entry.Links {
			if clampPriority(link.Priority) != p {
				continue
			}
			dest := m.db.GetEntry(link.DestinationConversationID, link.DestinationEntryID)
			if dest == nil {
				m.runtime.logger().Warn("dialogue link points to a missing entry", map[string]interface{}{
					"conversation": entry.ConversationID,
					"entry":        entry.ID,
					"destination":  strconv.Itoa(link.DestinationConversationID) + ":" + strconv.Itoa(link.DestinationEntryID),
				})
				continue
			}
			if !m.evaluator.IsValid(dest) {
				continue
			}
			resp := m.newResponse(dest)
			if m.isPlayerEntry(dest) {
				pc = append(pc, resp)
			} else {
				npc = append(npc, resp)
			}
		}
		if len(npc)+len(pc) > 0 {
			break
		}
	}
	return npc, pc
}

func clampPriority(p models.LinkPriority) models.LinkPriority {
	if p < models.PriorityVeryLow {
		return models.PriorityVeryLow
	}
	if p > models.PriorityVeryHigh {
		return models.PriorityVeryHigh
	}
	return p
}

func (m *DatabaseModel) newResponse(dest *models.DialogueEntry) *Response {
	text, forceMenu, forceAuto := ParseResponseText(dest.Menu(m.runtime.Language))
	return &Response{
		DestinationEntry: dest,
		FormattedText:    text,
		Enabled:          true,
		ForceMenu:        forceMenu,
		ForceAuto:        forceAuto,
	}
}

func (m *DatabaseModel) isPlayerEntry(entry *models.DialogueEntry) bool {
	actor := m.db.GetActor(entry.ActorID)
	return actor != nil && actor.IsPlayer
}

// InformParticipants implements Model.
func (m *DatabaseModel) InformParticipants(message string, linked bool) {
	msg := Message{
		Name:           message,
		ConversationID: m.conversation.ID,
		Actor:          m.actor,
		Conversant:     m.conversant,
		Linked:         linked,
	}
	for _, p := range m.participants {
		if p != nil {
			p.OnConversationMessage(msg)
		}
	}
}

// UpdateParticipantsOnLinkedConversation rebinds to the linked
// conversation's participants where it defines them.
func (m *DatabaseModel) UpdateParticipantsOnLinkedConversation(conversationID int) {
	conv := m.db.GetConversation(conversationID)
	if conv == nil {
		return
	}
	m.conversation = conv
	if m.db.GetActor(conv.ActorID) != nil {
		m.actor = m.characterInfo(conv.ActorID)
	}
	if m.db.GetActor(conv.ConversantID) != nil {
		m.conversant = m.characterInfo(conv.ConversantID)
	}
}

// GetConversationOverrideSettings implements Model.
func (m *DatabaseModel) GetConversationOverrideSettings(state *State) *models.ConversationOverrideSettings {
	conv := m.db.GetConversation(m.GetConversationID(state))
	if conv == nil {
		return nil
	}
	return conv.OverrideSettings
}

// GetPCName implements Model.
func (m *DatabaseModel) GetPCName() string {
	return m.playerInfo().Name
}

// GetPCPortrait implements Model.
func (m *DatabaseModel) GetPCPortrait() string {
	return m.playerInfo().Portrait
}

func (m *DatabaseModel) playerInfo() CharacterInfo {
	if m.actor.IsPlayer {
		return m.actor
	}
	if m.conversant.IsPlayer {
		return m.conversant
	}
	for _, a := range m.db.Actors {
		if a.IsPlayer {
			return m.characterInfo(a.ID)
		}
	}
	return m.actor
}

// SetActorPortrait implements Model.
func (m *DatabaseModel) SetActorPortrait(actorName, portrait string) {
	m.portraits[actorName] = portrait
	if m.actor.Name == actorName {
		m.actor.Portrait = portrait
	}
	if m.conversant.Name == actorName {
		m.conversant.Portrait = portrait
	}
}

func (m *DatabaseModel) resolveParticipant(name string, fallbackID int) CharacterInfo {
	if name != "" {
		if a := m.db.GetActorByName(name); a != nil {
			return m.characterInfo(a.ID)
		}
		return CharacterInfo{ID: -1, Name: name}
	}
	return m.characterInfo(fallbackID)
}

func (m *DatabaseModel) characterInfo(actorID int) CharacterInfo {
	a := m.db.GetActor(actorID)
	if a == nil {
		return CharacterInfo{ID: actorID}
	}
	info := CharacterInfo{ID: a.ID, Name: a.Name, IsPlayer: a.IsPlayer, Portrait: a.Portrait}
	if p, ok := m.portraits[a.Name]; ok {
		info.Portrait = p
	}
	return info
}
