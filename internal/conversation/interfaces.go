// internal/conversation/interfaces.go
package conversation

import "github.com/Corphon/DialogueEngine/internal/models"

// Model supplies states to the controller. It owns no presentation.
type Model interface {
	FirstState() *State
	GetConversationID(state *State) int
	GetState(entry *models.DialogueEntry) *State
	InformParticipants(message string, linked bool)
	UpdateParticipantsOnLinkedConversation(conversationID int)
	GetConversationOverrideSettings(state *State) *models.ConversationOverrideSettings
	GetPCName() string
	GetPCPortrait() string
	UpdateResponses(state *State)
	SetActorPortrait(actorName, portrait string)
}

// ViewListener receives the events a view raises
type ViewListener interface {
	// OnFinishedSubtitle is raised when the current line's display time elapses.
	OnFinishedSubtitle()
	// OnSelectedResponse is raised when a response is chosen.
	OnSelectedResponse(response *Response)
}

// View presents states and reports back through the bound listener.
// SelectResponse must report the selection to the listener.
type View interface {
	Bind(listener ViewListener)
	Unbind()
	StartSubtitle(subtitle *Subtitle, isPCResponseMenuNext, isPCAutoResponseNext bool)
	ShowLastNPCSubtitle()
	StartResponses(subtitle *Subtitle, responses []*Response)
	SelectResponse(response *Response)
	SetPCPortrait(portrait, name string)
	SetActorPortrait(actorName, portrait string)
	SetConversationOverride(settings *models.ConversationOverrideSettings)
	Close()
}
