// internal/services/session_view.go
package services

import (
	"sync"
	"time"

	"github.com/Corphon/DialogueEngine/internal/conversation"
	"github.com/Corphon/DialogueEngine/internal/models"
	"github.com/Corphon/DialogueEngine/internal/utils"
)

// Session phases
const (
	PhaseStarting  = "starting"
	PhaseSubtitle  = "subtitle"
	PhaseResponses = "responses"
	PhaseClosed    = "closed"
)

// SubtitleView is a subtitle as sent to clients
type SubtitleView struct {
	Speaker        conversation.CharacterInfo `json:"speaker"`
	Listener       conversation.CharacterInfo `json:"listener"`
	Text           string                     `json:"text"`
	Sequence       string                     `json:"sequence,omitempty"`
	EntryID        int                        `json:"entry_id"`
	ConversationID int                        `json:"conversation_id"`
}

// ResponseView is one selectable response as sent to clients
type ResponseView struct {
	Index   int    `json:"index"`
	Text    string `json:"text"`
	Enabled bool   `json:"enabled"`
	EntryID int    `json:"entry_id"`
}

// SessionSnapshot is what a session currently shows
type SessionSnapshot struct {
	ID                   string                               `json:"id"`
	ConversationID       int                                  `json:"conversation_id"`
	ConversationTitle    string                               `json:"conversation_title"`
	Actor                conversation.CharacterInfo           `json:"actor"`
	Conversant           conversation.CharacterInfo           `json:"conversant"`
	PCName               string                               `json:"pc_name,omitempty"`
	PCPortrait           string                               `json:"pc_portrait,omitempty"`
	Active               bool                                 `json:"active"`
	Phase                string                               `json:"phase"`
	Subtitle             *SubtitleView                        `json:"subtitle,omitempty"`
	Responses            []ResponseView                       `json:"responses,omitempty"`
	IsPCResponseMenuNext bool                                 `json:"is_pc_response_menu_next"`
	IsPCAutoResponseNext bool                                 `json:"is_pc_auto_response_next"`
	Override             *models.ConversationOverrideSettings `json:"override,omitempty"`
	Portraits            map[string]string                    `json:"portraits,omitempty"`
	StartedAt            time.Time                            `json:"started_at"`
	UpdatedAt            time.Time                            `json:"updated_at"`
}

// SessionView implements conversation.View by recording what would be on
// screen and publishing each change. Its listener is the controller.
type SessionView struct {
	mu        sync.Mutex
	listener  conversation.ViewListener
	snapshot  SessionSnapshot
	responses []*conversation.Response
	publisher Publisher
	metrics   *utils.DialogueMetrics
}

// NewSessionView 创建会话视图
func NewSessionView(sessionID string, publisher Publisher, metrics *utils.DialogueMetrics) *SessionView {
	now := time.Now()
	return &SessionView{
		snapshot: SessionSnapshot{
			ID:        sessionID,
			Phase:     PhaseStarting,
			Active:    true,
			StartedAt: now,
			UpdatedAt: now,
		},
		publisher: publisher,
		metrics:   metrics,
	}
}

// Bind implements conversation.View.
func (v *SessionView) Bind(listener conversation.ViewListener) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listener = listener
}

// Unbind implements conversation.View.
func (v *SessionView) Unbind() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listener = nil
}

func newSubtitleView(sub *conversation.Subtitle) *SubtitleView {
	if sub == nil {
		return nil
	}
	view := &SubtitleView{
		Speaker:  sub.Speaker,
		Listener: sub.Listener,
		Text:     sub.FormattedText,
		Sequence: sub.Sequence,
		EntryID:  sub.EntryID(),
	}
	if sub.DialogueEntry != nil {
		view.ConversationID = sub.DialogueEntry.ConversationID
	}
	return view
}

// StartSubtitle implements conversation.View.
func (v *SessionView) StartSubtitle(subtitle *conversation.Subtitle, isPCResponseMenuNext, isPCAutoResponseNext bool) {
	v.mu.Lock()
	v.snapshot.Phase = PhaseSubtitle
	v.snapshot.Subtitle = newSubtitleView(subtitle)
	v.snapshot.Responses = nil
	v.responses = nil
	v.snapshot.IsPCResponseMenuNext = isPCResponseMenuNext
	v.snapshot.IsPCAutoResponseNext = isPCAutoResponseNext
	if v.snapshot.Subtitle != nil && v.snapshot.Subtitle.ConversationID != 0 {
		v.snapshot.ConversationID = v.snapshot.Subtitle.ConversationID
	}
	event := v.eventLocked(EventSubtitle, v.snapshot.Subtitle)
	v.mu.Unlock()

	if v.metrics != nil {
		v.metrics.RecordSubtitle()
	}
	v.publish(event)
}

// ShowLastNPCSubtitle implements conversation.View. Group entries keep the
// previous line on screen.
func (v *SessionView) ShowLastNPCSubtitle() {
	v.mu.Lock()
	v.snapshot.Phase = PhaseSubtitle
	v.snapshot.Responses = nil
	v.responses = nil
	event := v.eventLocked(EventSubtitle, v.snapshot.Subtitle)
	v.mu.Unlock()

	v.publish(event)
}

// StartResponses implements conversation.View.
func (v *SessionView) StartResponses(subtitle *conversation.Subtitle, responses []*conversation.Response) {
	views := make([]ResponseView, len(responses))
	for i, r := range responses {
		views[i] = ResponseView{Index: i, Text: r.FormattedText, Enabled: r.Enabled, EntryID: -1}
		if r.DestinationEntry != nil {
			views[i].EntryID = r.DestinationEntry.ID
		}
	}

	v.mu.Lock()
	v.snapshot.Phase = PhaseResponses
	if subtitle != nil {
		v.snapshot.Subtitle = newSubtitleView(subtitle)
	}
	v.snapshot.Responses = views
	v.responses = append([]*conversation.Response(nil), responses...)
	event := v.eventLocked(EventResponses, map[string]interface{}{
		"subtitle":  v.snapshot.Subtitle,
		"responses": views,
	})
	v.mu.Unlock()

	v.publish(event)
}

// SelectResponse implements conversation.View by reporting the selection
// to the bound listener.
func (v *SessionView) SelectResponse(response *conversation.Response) {
	v.mu.Lock()
	listener := v.listener
	v.mu.Unlock()

	if listener == nil || response == nil {
		return
	}
	if v.metrics != nil {
		v.metrics.RecordResponseSelected()
	}
	listener.OnSelectedResponse(response)
}

// FinishSubtitle reports that the current line finished displaying.
func (v *SessionView) FinishSubtitle() {
	v.mu.Lock()
	listener := v.listener
	v.mu.Unlock()

	if listener != nil {
		listener.OnFinishedSubtitle()
	}
}

// Response returns the response shown at index in the current menu.
func (v *SessionView) Response(index int) (*conversation.Response, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if index < 0 || index >= len(v.responses) {
		return nil, false
	}
	return v.responses[index], true
}

// SetPCPortrait implements conversation.View.
func (v *SessionView) SetPCPortrait(portrait, name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.snapshot.PCPortrait = portrait
	v.snapshot.PCName = name
}

// SetActorPortrait implements conversation.View.
func (v *SessionView) SetActorPortrait(actorName, portrait string) {
	v.mu.Lock()
	if v.snapshot.Portraits == nil {
		v.snapshot.Portraits = make(map[string]string)
	}
	v.snapshot.Portraits[actorName] = portrait
	event := v.eventLocked(EventPortrait, map[string]string{"actor": actorName, "portrait": portrait})
	v.mu.Unlock()

	v.publish(event)
}

// SetConversationOverride implements conversation.View.
func (v *SessionView) SetConversationOverride(settings *models.ConversationOverrideSettings) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if settings == nil {
		v.snapshot.Override = nil
		return
	}
	copied := *settings
	v.snapshot.Override = &copied
}

// Close implements conversation.View.
func (v *SessionView) Close() {
	v.mu.Lock()
	v.snapshot.Phase = PhaseClosed
	v.snapshot.Active = false
	v.snapshot.Responses = nil
	v.responses = nil
	event := v.eventLocked(EventClosed, nil)
	v.mu.Unlock()

	v.publish(event)
}

// Snapshot returns a copy of what the view shows.
func (v *SessionView) Snapshot() SessionSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	snap := v.snapshot
	if snap.Subtitle != nil {
		sub := *snap.Subtitle
		snap.Subtitle = &sub
	}
	snap.Responses = append([]ResponseView(nil), snap.Responses...)
	if snap.Portraits != nil {
		portraits := make(map[string]string, len(snap.Portraits))
		for k, p := range snap.Portraits {
			portraits[k] = p
		}
		snap.Portraits = portraits
	}
	return snap
}

// setHeader fills the fields known once the model exists.
func (v *SessionView) setHeader(title string, conversationID int, actor, conversant conversation.CharacterInfo) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.snapshot.ConversationTitle = title
	v.snapshot.ConversationID = conversationID
	v.snapshot.Actor = actor
	v.snapshot.Conversant = conversant
}

// eventLocked builds an event from the current snapshot. Caller holds v.mu.
func (v *SessionView) eventLocked(eventType string, data interface{}) SessionEvent {
	now := time.Now()
	v.snapshot.UpdatedAt = now
	return SessionEvent{
		Type:      eventType,
		SessionID: v.snapshot.ID,
		Data:      data,
		Timestamp: now,
	}
}

func (v *SessionView) publish(event SessionEvent) {
	if v.publisher != nil {
		v.publisher.Publish(event)
	}
}
