package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/DialogueEngine/internal/models"
)

const fixtureDB = "../../data/dialogue.json"

func loadFixture(t *testing.T) *models.DialogueDatabase {
	t.Helper()
	db, err := models.LoadDialogueDatabase(fixtureDB)
	require.NoError(t, err)
	return db
}

// recordingView captures what the controller presents.
type recordingView struct {
	listener  ViewListener
	subtitles []*Subtitle
	menus     [][]*Response
	overrides []*models.ConversationOverrideSettings
	pcName    string
	portraits map[string]string
	groups    int
	closed    int
}

func (v *recordingView) Bind(listener ViewListener) { v.listener = listener }
func (v *recordingView) Unbind()                     { v.listener = nil }
func (v *recordingView) StartSubtitle(s *Subtitle, menuNext, autoNext bool) {
	v.subtitles = append(v.subtitles, s)
}
func (v *recordingView) ShowLastNPCSubtitle() { v.groups++ }
func (v *recordingView) StartResponses(s *Subtitle, responses []*Response) {
	v.menus = append(v.menus, responses)
}
func (v *recordingView) SelectResponse(r *Response) {
	if v.listener != nil {
		v.listener.OnSelectedResponse(r)
	}
}
func (v *recordingView) SetPCPortrait(portrait, name string) { v.pcName = name }
func (v *recordingView) SetActorPortrait(actor, portrait string) {
	if v.portraits == nil {
		v.portraits = make(map[string]string)
	}
	v.portraits[actor] = portrait
}
func (v *recordingView) SetConversationOverride(s *models.ConversationOverrideSettings) {
	v.overrides = append(v.overrides, s)
}
func (v *recordingView) Close() { v.closed++ }

func (v *recordingView) lastText() string {
	if len(v.subtitles) == 0 {
		return ""
	}
	return v.subtitles[len(v.subtitles)-1].FormattedText
}

type harness struct {
	vars     *VariableTable
	view     *recordingView
	ctrl     *Controller
	messages []Message
	ended    int
}

func startGate(t *testing.T, alwaysForce bool, language string, setup func(*VariableTable)) *harness {
	t.Helper()
	h := &harness{vars: NewVariableTable(), view: &recordingView{}}
	if setup != nil {
		setup(h.vars)
	}
	runtime := NewRuntimeWithSeed(language, 1)
	model, err := NewDatabaseModel(loadFixture(t), runtime, ModelOptions{
		ConversationTitle: "Gate",
		Evaluator:         h.vars,
		Scripts:           h.vars,
		Participants: []Participant{ParticipantFunc(func(msg Message) {
			h.messages = append(h.messages, msg)
		})},
	})
	require.NoError(t, err)
	h.ctrl = Start(runtime, model, h.view, alwaysForce, func(*Controller) { h.ended++ })
	return h
}

func (h *harness) messageNames() []string {
	names := make([]string, len(h.messages))
	for i, m := range h.messages {
		names[i] = m.Name
	}
	return names
}

func TestControllerWalksLinkedConversation(t *testing.T) {
	h := startGate(t, true, "", nil)
	ctrl, view := h.ctrl, h.view

	require.True(t, ctrl.IsActive())
	assert.Equal(t, 0, ctrl.State().Subtitle.EntryID())
	assert.Equal(t, "Player", view.pcName)
	assert.Equal(t, 1, ctrl.ConversationID())

	ctrl.OnFinishedSubtitle()
	assert.Equal(t, "Halt! Who goes there?", view.lastText())
	assert.Equal(t, "Guard", ctrl.State().Subtitle.Speaker.Name)
	assert.True(t, ctrl.State().IsPCResponseMenuNext)

	ctrl.OnFinishedSubtitle()
	require.True(t, ctrl.ShowingResponses())
	require.Len(t, view.menus, 1)
	require.Len(t, view.menus[0], 1)
	assert.Equal(t, "A friend.", view.menus[0][0].FormattedText)

	ctrl.GotoCurrentResponse()
	assert.False(t, ctrl.ShowingResponses())
	assert.Equal(t, "I'm a friend of the captain.", view.lastText())

	ctrl.OnFinishedSubtitle()
	assert.Equal(t, "Pass, friend.", view.lastText())
	assert.True(t, h.vars.Get("passed_gate"))

	ctrl.OnFinishedSubtitle()
	assert.Equal(t, 2, ctrl.ConversationID())
	assert.Equal(t, "Fresh bread, traveller?", view.lastText())
	assert.False(t, ctrl.AlwaysForceResponseMenu())
	assert.True(t, ctrl.State().IsPCAutoResponseNext)
	assert.Equal(t, []string{MessageConversationStart, MessageLinkedConversationStart}, h.messageNames())

	ctrl.OnFinishedSubtitle()
	assert.Len(t, view.menus, 1, "single response auto-advances")
	assert.Equal(t, "Not today.", view.lastText())

	ctrl.OnFinishedSubtitle()
	assert.False(t, ctrl.IsActive())
	assert.Equal(t, 1, h.ended)
	assert.Equal(t, 1, view.closed)
	assert.Nil(t, view.listener)
	assert.Nil(t, view.overrides[len(view.overrides)-1])
	end := h.messages[len(h.messages)-1]
	assert.Equal(t, MessageConversationEnd, end.Name)
	assert.Equal(t, 2, end.ConversationID)
	assert.Equal(t, "Merchant", end.Conversant.Name)

	ctrl.Close()
	ctrl.OnFinishedSubtitle()
	assert.Equal(t, 1, h.ended, "close is idempotent")
}

func TestControllerConditionalResponse(t *testing.T) {
	h := startGate(t, true, "", func(v *VariableTable) {
		v.Set("brave", true)
		v.Set("passed_gate", true)
	})

	h.ctrl.OnFinishedSubtitle()
	h.ctrl.OnFinishedSubtitle()
	require.Len(t, h.view.menus, 1)
	menu := h.view.menus[0]
	require.Len(t, menu, 2)
	assert.Equal(t, "None of your business.", menu[1].FormattedText)
	assert.True(t, menu[1].ForceMenu)

	h.ctrl.GotoLastResponse()
	assert.Equal(t, 3, h.ctrl.State().Subtitle.EntryID())

	h.ctrl.OnFinishedSubtitle()
	assert.Equal(t, "Then turn back.", h.view.lastText())
	assert.False(t, h.vars.Get("passed_gate"))

	h.ctrl.OnFinishedSubtitle()
	assert.False(t, h.ctrl.IsActive())
}

func TestControllerAutoAdvancesWithoutForcedMenu(t *testing.T) {
	h := startGate(t, false, "", nil)
	h.ctrl.OnFinishedSubtitle()
	assert.True(t, h.ctrl.State().IsPCAutoResponseNext)

	h.ctrl.OnFinishedSubtitle()
	assert.Empty(t, h.view.menus)
	assert.Equal(t, "I'm a friend of the captain.", h.view.lastText())
}

func TestControllerUpdateResponses(t *testing.T) {
	h := startGate(t, true, "", nil)
	h.ctrl.OnFinishedSubtitle()
	h.ctrl.OnFinishedSubtitle()
	require.Len(t, h.view.menus, 1)
	assert.Len(t, h.view.menus[0], 1)

	h.vars.Set("brave", true)
	h.ctrl.UpdateResponses()
	require.Len(t, h.view.menus, 2)
	assert.Len(t, h.view.menus[1], 2)
}

func TestControllerCurrentResponse(t *testing.T) {
	h := startGate(t, true, "", func(v *VariableTable) { v.Set("brave", true) })
	h.ctrl.OnFinishedSubtitle()
	h.ctrl.OnFinishedSubtitle()

	responses := h.ctrl.State().PCResponses
	require.Len(t, responses, 2)
	h.ctrl.SetCurrentResponse(responses[1])
	assert.Same(t, responses[1], h.ctrl.CurrentResponse())

	h.ctrl.GotoCurrentResponse()
	assert.Equal(t, 3, h.ctrl.State().Subtitle.EntryID())
	assert.Nil(t, h.ctrl.CurrentResponse())
}

func TestControllerLocalizedText(t *testing.T) {
	h := startGate(t, true, "fr", nil)
	h.ctrl.OnFinishedSubtitle()
	assert.Equal(t, "Halte ! Qui va là ?", h.view.lastText())
}

func TestControllerSetActorPortrait(t *testing.T) {
	h := startGate(t, true, "", nil)
	h.ctrl.SetActorPortrait("Guard", "guard_angry.png")
	assert.Equal(t, "guard_angry.png", h.view.portraits["Guard"])

	h.ctrl.OnFinishedSubtitle()
	assert.Equal(t, "guard_angry.png", h.ctrl.State().Subtitle.Speaker.Portrait)
}

func TestControllerGotoNilStateCloses(t *testing.T) {
	h := startGate(t, true, "", nil)
	h.ctrl.GotoState(nil)
	assert.False(t, h.ctrl.IsActive())
	assert.Equal(t, 1, h.ended)
}

func TestStartWithoutViewStaysInactive(t *testing.T) {
	model, err := NewDatabaseModel(loadFixture(t), nil, ModelOptions{ConversationID: 1})
	require.NoError(t, err)

	ctrl := Start(nil, model, nil, true, nil)
	assert.False(t, ctrl.IsActive())
	ctrl.OnFinishedSubtitle()
	ctrl.Close()
}

func TestNewDatabaseModel(t *testing.T) {
	db := loadFixture(t)

	_, err := NewDatabaseModel(db, nil, ModelOptions{ConversationTitle: "Nowhere"})
	assert.Error(t, err)

	_, err = NewDatabaseModel(db, nil, ModelOptions{ConversationID: 1, StartEntryID: 42})
	assert.Error(t, err)

	_, err = NewDatabaseModel(nil, nil, ModelOptions{ConversationID: 1})
	assert.Error(t, err)

	model, err := NewDatabaseModel(db, nil, ModelOptions{ConversationID: 2, Actor: "Stranger"})
	require.NoError(t, err)
	assert.Equal(t, CharacterInfo{ID: -1, Name: "Stranger"}, model.Actor())
	assert.Equal(t, "Merchant", model.Conversant().Name)
	assert.Equal(t, "Player", model.GetPCName(), "falls back to the database's player actor")
	require.NotNil(t, model.GetConversationOverrideSettings(model.FirstState()))
}

func TestModelPrefersHigherPriorityLinks(t *testing.T) {
	db := &models.DialogueDatabase{
		Actors: []models.Actor{{ID: 1, Name: "Player", IsPlayer: true}, {ID: 2, Name: "NPC"}},
		Conversations: []models.Conversation{{
			ID: 1, Title: "Priorities", ActorID: 1, ConversantID: 2,
			Entries: []models.DialogueEntry{
				{ID: 0, ConversationID: 1, ActorID: 2, Links: []models.Link{
					{DestinationConversationID: 1, DestinationEntryID: 1, Priority: models.PriorityLow},
					{DestinationConversationID: 1, DestinationEntryID: 2, Priority: models.PriorityHigh},
					{DestinationConversationID: 1, DestinationEntryID: 99, Priority: models.PriorityVeryHigh},
				}},
				{ID: 1, ConversationID: 1, ActorID: 2, DialogueText: "low"},
				{ID: 2, ConversationID: 1, ActorID: 2, DialogueText: "high", Conditions: []string{"ready"}},
			},
		}},
	}
	vars := NewVariableTable()
	model, err := NewDatabaseModel(db, nil, ModelOptions{ConversationID: 1, Evaluator: vars})
	require.NoError(t, err)

	first := model.FirstState()
	require.Len(t, first.NPCResponses, 1)
	assert.Equal(t, 1, first.NPCResponses[0].DestinationEntry.ID, "invalid high link falls through")

	vars.Set("ready", true)
	model.UpdateResponses(first)
	require.Len(t, first.NPCResponses, 1)
	assert.Equal(t, 2, first.NPCResponses[0].DestinationEntry.ID)
}

// fanOutDB hands "Pick one." to a player group node that branches to three
// NPC lines. Each of them continues to a second three-way branch.
const fanOutDB = `{
	"actors": [{"id": 1, "name": "Player", "is_player": true}, {"id": 2, "name": "Oracle"}],
	"conversations": [{
		"id": 1, "title": "FanOut", "actor_id": 1, "conversant_id": 2,
		"entries": [
			{"id": 0, "actor_id": 2, "title": "START", "links": [{"destination_conversation_id": 1, "destination_entry_id": 1}]},
			{"id": 1, "actor_id": 2, "dialogue_text": "Pick one.", "links": [{"destination_conversation_id": 1, "destination_entry_id": 2}]},
			{"id": 2, "actor_id": 1, "is_group": true, "links": [
				{"destination_conversation_id": 1, "destination_entry_id": 3},
				{"destination_conversation_id": 1, "destination_entry_id": 4},
				{"destination_conversation_id": 1, "destination_entry_id": 5}
			]},
			{"id": 3, "actor_id": 2, "dialogue_text": "a", "links": [{"destination_conversation_id": 1, "destination_entry_id": 6}]},
			{"id": 4, "actor_id": 2, "dialogue_text": "b", "links": [{"destination_conversation_id": 1, "destination_entry_id": 6}]},
			{"id": 5, "actor_id": 2, "dialogue_text": "c", "links": [{"destination_conversation_id": 1, "destination_entry_id": 6}]},
			{"id": 6, "actor_id": 2, "dialogue_text": "Then:", "links": [
				{"destination_conversation_id": 1, "destination_entry_id": 7},
				{"destination_conversation_id": 1, "destination_entry_id": 8},
				{"destination_conversation_id": 1, "destination_entry_id": 9}
			]},
			{"id": 7, "actor_id": 2, "dialogue_text": "x"},
			{"id": 8, "actor_id": 2, "dialogue_text": "y"},
			{"id": 9, "actor_id": 2, "dialogue_text": "z"},
			{"id": 10, "actor_id": 2, "dialogue_text": "Dead end.", "links": [{"destination_conversation_id": 1, "destination_entry_id": 11}]},
			{"id": 11, "actor_id": 1, "is_group": true}
		]
	}]
}`

func startFanOut(t *testing.T, runtime *Runtime, startEntry int) *harness {
	t.Helper()
	db, err := models.ParseDialogueDatabase([]byte(fanOutDB))
	require.NoError(t, err)

	h := &harness{vars: NewVariableTable(), view: &recordingView{}}
	model, err := NewDatabaseModel(db, runtime, ModelOptions{
		ConversationID: 1,
		StartEntryID:   startEntry,
		Evaluator:      h.vars,
		Participants: []Participant{ParticipantFunc(func(msg Message) {
			h.messages = append(h.messages, msg)
		})},
	})
	require.NoError(t, err)
	h.ctrl = Start(runtime, model, h.view, true, func(*Controller) { h.ended++ })
	return h
}

func TestControllerGroupNode(t *testing.T) {
	h := startFanOut(t, NewRuntimeWithSeed("", 1), 0)
	ctrl, view := h.ctrl, h.view

	ctrl.OnFinishedSubtitle()
	assert.Equal(t, "Pick one.", view.lastText())
	assert.True(t, ctrl.State().IsPCResponseMenuNext)
	assert.True(t, ctrl.State().IsPCAutoResponseNext, "a lone response into a group skips the menu")

	ctrl.OnFinishedSubtitle()
	assert.Equal(t, 1, view.groups)
	assert.Empty(t, view.menus)
	assert.Len(t, view.subtitles, 2, "a group node shows no subtitle of its own")
	assert.True(t, ctrl.State().IsGroup)
	assert.False(t, ctrl.ShowingResponses())
	assert.Equal(t, 2, ctrl.State().Subtitle.EntryID())

	ctrl.OnFinishedSubtitle()
	assert.Equal(t, "a", view.lastText(), "without randomizing the first branch is taken")
	ctrl.OnFinishedSubtitle()
	ctrl.OnFinishedSubtitle()
	assert.Equal(t, "x", view.lastText())
	ctrl.OnFinishedSubtitle()
	assert.False(t, ctrl.IsActive())
	assert.Equal(t, 1, view.groups)
}

func TestControllerGroupWithoutContinuationCloses(t *testing.T) {
	h := startFanOut(t, NewRuntimeWithSeed("", 1), 10)

	assert.Equal(t, "Dead end.", h.view.lastText())
	assert.True(t, h.ctrl.State().IsPCAutoResponseNext)

	h.ctrl.OnFinishedSubtitle()
	assert.Equal(t, 1, h.view.groups)
	assert.True(t, h.ctrl.IsActive())

	h.ctrl.OnFinishedSubtitle()
	assert.False(t, h.ctrl.IsActive())
	assert.Equal(t, 1, h.ended)
	assert.Equal(t, 1, h.view.closed)
}

func TestControllerRandomizeNextEntry(t *testing.T) {
	runtime := NewRuntimeWithSeed("", 7)
	picks := make(map[string]int)
	const trials = 300

	for i := 0; i < trials; i++ {
		h := startFanOut(t, runtime, 0)
		h.ctrl.OnFinishedSubtitle()
		h.ctrl.OnFinishedSubtitle()
		require.True(t, h.ctrl.State().IsGroup)

		h.ctrl.RandomizeNextEntry()
		h.ctrl.OnFinishedSubtitle()
		picks[h.view.lastText()]++

		h.ctrl.OnFinishedSubtitle()
		require.Equal(t, "Then:", h.view.lastText())
		h.ctrl.OnFinishedSubtitle()
		require.Equal(t, "x", h.view.lastText(), "randomizing lasts one transition")
	}

	assert.Len(t, picks, 3)
	for _, text := range []string{"a", "b", "c"} {
		assert.Greater(t, picks[text], trials/5, text)
	}
}

func TestControllerCloseTwiceSendsOneEndMessage(t *testing.T) {
	h := startGate(t, true, "", nil)
	h.ctrl.OnFinishedSubtitle()

	h.ctrl.Close()
	h.ctrl.Close()

	assert.Equal(t, []string{MessageConversationStart, MessageConversationEnd}, h.messageNames())
	assert.Equal(t, 1, h.ended)
	assert.Equal(t, 1, h.view.closed)
	assert.Nil(t, h.ctrl.runtime.CurrentState())
}

func TestModelUnmarkedLinksAreNormalPriority(t *testing.T) {
	db, err := models.ParseDialogueDatabase([]byte(`{
		"actors": [{"id": 1, "name": "NPC"}],
		"conversations": [{
			"id": 1, "title": "Defaults",
			"entries": [
				{"id": 0, "actor_id": 1, "links": [
					{"destination_conversation_id": 1, "destination_entry_id": 1, "priority": 1},
					{"destination_conversation_id": 1, "destination_entry_id": 2}
				]},
				{"id": 1, "actor_id": 1, "dialogue_text": "explicit low"},
				{"id": 2, "actor_id": 1, "dialogue_text": "unmarked"}
			]
		}]
	}`))
	require.NoError(t, err)

	model, err := NewDatabaseModel(db, nil, ModelOptions{ConversationID: 1})
	require.NoError(t, err)
	first := model.FirstState()
	require.Len(t, first.NPCResponses, 1)
	assert.Equal(t, 2, first.NPCResponses[0].DestinationEntry.ID)
}
