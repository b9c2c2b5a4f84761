// internal/conversation/controller.go
package conversation

import (
	"github.com/Corphon/DialogueEngine/internal/models"
)

// Controller drives one conversation, one transition at a time. It is not
// safe for concurrent use; hosts serving several goroutines serialize calls.
type Controller struct {
	runtime *Runtime
	model   Model
	view    View
	onEnd   func(*Controller)

	state                          *State
	active                         bool
	showingResponses               bool
	defaultAlwaysForceResponseMenu bool
	alwaysForceResponseMenu        bool
	currentConversationID          int
	randomizeNextEntry             bool
	currentResponse                *Response
}

// Start creates a controller and moves it to the model's first state.
// A nil model or view leaves the controller inactive.
func Start(runtime *Runtime, model Model, view View, alwaysForceResponseMenu bool, onEnd func(*Controller)) *Controller {
	if runtime == nil {
		runtime = NewRuntime("")
	}
	c := &Controller{
		runtime:                        runtime,
		model:                          model,
		view:                           view,
		onEnd:                          onEnd,
		defaultAlwaysForceResponseMenu: alwaysForceResponseMenu,
		alwaysForceResponseMenu:        alwaysForceResponseMenu,
	}
	if model == nil || view == nil {
		runtime.logger().Warn("conversation controller needs a model and a view", map[string]interface{}{
			"has_model": model != nil,
			"has_view":  view != nil,
		})
		return c
	}

	c.active = true
	model.InformParticipants(MessageConversationStart, false)
	view.Bind(c)
	view.SetPCPortrait(model.GetPCPortrait(), model.GetPCName())

	first := model.FirstState()
	if first != nil {
		c.currentConversationID = model.GetConversationID(first)
		c.applyConversationOverride(first)
	}
	c.GotoState(first)
	return c
}

// IsActive reports whether the conversation is still running.
func (c *Controller) IsActive() bool {
	return c.active
}

// State returns the state currently presented.
func (c *Controller) State() *State {
	return c.state
}

// ConversationID returns the id of the conversation the current state belongs to.
func (c *Controller) ConversationID() int {
	return c.currentConversationID
}

// AlwaysForceResponseMenu reports the policy in effect, after overrides.
func (c *Controller) AlwaysForceResponseMenu() bool {
	return c.alwaysForceResponseMenu
}

// ShowingResponses reports whether the response menu is up.
func (c *Controller) ShowingResponses() bool {
	return c.showingResponses
}

// RandomizeNextEntry makes the next NPC continuation a random pick among the
// valid ones. The flag clears after one transition.
func (c *Controller) RandomizeNextEntry() {
	c.randomizeNextEntry = true
}

// AnalyzePCResponses applies the controller's response-menu policy to state.
func (c *Controller) AnalyzePCResponses(state *State) (isPCResponseMenuNext, isPCAutoResponseNext bool) {
	return AnalyzePCResponses(state, c.alwaysForceResponseMenu)
}

// GotoState presents state, or ends the conversation when state is nil.
func (c *Controller) GotoState(state *State) {
	if !c.active {
		return
	}
	c.state = state
	c.showingResponses = false
	c.currentResponse = nil
	if state == nil {
		c.Close()
		return
	}

	if newID := c.model.GetConversationID(state); newID != c.currentConversationID {
		c.currentConversationID = newID
		c.model.InformParticipants(MessageLinkedConversationStart, true)
		c.model.UpdateParticipantsOnLinkedConversation(newID)
		c.view.SetPCPortrait(c.model.GetPCPortrait(), c.model.GetPCName())
		c.applyConversationOverride(state)
	}

	c.runtime.SetCurrentState(state)

	if state.IsGroup {
		c.view.ShowLastNPCSubtitle()
		return
	}

	menuNext, autoNext := c.AnalyzePCResponses(state)
	state.IsPCResponseMenuNext = menuNext
	state.IsPCAutoResponseNext = autoNext
	c.view.StartSubtitle(state.Subtitle, menuNext, autoNext)
}

// OnFinishedSubtitle advances past the line that just finished displaying.
func (c *Controller) OnFinishedSubtitle() {
	if !c.active {
		return
	}
	randomize := c.randomizeNextEntry
	c.randomizeNextEntry = false

	state := c.state
	switch {
	case state == nil:
		c.Close()
	case state.HasNPCResponse():
		next := state.FirstNPCResponse()
		if randomize {
			next = state.RandomNPCResponse(c.runtime.Rand)
		}
		c.GotoState(c.model.GetState(next.DestinationEntry))
	case state.HasPCResponses():
		if _, autoNext := c.AnalyzePCResponses(state); autoNext {
			c.GotoState(c.model.GetState(state.PCAutoResponse().DestinationEntry))
			return
		}
		c.showingResponses = true
		c.view.StartResponses(state.Subtitle, state.PCResponses)
	default:
		c.Close()
	}
}

// OnSelectedResponse advances to the chosen response's destination.
func (c *Controller) OnSelectedResponse(response *Response) {
	if !c.active || response == nil {
		return
	}
	c.GotoState(c.model.GetState(response.DestinationEntry))
}

// GotoFirstResponse selects the first PC response, if any.
func (c *Controller) GotoFirstResponse() {
	if responses := c.pcResponses(); len(responses) > 0 {
		c.view.SelectResponse(responses[0])
	}
}

// GotoLastResponse selects the last PC response, if any.
func (c *Controller) GotoLastResponse() {
	if responses := c.pcResponses(); len(responses) > 0 {
		c.view.SelectResponse(responses[len(responses)-1])
	}
}

// GotoRandomResponse selects a random PC response, if any.
func (c *Controller) GotoRandomResponse() {
	if responses := c.pcResponses(); len(responses) > 0 {
		c.view.SelectResponse(responses[c.runtime.Rand.Intn(len(responses))])
	}
}

// SetCurrentResponse remembers the response GotoCurrentResponse will take,
// typically the one highlighted in the menu.
func (c *Controller) SetCurrentResponse(response *Response) {
	c.currentResponse = response
}

// CurrentResponse returns the response set by SetCurrentResponse.
func (c *Controller) CurrentResponse() *Response {
	return c.currentResponse
}

// GotoCurrentResponse selects the current response, or the first one when
// none was set.
func (c *Controller) GotoCurrentResponse() {
	if !c.active {
		return
	}
	if c.currentResponse == nil {
		c.GotoFirstResponse()
		return
	}
	c.view.SelectResponse(c.currentResponse)
}

// UpdateResponses re-evaluates the current PC responses and refreshes the
// menu when it is showing.
func (c *Controller) UpdateResponses() {
	if !c.active || c.state == nil {
		return
	}
	c.model.UpdateResponses(c.state)
	if c.showingResponses {
		c.view.StartResponses(c.state.Subtitle, c.state.PCResponses)
	}
}

// SetActorPortrait changes an actor's portrait for the rest of the conversation.
func (c *Controller) SetActorPortrait(actorName, portrait string) {
	if !c.active {
		return
	}
	c.model.SetActorPortrait(actorName, portrait)
	c.view.SetActorPortrait(actorName, portrait)
}

// Close ends the conversation. Calls after the first are no-ops.
func (c *Controller) Close() {
	if !c.active {
		return
	}
	c.active = false
	c.showingResponses = false
	c.view.SetConversationOverride(nil)
	c.view.Unbind()
	c.view.Close()
	c.model.InformParticipants(MessageConversationEnd, false)
	if c.onEnd != nil {
		c.onEnd(c)
	}
	c.runtime.SetCurrentState(nil)
}

func (c *Controller) pcResponses() []*Response {
	if !c.active || c.state == nil {
		return nil
	}
	return c.state.PCResponses
}

func (c *Controller) applyConversationOverride(state *State) {
	settings := c.model.GetConversationOverrideSettings(state)
	c.view.SetConversationOverride(settings)
	c.alwaysForceResponseMenu = overrideAlwaysForceMenu(settings, c.defaultAlwaysForceResponseMenu)
}

func overrideAlwaysForceMenu(settings *models.ConversationOverrideSettings, fallback bool) bool {
	if settings != nil && settings.UseOverrides {
		return settings.AlwaysForceResponseMenu
	}
	return fallback
}
