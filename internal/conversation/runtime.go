// internal/conversation/runtime.go
package conversation

import (
	"math/rand"
	"sync"
	"time"

	"github.com/Corphon/DialogueEngine/internal/utils"
)

// Participant messages
const (
	MessageConversationStart       = "OnConversationStart"
	MessageConversationEnd         = "OnConversationEnd"
	MessageLinkedConversationStart = "OnLinkedConversationStart"
)

// Runtime carries what a controller and its model share: the current state
// pointer, the random source, the display language and the logger. One
// Runtime serves one conversation at a time.
type Runtime struct {
	Language string
	Rand     *rand.Rand
	Logger   *utils.Logger

	mu           sync.RWMutex
	currentState *State
}

// NewRuntime creates a runtime seeded from the clock.
func NewRuntime(language string) *Runtime {
	return NewRuntimeWithSeed(language, time.Now().UnixNano())
}

// NewRuntimeWithSeed creates a runtime with a deterministic random source.
func NewRuntimeWithSeed(language string, seed int64) *Runtime {
	return &Runtime{
		Language: language,
		Rand:     rand.New(rand.NewSource(seed)),
		Logger:   utils.GetLogger(),
	}
}

// CurrentState returns the state currently being presented, or nil.
func (r *Runtime) CurrentState() *State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentState
}

// SetCurrentState records the state currently being presented.
func (r *Runtime) SetCurrentState(state *State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentState = state
}

func (r *Runtime) logger() *utils.Logger {
	if r.Logger == nil {
		return utils.GetLogger()
	}
	return r.Logger
}
