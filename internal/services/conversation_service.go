// internal/services/conversation_service.go
package services

import (
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Corphon/DialogueEngine/internal/conversation"
	"github.com/Corphon/DialogueEngine/internal/errors"
	"github.com/Corphon/DialogueEngine/internal/models"
	"github.com/Corphon/DialogueEngine/internal/utils"
)

// Navigation targets accepted by Goto
const (
	GotoFirst   = "first"
	GotoLast    = "last"
	GotoRandom  = "random"
	GotoCurrent = "current"
)

// StartRequest 启动会话的参数
type StartRequest struct {
	Conversation   string `json:"conversation"`
	ConversationID int    `json:"conversation_id,omitempty"`
	StartEntryID   int    `json:"start_entry_id,omitempty"`
	Actor          string `json:"actor,omitempty"`
	Conversant     string `json:"conversant,omitempty"`
}

// Settings are the dialogue defaults applied to new sessions
type Settings struct {
	Language                string `json:"language"`
	AlwaysForceResponseMenu bool   `json:"always_force_response_menu"`
}

// ConversationServiceOptions configures a ConversationService
type ConversationServiceOptions struct {
	Language                string
	AlwaysForceResponseMenu bool
	Variables               *conversation.VariableTable
	Publisher               Publisher
	Metrics                 *utils.DialogueMetrics
	Logger                  *utils.Logger
	// Seed fixes the random source of new sessions when non-zero
	Seed int64
}

// session is one running conversation. mu serializes every call into the
// controller; it is always taken before ConversationService.mu. pairKey
// follows linked-conversation jumps and is guarded by both locks.
type session struct {
	mu         sync.Mutex
	id         string
	pairKey    string
	title      string
	model      *conversation.DatabaseModel
	controller *conversation.Controller
	view       *SessionView
}

// ConversationService 管理进行中的对话会话，每对角色同时只有一个会话
type ConversationService struct {
	db        *models.DialogueDatabase
	options   ConversationServiceOptions
	variables *conversation.VariableTable
	locks     *LockManager
	logger    *utils.Logger

	settingsMu sync.RWMutex
	settings   Settings

	mu       sync.Mutex
	sessions map[string]*session
	pairs    map[string]string

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewConversationService 创建对话服务
func NewConversationService(db *models.DialogueDatabase, opts ConversationServiceOptions) *ConversationService {
	if opts.Logger == nil {
		opts.Logger = utils.GetLogger()
	}
	if opts.Variables == nil {
		opts.Variables = conversation.NewVariableTable()
	}
	if opts.Metrics == nil {
		opts.Metrics = utils.NewDialogueMetrics(nil, opts.Logger)
	}
	return &ConversationService{
		db:        db,
		options:   opts,
		settings:  Settings{Language: opts.Language, AlwaysForceResponseMenu: opts.AlwaysForceResponseMenu},
		variables: opts.Variables,
		locks:     NewLockManager(),
		logger:    opts.Logger,
		sessions:  make(map[string]*session),
		pairs:     make(map[string]string),
		entropy:   ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Database returns the dialogue database sessions are built from.
func (s *ConversationService) Database() *models.DialogueDatabase {
	return s.db
}

// Variables returns the table conditions and scripts read and write.
func (s *ConversationService) Variables() *conversation.VariableTable {
	return s.variables
}

func (s *ConversationService) newID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func pairKey(actor, conversant string) string {
	return actor + "\x00" + conversant
}

// Settings returns the defaults new sessions start with.
func (s *ConversationService) Settings() Settings {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.settings
}

// UpdateSettings changes the defaults for sessions started afterwards.
// Running sessions keep the settings they started with.
func (s *ConversationService) UpdateSettings(settings Settings) Settings {
	s.settingsMu.Lock()
	s.settings = settings
	s.settingsMu.Unlock()

	s.logger.Info("Dialogue settings updated", map[string]interface{}{
		"language":                   settings.Language,
		"always_force_response_menu": settings.AlwaysForceResponseMenu,
	})
	return settings
}

func (s *ConversationService) newRuntime(language string) *conversation.Runtime {
	var runtime *conversation.Runtime
	if s.options.Seed != 0 {
		runtime = conversation.NewRuntimeWithSeed(language, s.options.Seed)
	} else {
		runtime = conversation.NewRuntime(language)
	}
	runtime.Logger = s.logger
	return runtime
}

// Start begins a conversation between the requested pair. A conversation
// already running for the same pair is closed first.
func (s *ConversationService) Start(req StartRequest) (*SessionSnapshot, error) {
	if s.db == nil {
		return nil, errors.NewProcessingError("no dialogue database loaded", nil)
	}
	if req.Conversation == "" && req.ConversationID == 0 {
		return nil, errors.NewValidationError("conversation title or id is required", nil)
	}

	settings := s.Settings()
	runtime := s.newRuntime(settings.Language)
	id := s.newID()
	view := NewSessionView(id, s.options.Publisher, s.options.Metrics)

	model, err := conversation.NewDatabaseModel(s.db, runtime, conversation.ModelOptions{
		ConversationTitle: req.Conversation,
		ConversationID:    req.ConversationID,
		StartEntryID:      req.StartEntryID,
		Actor:             req.Actor,
		Conversant:        req.Conversant,
		Evaluator:         s.variables,
		Scripts:           s.variables,
		Participants:      []conversation.Participant{s.participant(id)},
	})
	if err != nil {
		return nil, err
	}

	conv := model.Conversation()
	actor, conversant := model.Actor(), model.Conversant()
	view.setHeader(conv.Title, conv.ID, actor, conversant)

	sess := &session{
		id:      id,
		pairKey: pairKey(actor.Name, conversant.Name),
		title:   conv.Title,
		model:   model,
		view:    view,
	}

	err = s.locks.ExecuteWithLock(sess.pairKey, func() error {
		s.closePrior(sess.pairKey)

		sess.mu.Lock()
		defer sess.mu.Unlock()

		s.mu.Lock()
		s.sessions[id] = sess
		s.pairs[sess.pairKey] = id
		s.mu.Unlock()

		s.options.Metrics.RecordConversationStarted(conv.Title)
		sess.controller = conversation.Start(runtime, model, view, settings.AlwaysForceResponseMenu, func(*conversation.Controller) {
			s.forget(sess)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Conversation started", map[string]interface{}{
		"session_id":   id,
		"conversation": conv.Title,
		"actor":        actor.Name,
		"conversant":   conversant.Name,
	})
	snap := view.Snapshot()
	return &snap, nil
}

// closePrior closes the session registered for key, if any.
func (s *ConversationService) closePrior(key string) {
	s.mu.Lock()
	priorID, ok := s.pairs[key]
	prior := s.sessions[priorID]
	s.mu.Unlock()
	if !ok || prior == nil {
		return
	}

	s.closeDisplaced(prior)
}

// closeDisplaced ends a session whose pair was taken over. The caller must
// not hold another session's lock.
func (s *ConversationService) closeDisplaced(prior *session) {
	s.logger.Info("Closing previous conversation for the same pair", map[string]interface{}{
		"session_id": prior.id,
	})
	prior.mu.Lock()
	if prior.controller != nil {
		prior.controller.Close()
	}
	prior.mu.Unlock()
}

// rekey moves sess to the pair its model is bound to after a linked
// conversation jump. It returns the session that held that pair before, if
// any; the caller closes it once sess.mu is released. Caller holds sess.mu.
func (s *ConversationService) rekey(sess *session) *session {
	if sess.model == nil || sess.controller == nil || !sess.controller.IsActive() {
		return nil
	}
	key := pairKey(sess.model.Actor().Name, sess.model.Conversant().Name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if key == sess.pairKey {
		return nil
	}
	if s.pairs[sess.pairKey] == sess.id {
		delete(s.pairs, sess.pairKey)
	}
	sess.pairKey = key

	var displaced *session
	if priorID, ok := s.pairs[key]; ok && priorID != sess.id {
		displaced = s.sessions[priorID]
	}
	s.pairs[key] = sess.id
	return displaced
}

// forget drops an ended session from the indexes. It runs from the
// controller's end handler with the session lock held.
func (s *ConversationService) forget(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	if s.pairs[sess.pairKey] == sess.id {
		delete(s.pairs, sess.pairKey)
	}
	s.mu.Unlock()

	s.options.Metrics.RecordConversationEnded(sess.title)
	s.logger.Info("Conversation ended", map[string]interface{}{"session_id": sess.id})
}

func (s *ConversationService) participant(sessionID string) conversation.Participant {
	return conversation.ParticipantFunc(func(msg conversation.Message) {
		s.logger.Debug("Conversation message", map[string]interface{}{
			"session_id":      sessionID,
			"message":         msg.Name,
			"conversation_id": msg.ConversationID,
		})
		if s.options.Publisher != nil {
			s.options.Publisher.Publish(SessionEvent{
				Type:      EventMessage,
				SessionID: sessionID,
				Data:      msg,
				Timestamp: time.Now(),
			})
		}
	})
}

func (s *ConversationService) lookup(id string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errors.NewNotFoundError("conversation session not found: "+id, nil)
	}
	return sess, nil
}

// withSession runs fn under the session lock and returns the resulting
// snapshot. Sessions that end during fn still report their final snapshot.
func (s *ConversationService) withSession(id string, fn func(sess *session) error) (*SessionSnapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.controller == nil || !sess.controller.IsActive() {
		sess.mu.Unlock()
		return nil, errors.NewNotFoundError("conversation session has ended: "+id, nil)
	}
	if err := fn(sess); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	displaced := s.rekey(sess)
	snap := sess.view.Snapshot()
	sess.mu.Unlock()

	if displaced != nil {
		s.closeDisplaced(displaced)
	}
	return &snap, nil
}

// Get returns what the session currently shows.
func (s *ConversationService) Get(id string) (*SessionSnapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	snap := sess.view.Snapshot()
	return &snap, nil
}

// List returns the snapshots of all running sessions ordered by id.
func (s *ConversationService) List() []SessionSnapshot {
	s.mu.Lock()
	all := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.Unlock()

	out := make([]SessionSnapshot, 0, len(all))
	for _, sess := range all {
		out = append(out, sess.view.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActiveCount returns the number of running sessions.
func (s *ConversationService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Continue reports that the current subtitle finished displaying.
func (s *ConversationService) Continue(id string) (*SessionSnapshot, error) {
	return s.withSession(id, func(sess *session) error {
		if sess.controller.ShowingResponses() {
			return errors.NewConflictError("waiting for a response to be chosen", nil)
		}
		sess.view.FinishSubtitle()
		return nil
	})
}

// Choose selects the response at index in the current menu.
func (s *ConversationService) Choose(id string, index int) (*SessionSnapshot, error) {
	return s.withSession(id, func(sess *session) error {
		if !sess.controller.ShowingResponses() {
			return errors.NewConflictError("no response menu is showing", nil)
		}
		response, ok := sess.view.Response(index)
		if !ok {
			return errors.NewValidationError("response index out of range: "+strconv.Itoa(index), nil)
		}
		if !response.Enabled {
			return errors.NewValidationError("response is disabled: "+strconv.Itoa(index), nil)
		}
		sess.controller.SetCurrentResponse(response)
		sess.view.SelectResponse(response)
		return nil
	})
}

// Goto selects a response by position: first, last, random or current.
func (s *ConversationService) Goto(id, target string) (*SessionSnapshot, error) {
	return s.withSession(id, func(sess *session) error {
		if !sess.controller.ShowingResponses() {
			return errors.NewConflictError("no response menu is showing", nil)
		}
		switch target {
		case GotoFirst:
			sess.controller.GotoFirstResponse()
		case GotoLast:
			sess.controller.GotoLastResponse()
		case GotoRandom:
			sess.controller.GotoRandomResponse()
		case GotoCurrent, "":
			sess.controller.GotoCurrentResponse()
		default:
			return errors.NewValidationError("unknown navigation target: "+target, nil)
		}
		return nil
	})
}

// Highlight marks the response at index as current without selecting it.
func (s *ConversationService) Highlight(id string, index int) (*SessionSnapshot, error) {
	return s.withSession(id, func(sess *session) error {
		response, ok := sess.view.Response(index)
		if !ok {
			return errors.NewValidationError("response index out of range: "+strconv.Itoa(index), nil)
		}
		sess.controller.SetCurrentResponse(response)
		return nil
	})
}

// RandomizeNext makes the session's next NPC line a random valid one.
func (s *ConversationService) RandomizeNext(id string) (*SessionSnapshot, error) {
	return s.withSession(id, func(sess *session) error {
		sess.controller.RandomizeNextEntry()
		return nil
	})
}

// SetActorPortrait changes an actor's portrait inside one session.
func (s *ConversationService) SetActorPortrait(id, actorName, portrait string) (*SessionSnapshot, error) {
	return s.withSession(id, func(sess *session) error {
		sess.controller.SetActorPortrait(actorName, portrait)
		return nil
	})
}

// Close ends a session. Closing an unknown or ended session reports not found.
func (s *ConversationService) Close(id string) (*SessionSnapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.controller != nil {
		sess.controller.Close()
	}
	snap := sess.view.Snapshot()
	return &snap, nil
}

// CloseAll ends every running session.
func (s *ConversationService) CloseAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Close(id)
	}
}

// RefreshResponses re-evaluates the response menus of all sessions, used
// after variables change.
func (s *ConversationService) RefreshResponses() {
	s.mu.Lock()
	all := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.Unlock()

	for _, sess := range all {
		sess.mu.Lock()
		if sess.controller != nil {
			sess.controller.UpdateResponses()
		}
		sess.mu.Unlock()
	}
}

// SetVariable changes a variable and refreshes open menus.
func (s *ConversationService) SetVariable(name string, value bool) {
	s.variables.Set(name, value)
	s.RefreshResponses()
}
