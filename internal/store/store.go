// Package store is the in-memory state container of the client: chat
// threads, the QnA history, the pending question, and model selection.
//
// Every read returns a copy and every mutation happens under one mutex, so a
// read that decides a write (append, then send the resulting history) is
// atomic even when several requests run at once.
package store

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
	"github.com/yusuftnc/qchat/internal/model"
)

const titleRunes = 40

// EventKind names the mutation that produced an Event.
type EventKind int

const (
	ThreadCreated EventKind = iota
	ThreadSelected
	MessageAppended
	QnAAppended
	PendingChanged
	ModelChanged
	CatalogChanged
)

// Event is delivered to listeners after every mutation.
type Event struct {
	Kind     EventKind
	ThreadID string
}

// Listener observes store changes. It runs on the mutating goroutine, after
// the lock is released, and may read the store.
type Listener func(Event)

// Store holds the conversation state of one client session.
type Store struct {
	mu sync.Mutex

	threads  map[string]*model.ChatThread
	order    []string // Thread ids, newest first.
	activeID string

	qna     []model.QnAItem
	pending *string

	selectedModel string
	catalog       []model.ModelDescriptor

	listeners []Listener
}

// New returns an empty store whose model selection starts at defaultModel.
func New(defaultModel string) *Store {
	return &Store{
		threads:       make(map[string]*model.ChatThread),
		selectedModel: defaultModel,
	}
}

// Subscribe registers a listener.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) notify(e Event) {
	s.mu.Lock()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, l := range listeners {
		l(e)
	}
}

// --- Threads ---

// CreateThread adds an empty thread at the head and makes it active.
func (s *Store) CreateThread(modelID string) string {
	s.mu.Lock()
	id := s.createThreadLocked(modelID)
	s.mu.Unlock()

	s.notify(Event{Kind: ThreadCreated, ThreadID: id})
	return id
}

// EnsureThread creates a thread only when none exists yet and returns the
// active thread id. It is used once at startup.
func (s *Store) EnsureThread(modelID string) string {
	s.mu.Lock()
	if len(s.order) > 0 {
		id := s.activeID
		s.mu.Unlock()
		return id
	}
	id := s.createThreadLocked(modelID)
	s.mu.Unlock()

	s.notify(Event{Kind: ThreadCreated, ThreadID: id})
	return id
}

func (s *Store) createThreadLocked(modelID string) string {
	thread := &model.ChatThread{
		ID:        model.NewID(),
		Title:     model.DefaultThreadTitle,
		Messages:  []model.Message{},
		Model:     modelID,
		CreatedAt: time.Now(),
	}
	s.threads[thread.ID] = thread
	s.order = append([]string{thread.ID}, s.order...)
	s.activeID = thread.ID
	return thread.ID
}

// SelectThread makes an existing thread active.
func (s *Store) SelectThread(threadID string) error {
	s.mu.Lock()
	if _, ok := s.threads[threadID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: thread %s", app_errors.ErrNotFound, threadID)
	}
	s.activeID = threadID
	s.mu.Unlock()

	s.notify(Event{Kind: ThreadSelected, ThreadID: threadID})
	return nil
}

// ActiveThreadID returns the id of the active thread, or "" when none.
func (s *Store) ActiveThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// ActiveThread returns a copy of the active thread.
func (s *Store) ActiveThread() (model.ChatThread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.threads[s.activeID]
	if !ok {
		return model.ChatThread{}, false
	}
	return copyThread(thread), true
}

// Thread returns a copy of the named thread.
func (s *Store) Thread(threadID string) (model.ChatThread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.threads[threadID]
	if !ok {
		return model.ChatThread{}, false
	}
	return copyThread(thread), true
}

// Threads returns copies of all threads, newest first.
func (s *Store) Threads() []model.ChatThread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ChatThread, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyThread(s.threads[id]))
	}
	return out
}

// AppendMessage appends msg to the named thread only.
func (s *Store) AppendMessage(threadID string, msg model.Message) error {
	_, err := s.appendMessage(threadID, msg)
	return err
}

// AppendUserMessage appends msg and returns the thread history that the
// append produced, as one atomic step.
func (s *Store) AppendUserMessage(threadID string, msg model.Message) ([]model.Message, error) {
	return s.appendMessage(threadID, msg)
}

func (s *Store) appendMessage(threadID string, msg model.Message) ([]model.Message, error) {
	s.mu.Lock()
	thread, ok := s.threads[threadID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: thread %s", app_errors.ErrNotFound, threadID)
	}
	if msg.Role == model.RoleUser && thread.Title == model.DefaultThreadTitle && !hasUserMessage(thread) {
		thread.Title = titleFrom(msg.Content)
	}
	thread.Messages = append(thread.Messages, msg)
	history := slices.Clone(thread.Messages)
	s.mu.Unlock()

	s.notify(Event{Kind: MessageAppended, ThreadID: threadID})
	return history, nil
}

// --- QnA ---

// AppendQnAItem appends one answered (or failed) question.
func (s *Store) AppendQnAItem(item model.QnAItem) {
	s.mu.Lock()
	s.qna = append(s.qna, item)
	s.mu.Unlock()

	s.notify(Event{Kind: QnAAppended})
}

// QnAItems returns a copy of the QnA history in order.
func (s *Store) QnAItems() []model.QnAItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.qna)
}

// SetPending publishes the question that is waiting for its answer.
func (s *Store) SetPending(question string) {
	s.mu.Lock()
	s.pending = &question
	s.mu.Unlock()

	s.notify(Event{Kind: PendingChanged})
}

// ClearPending removes the pending question.
func (s *Store) ClearPending() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()

	s.notify(Event{Kind: PendingChanged})
}

// Pending returns the pending question, if any.
func (s *Store) Pending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return "", false
	}
	return *s.pending, true
}

// --- Models ---

// SelectedModel returns the model used for new requests.
func (s *Store) SelectedModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedModel
}

// SelectModel changes the model used for new requests. Once a catalog is
// loaded, the id must be one of its entries.
func (s *Store) SelectModel(modelID string) error {
	s.mu.Lock()
	if len(s.catalog) > 0 && !catalogHas(s.catalog, modelID) {
		s.mu.Unlock()
		return fmt.Errorf("%w: model %s is not in the catalog", app_errors.ErrNotFound, modelID)
	}
	s.selectedModel = modelID
	s.mu.Unlock()

	s.notify(Event{Kind: ModelChanged})
	return nil
}

// SetCatalog replaces the catalog. When the selected model is not part of
// it, the selection snaps to the first entry.
func (s *Store) SetCatalog(catalog []model.ModelDescriptor) {
	s.mu.Lock()
	s.catalog = slices.Clone(catalog)
	snapped := false
	if len(catalog) > 0 && !catalogHas(catalog, s.selectedModel) {
		s.selectedModel = catalog[0].ID
		snapped = true
	}
	s.mu.Unlock()

	s.notify(Event{Kind: CatalogChanged})
	if snapped {
		s.notify(Event{Kind: ModelChanged})
	}
}

// Catalog returns a copy of the model catalog.
func (s *Store) Catalog() []model.ModelDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.catalog)
}

// --- Helpers ---

func copyThread(t *model.ChatThread) model.ChatThread {
	c := *t
	c.Messages = slices.Clone(t.Messages)
	return c
}

func catalogHas(catalog []model.ModelDescriptor, id string) bool {
	return slices.ContainsFunc(catalog, func(m model.ModelDescriptor) bool { return m.ID == id })
}

func hasUserMessage(t *model.ChatThread) bool {
	return slices.ContainsFunc(t.Messages, func(m model.Message) bool { return m.Role == model.RoleUser })
}

// titleFrom shortens the first user message to a thread title.
func titleFrom(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	runes := []rune(title)
	if len(runes) > titleRunes {
		return string(runes[:titleRunes]) + "…"
	}
	if title == "" {
		return model.DefaultThreadTitle
	}
	return title
}
