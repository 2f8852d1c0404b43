// Package cli is the line-oriented terminal front end of the chat client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
	"github.com/yusuftnc/qchat/internal/interfaces"
	"github.com/yusuftnc/qchat/internal/model"
	"github.com/yusuftnc/qchat/internal/service"
	"github.com/yusuftnc/qchat/internal/store"
)

// Session renders store changes and turns input lines into service calls.
type Session struct {
	store  *store.Store
	chat   interfaces.ChatService
	qna    interfaces.QnAService
	models interfaces.ModelService

	mu       sync.Mutex
	out      io.Writer
	streamed bool // The reply being committed was already echoed.
}

// NewSession wires a session and subscribes it to st.
func NewSession(st *store.Store, chat interfaces.ChatService, qna interfaces.QnAService, models interfaces.ModelService, out io.Writer) *Session {
	s := &Session{store: st, chat: chat, qna: qna, models: models, out: out}
	st.Subscribe(s.onEvent)
	return s
}

// Start probes the backend, loads the catalog and makes sure a thread
// exists. None of these steps can fail the session.
func (s *Session) Start(ctx context.Context) {
	if s.models.Health(ctx) {
		s.printf("Backend is reachable.\n")
	} else {
		s.printf("Backend is not reachable; requests will fail until it is.\n")
	}
	s.models.LoadCatalog(ctx)
	s.store.EnsureThread(s.models.Selected())
	s.printf("Model: %s. Type /help for commands.\n", s.models.Selected())
}

// Execute runs one input line and reports whether the session should end.
func (s *Session) Execute(ctx context.Context, line string) bool {
	cmd := ParseCommand(line)
	if cmd.IsChat() {
		if strings.TrimSpace(cmd.Arg) == "" {
			return false
		}
		s.send(ctx, cmd.Arg)
		return false
	}

	switch cmd.Name {
	case CmdQuit:
		return true
	case CmdHelp:
		s.printf("%s\n", helpText)
	case CmdNew:
		s.chat.NewConversation()
	case CmdThreads:
		s.listThreads()
	case CmdSwitch:
		s.switchThread(cmd.Arg)
	case CmdHistory:
		s.showHistory()
	case CmdAsk:
		s.ask(ctx, cmd.Arg)
	case CmdQnA:
		s.showQnA()
	case CmdModels:
		s.listModels()
	case CmdModel:
		s.selectModel(cmd.Arg)
	case CmdHealth:
		if s.models.Health(ctx) {
			s.printf("Backend is healthy.\n")
		} else {
			s.printf("Backend is not healthy.\n")
		}
	default:
		s.printf("Unknown command /%s. Type /help for commands.\n", cmd.Name)
	}
	return false
}

func (s *Session) send(ctx context.Context, text string) {
	err := s.chat.Send(ctx, text, service.WithOnDelta(s.echo))
	s.endEcho()
	s.reportSendError(err)
}

func (s *Session) ask(ctx context.Context, question string) {
	if question == "" {
		s.printf("Usage: /ask <question>\n")
		return
	}
	err := s.qna.Ask(ctx, question, service.WithOnDelta(s.echo))
	s.endEcho()
	s.reportSendError(err)
}

// reportSendError prints errors the store does not already show. Backend
// failures are visible as error entries in the history.
func (s *Session) reportSendError(err error) {
	switch {
	case err == nil:
	case errors.Is(err, app_errors.ErrBusy):
		s.printf("A request is already in flight.\n")
	case errors.Is(err, app_errors.ErrValidation), errors.Is(err, app_errors.ErrNotFound):
		s.printf("%v\n", err)
	}
}

func (s *Session) echo(piece string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamed = true
	fmt.Fprint(s.out, piece)
}

func (s *Session) endEcho() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamed = false
}

func (s *Session) onEvent(e store.Event) {
	switch e.Kind {
	case store.MessageAppended:
		thread, ok := s.store.Thread(e.ThreadID)
		if !ok || len(thread.Messages) == 0 {
			return
		}
		last := thread.Messages[len(thread.Messages)-1]
		if last.Role != model.RoleAssistant {
			return
		}
		s.renderReply(last.Content, last.Model, last.IsError())
	case store.QnAAppended:
		items := s.store.QnAItems()
		last := items[len(items)-1]
		s.renderReply(last.Answer, last.Model, last.IsError())
	case store.PendingChanged:
		if q, ok := s.store.Pending(); ok {
			s.printf("? %s\n", q)
		}
	case store.ThreadCreated:
		s.printf("Started a new conversation.\n")
	case store.ThreadSelected:
		if thread, ok := s.store.Thread(e.ThreadID); ok {
			s.printf("Switched to %q.\n", thread.Title)
		}
	case store.ModelChanged:
		s.printf("Model: %s\n", s.store.SelectedModel())
	}
}

func (s *Session) renderReply(content, modelID string, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamed && !failed {
		fmt.Fprintf(s.out, "\n[%s]\n", modelID)
		return
	}
	if s.streamed {
		fmt.Fprintln(s.out)
	}
	if failed {
		fmt.Fprintf(s.out, "! %s\n", content)
		return
	}
	fmt.Fprintf(s.out, "%s\n[%s]\n", content, modelID)
}

func (s *Session) listThreads() {
	active := s.store.ActiveThreadID()
	for i, thread := range s.store.Threads() {
		marker := " "
		if thread.ID == active {
			marker = "*"
		}
		s.printf("%s %d. %s (%d messages)\n", marker, i+1, thread.Title, len(thread.Messages))
	}
}

func (s *Session) switchThread(arg string) {
	if arg == "" {
		s.printf("Usage: /switch <n|id>\n")
		return
	}
	id := arg
	if n, err := strconv.Atoi(arg); err == nil {
		threads := s.store.Threads()
		if n < 1 || n > len(threads) {
			s.printf("No conversation number %d.\n", n)
			return
		}
		id = threads[n-1].ID
	}
	if err := s.store.SelectThread(id); err != nil {
		s.printf("%v\n", err)
	}
}

func (s *Session) showHistory() {
	thread, ok := s.store.ActiveThread()
	if !ok {
		s.printf("No active conversation.\n")
		return
	}
	s.printf("== %s ==\n", thread.Title)
	for _, m := range thread.Messages {
		switch {
		case m.Role == model.RoleUser:
			s.printf("> %s\n", m.Content)
		case m.IsError():
			s.printf("! %s\n", m.Content)
		default:
			s.printf("%s [%s]\n", m.Content, m.Model)
		}
	}
}

func (s *Session) showQnA() {
	items := s.store.QnAItems()
	if len(items) == 0 {
		s.printf("No questions yet.\n")
		return
	}
	for _, item := range items {
		s.printf("? %s\n", item.Question)
		if item.IsError() {
			s.printf("! %s\n", item.Answer)
		} else {
			s.printf("%s [%s]\n", item.Answer, item.Model)
		}
	}
}

func (s *Session) listModels() {
	selected := s.models.Selected()
	for _, m := range s.models.Catalog() {
		marker := " "
		if m.ID == selected {
			marker = "*"
		}
		s.printf("%s %s (%s)\n", marker, m.ID, m.DisplayName)
	}
}

func (s *Session) selectModel(id string) {
	if id == "" {
		s.printf("Usage: /model <id>\n")
		return
	}
	if err := s.models.Select(id); err != nil {
		s.printf("%v\n", err)
	}
}

func (s *Session) printf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}
