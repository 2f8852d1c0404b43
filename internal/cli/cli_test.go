package cli_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yusuftnc/qchat/internal/backend"
	"github.com/yusuftnc/qchat/internal/backend/mocks"
	"github.com/yusuftnc/qchat/internal/cli"
	app_errors "github.com/yusuftnc/qchat/internal/errors"
	"github.com/yusuftnc/qchat/internal/model"
	"github.com/yusuftnc/qchat/internal/response"
	"github.com/yusuftnc/qchat/internal/service"
	"github.com/yusuftnc/qchat/internal/store"
)

func TestParseCommand(t *testing.T) {
	testCases := []struct {
		line string
		want cli.Command
	}{
		{"hello there", cli.Command{Arg: "hello there"}},
		{"/new", cli.Command{Name: cli.CmdNew}},
		{"  /Switch 2 ", cli.Command{Name: cli.CmdSwitch, Arg: "2"}},
		{"/ask what is Go?", cli.Command{Name: cli.CmdAsk, Arg: "what is Go?"}},
		{"/exit", cli.Command{Name: cli.CmdQuit}},
		{"//etc/hosts is a file", cli.Command{Arg: "/etc/hosts is a file"}},
		{"/unknown x", cli.Command{Name: "unknown", Arg: "x"}},
	}
	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			assert.Equal(t, tc.want, cli.ParseCommand(tc.line))
		})
	}
	assert.True(t, cli.ParseCommand("hi").IsChat())
	assert.False(t, cli.ParseCommand("/qna").IsChat())
}

type fixture struct {
	session *cli.Session
	store   *store.Store
	backend *mocks.MockBackend
	out     *bytes.Buffer
}

func setupSession(t *testing.T, stream bool) fixture {
	mockBackend := mocks.NewMockBackend(t)
	st := store.New("llama3.2:1b")
	out := &bytes.Buffer{}
	session := cli.NewSession(st,
		service.NewChatService(st, mockBackend, stream),
		service.NewQnAService(st, mockBackend, stream),
		service.NewModelService(st, mockBackend, time.Second),
		out,
	)
	return fixture{session: session, store: st, backend: mockBackend, out: out}
}

func TestSession_StartDegradesGracefully(t *testing.T) {
	ctx := context.Background()
	f := setupSession(t, false)
	f.backend.On("Health", mock.Anything).Return(false, app_errors.ErrTransport).Once()
	f.backend.On("ListModels", mock.Anything).Return(nil, app_errors.ErrTransport).Once()

	f.session.Start(ctx)

	assert.Contains(t, f.out.String(), "not reachable")
	assert.Equal(t, model.FallbackCatalog, f.store.Catalog())
	assert.Len(t, f.store.Threads(), 1)
}

func TestSession_ChatAndQnA(t *testing.T) {
	ctx := context.Background()
	f := setupSession(t, false)
	f.store.EnsureThread("llama3.2:1b")

	f.backend.On("Chat", ctx, mock.Anything).Return(&response.Answer{Model: "llama3.2:1b", Text: "Hello!"}, nil).Once()
	assert.False(t, f.session.Execute(ctx, "Hi"))
	assert.Contains(t, f.out.String(), "Hello!\n[llama3.2:1b]")

	f.backend.On("QnA", ctx, mock.Anything).Return(nil, app_errors.ErrTransport).Once()
	f.session.Execute(ctx, "/ask What is X?")
	assert.Contains(t, f.out.String(), "? What is X?")
	assert.Contains(t, f.out.String(), "! Sorry, the answer could not be retrieved")

	f.out.Reset()
	f.session.Execute(ctx, "/qna")
	assert.Contains(t, f.out.String(), "? What is X?\n! Sorry")

	f.out.Reset()
	f.session.Execute(ctx, "/history")
	assert.Equal(t, "== Hi ==\n> Hi\nHello! [llama3.2:1b]\n", f.out.String())
}

func TestSession_StreamedReplyIsNotPrintedTwice(t *testing.T) {
	ctx := context.Background()
	f := setupSession(t, true)
	f.store.EnsureThread("m")
	f.out.Reset()

	f.backend.On("Chat", ctx, mock.MatchedBy(func(req *backend.ChatRequest) bool { return req.Stream })).
		Run(func(args mock.Arguments) {
			req := args.Get(1).(*backend.ChatRequest)
			req.OnDelta("Hel")
			req.OnDelta("lo")
		}).
		Return(&response.Answer{Model: "m", Text: "Hello"}, nil).Once()

	f.session.Execute(ctx, "Hi")
	assert.Equal(t, "Hello\n[m]\n", f.out.String())
}

func TestSession_ThreadsAndModels(t *testing.T) {
	ctx := context.Background()
	f := setupSession(t, false)
	f.backend.On("ListModels", mock.Anything).Return([]model.ModelDescriptor{{ID: "a", DisplayName: "A"}, {ID: "b", DisplayName: "B"}}, nil).Once()
	f.backend.On("Health", mock.Anything).Return(true, nil).Once()
	f.session.Start(ctx)

	first := f.store.ActiveThreadID()
	f.session.Execute(ctx, "/new")
	second := f.store.ActiveThreadID()
	require.NotEqual(t, first, second)

	f.out.Reset()
	f.session.Execute(ctx, "/threads")
	assert.Contains(t, f.out.String(), "* 1. New conversation")

	f.session.Execute(ctx, "/switch 2")
	assert.Equal(t, first, f.store.ActiveThreadID())

	f.out.Reset()
	f.session.Execute(ctx, "/switch 9")
	assert.Contains(t, f.out.String(), "No conversation number 9")

	f.session.Execute(ctx, "/model b")
	assert.Equal(t, "b", f.store.SelectedModel())

	f.out.Reset()
	f.session.Execute(ctx, "/model zzz")
	assert.Contains(t, f.out.String(), "not in the catalog")

	f.out.Reset()
	f.session.Execute(ctx, "/models")
	assert.Equal(t, "  a (A)\n* b (B)\n", f.out.String())

	assert.True(t, f.session.Execute(ctx, "/quit"))
}
