package cli

import "strings"

// Command names typed after a slash.
const (
	CmdNew     = "new"
	CmdThreads = "threads"
	CmdSwitch  = "switch"
	CmdHistory = "history"
	CmdAsk     = "ask"
	CmdQnA     = "qna"
	CmdModels  = "models"
	CmdModel   = "model"
	CmdHealth  = "health"
	CmdHelp    = "help"
	CmdQuit    = "quit"
)

// Command is one parsed input line. A line that is not a slash command is a
// chat message: Name is empty and Arg holds the text.
type Command struct {
	Name string
	Arg  string
}

// IsChat reports whether the line is a chat message.
func (c Command) IsChat() bool { return c.Name == "" }

var aliases = map[string]string{
	"exit": CmdQuit,
	"q":    CmdQuit,
	"?":    CmdHelp,
	"ls":   CmdThreads,
}

// ParseCommand splits a line into a command and its argument. "//" escapes a
// chat message that starts with a slash.
func ParseCommand(line string) Command {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "//") {
		return Command{Arg: trimmed[1:]}
	}
	if !strings.HasPrefix(trimmed, "/") {
		return Command{Arg: line}
	}

	name, arg, _ := strings.Cut(trimmed[1:], " ")
	name = strings.ToLower(name)
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	return Command{Name: name, Arg: strings.TrimSpace(arg)}
}

const helpText = `Commands:
  /new              start a new conversation
  /threads          list conversations
  /switch <n|id>    switch to a conversation by number or id
  /history          show the active conversation
  /ask <question>   ask a single question (QnA)
  /qna              show the QnA history
  /models           list models
  /model <id>       select a model
  /health           check the backend
  /help             show this help
  /quit             exit
Any other line is sent to the active conversation.`
