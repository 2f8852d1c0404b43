package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

const prompt = "qchat> "

// Run reads lines with history and line editing until /quit, Ctrl+C or
// Ctrl+D. historyFile may be empty.
func (s *Session) Run(ctx context.Context, historyFile string) error {
	line := liner.NewLiner()
	defer func() {
		if err := line.Close(); err != nil {
			slog.Warn("Failed to restore terminal", "error", err)
		}
	}()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeCommand)

	loadHistory(line, historyFile)
	defer saveHistory(line, historyFile)

	for {
		if ctx.Err() != nil {
			return nil
		}
		input, err := line.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				s.printf("\n")
				return nil
			}
			return err
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		if s.Execute(ctx, input) {
			return nil
		}
	}
}

func completeCommand(line string) []string {
	if !strings.HasPrefix(line, "/") || strings.Contains(line, " ") {
		return nil
	}
	var out []string
	for _, name := range []string{CmdNew, CmdThreads, CmdSwitch, CmdHistory, CmdAsk, CmdQnA, CmdModels, CmdModel, CmdHealth, CmdHelp, CmdQuit} {
		if strings.HasPrefix("/"+name, line) {
			out = append(out, "/"+name)
		}
	}
	return out
}

func loadHistory(line *liner.State, path string) {
	if path == "" {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := line.ReadHistory(f); err != nil {
		slog.Debug("Could not read input history", "file", path, "error", err)
	}
}

// saveHistory writes the input history owner-only.
func saveHistory(line *liner.State, path string) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		slog.Debug("Could not create history directory", "error", err)
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		slog.Debug("Could not open history file", "file", path, "error", err)
		return
	}
	defer f.Close()
	if _, err := line.WriteHistory(f); err != nil {
		slog.Debug("Could not write input history", "file", path, "error", err)
	}
}
