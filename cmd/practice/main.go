// Command practice runs a speaking test in the terminal against a running
// API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"ielts-speaking/internal/apiclient"
	"ielts-speaking/internal/config"
	"ielts-speaking/internal/speaking"
	"ielts-speaking/internal/storage"
	"ielts-speaking/internal/textio"
	"ielts-speaking/internal/tui"
)

func main() {
	apiURL := flag.String("api", "http://localhost:3000", "base URL of the speaking API")
	configPath := flag.String("config", "config/speaking.yaml", "test definition (YAML or TOML)")
	saveDir := flag.String("save", "", "directory to archive the finished test in")
	logFile := flag.String("log", "", "write logs to this file")
	flag.Parse()

	if err := run(*apiURL, *configPath, *saveDir, *logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(apiURL, configPath, saveDir, logFile string) error {
	// The terminal belongs to the UI; logs go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	logger := slog.New(slog.NewTextHandler(logOut, nil))

	cfg, err := config.Load(configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		return err
	}

	var archive *storage.Archive
	if saveDir != "" {
		archive = storage.NewArchive(saveDir)
	}

	client := apiclient.New(apiURL)
	keyboard := &textio.Keyboard{}

	var program *tea.Program
	ctrl, err := speaking.New(speaking.Deps{
		Questions: client,
		Evaluator: client,
		// Questions are shown on screen, so speaking them is instant.
		Speaker:     textio.SpeakerFunc(func(context.Context, string) error { return nil }),
		Recorder:    &textio.Line{},
		Transcriber: keyboard,
		Notifier:    speaking.NotifierFunc(func(u speaking.Update) { program.Send(tui.UpdateMsg(u)) }),
		Logger:      logger,
	}, speaking.NewConfig(cfg))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	program = tea.NewProgram(tui.New(ctrl, keyboard, archive), tea.WithAltScreen(), tea.WithContext(ctx))
	go func() { _ = ctrl.Run(ctx) }()

	_, err = program.Run()
	cancel()
	<-ctrl.Done()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
