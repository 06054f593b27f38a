package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"sift/internal/api"
	"sift/internal/config"
	"sift/internal/logging"
	"sift/internal/session"
)

func parseFlags() config.Config {
	cfg := config.Load()
	flag.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "QA backend base URL")
	flag.StringVar(&cfg.APIToken, "token", cfg.APIToken, "bearer token (or SIFT_API_TOKEN)")
	flag.StringVar(&cfg.ConversationID, "conversation", cfg.ConversationID, "resume an existing conversation id")
	flag.StringVar(&cfg.SessionID, "session", cfg.SessionID, "session id")
	flag.IntVar(&cfg.ContextLimit, "context-limit", cfg.ContextLimit, "max documents the backend may pull into context (0 = server default)")
	flag.BoolVar(&cfg.UseSemanticSearch, "semantic", cfg.UseSemanticSearch, "enable semantic search")
	flag.BoolVar(&cfg.UseStructuredFilter, "structured-filter", cfg.UseStructuredFilter, "enable structured metadata filtering")
	flag.StringVar(&cfg.LogFile, "log", cfg.LogFile, "log file path (empty disables logging)")
	flag.BoolVar(&cfg.AltScreen, "alt-screen", cfg.AltScreen, "run in the terminal alternate screen")
	flag.Parse()
	return cfg
}

func main() {
	cfg := parseFlags()
	logger, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open log file %s: %v\n", cfg.LogFile, err)
		os.Exit(1)
	}

	client := api.NewClient(cfg.BaseURL, cfg.APIToken, logger)
	orch := session.NewOrchestrator(cfg.ConversationID, session.Options{
		SessionID:           cfg.SessionID,
		DocumentIDs:         cfg.DocumentIDs,
		ContextLimit:        cfg.ContextLimit,
		UseSemanticSearch:   cfg.UseSemanticSearch,
		UseStructuredFilter: cfg.UseStructuredFilter,
	}, logger)

	opts := []tea.ProgramOption{}
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(newModel(cfg, client, orch, logger), opts...)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "sift-tui fatal error: %v\n", err)
		os.Exit(1)
	}
}
