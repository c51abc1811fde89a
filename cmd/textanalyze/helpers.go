package main

import (
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lightartw/textanalyze"
	"github.com/lightartw/textanalyze/config"
	"github.com/lightartw/textanalyze/llm"
	"github.com/lightartw/textanalyze/store"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(rootFlags.configPath, rootFlags.envFile)
	if err != nil {
		return nil, errors.Annotatef(err, "load config")
	}
	return cfg, nil
}

func openRepository(cfg *config.Config) (store.Repository, error) {
	repo, err := textanalyze.NewRepository(cfg.StoreOptions()...)
	if err != nil {
		return nil, errors.Annotatef(err, "open %s repository", cfg.Database.Driver)
	}
	return repo, nil
}

func newCompleter(cfg *config.Config) llm.Completer {
	if cfg.UseMockLLM() {
		log.Warn("no LLM api key configured, the agents answer with canned mock results")
		return llm.NewMock()
	}
	return llm.NewClient(cfg.LLM)
}

func closeRepository(repo store.Repository) {
	if err := repo.Close(); err != nil {
		log.Warnf("failed to close repository: %v", err)
	}
}
