package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rohankatakam/warpgraph/internal/config"
	"github.com/rohankatakam/warpgraph/internal/engine"
	"github.com/rohankatakam/warpgraph/internal/logging"
	"github.com/rohankatakam/warpgraph/internal/objectstore"
	"github.com/rohankatakam/warpgraph/internal/patchbuilder"
)

func libraryLevel(level string) logging.LogLevel {
	switch level {
	case "debug":
		return logging.DEBUG
	case "warn":
		return logging.WARN
	case "error":
		return logging.ERROR
	default:
		return logging.INFO
	}
}

// openEngine opens the configured object store and returns an Engine ready
// to drive against it, plus a closer the caller must defer. Commands that
// only read (sync, query, verify) pass validationCtx accordingly; commit
// additionally needs writer.id.
func openEngine(validationCtx config.ValidationContext) (*engine.Engine, func() error, error) {
	result := cfg.ValidateWithMode(validationCtx, config.DetectMode())
	if result.HasErrors() {
		return nil, nil, fmt.Errorf("%s", result.Error())
	}

	if err := ensureParentDir(cfg.Store.Path); err != nil {
		return nil, nil, err
	}
	store, err := objectstore.OpenBoltStore(cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store at %s: %w", cfg.Store.Path, err)
	}

	libLogger, err := logging.NewLogger(logging.Config{
		Level:      libraryLevel(cfg.Logging.Level),
		OutputFile: cfg.Logging.OutputFile,
		JSONFormat: cfg.Logging.JSONFormat,
		AddSource:  cfg.Logging.AddSource,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	policy := patchbuilder.DeleteWithDataPolicy(cfg.Index.DeleteWithDataPolicy)
	e := engine.New(store, cfg.Graph.Name, cfg.Index.ShardCacheSize, policy, libLogger)
	return e, store.Close, nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
