package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/daybook-dev/daybook/internal/classify"
	"github.com/daybook-dev/daybook/internal/config"
	"github.com/daybook-dev/daybook/internal/engine"
	"github.com/daybook-dev/daybook/internal/importer"
	"github.com/daybook-dev/daybook/internal/logger"
	"github.com/daybook-dev/daybook/internal/match"
	"github.com/daybook-dev/daybook/internal/normalize"
	"github.com/daybook-dev/daybook/internal/providers"
	"github.com/daybook-dev/daybook/internal/store"
)

// env bundles everything a CLI command needs to talk to the engine.
type env struct {
	cfg    *config.Config
	store  *store.Store
	engine *engine.Engine
}

func (e *env) Close() {
	if e.store != nil {
		e.store.Close()
	}
}

// newEnv loads the config, opens the database and wires an engine with
// the CSV feed source.
func newEnv(configPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	st, err := store.Open(filepath.Join(cfg.DataDir, cfg.Database.Path), log)
	if err != nil {
		return nil, err
	}

	catalogue, err := loadCatalogue(cfg.DataDir)
	if err != nil {
		st.Close()
		return nil, err
	}

	policy := normalize.Policy(cfg.Normalize.Policy)
	feeds := &CSVFeedSource{DataDir: cfg.DataDir, Registry: importer.DefaultRegistry()}

	eng := engine.New(st, catalogue, feeds, engine.Config{
		Match: match.Config{
			Window:           time.Duration(cfg.Matching.WindowHours) * time.Hour,
			SettlementWindow: time.Duration(cfg.Matching.SettlementWindowHours) * time.Hour,
		},
		Classify: classify.Config{
			HighVariancePct:  cfg.Exception.HighVariancePct,
			PendingMediumAge: time.Duration(cfg.Exception.PendingMediumAge) * time.Hour,
		},
		NormalizePolicy: policy,
		DataDir:         cfg.DataDir,
	}, log)

	return &env{cfg: cfg, store: st, engine: eng}, nil
}

// loadCatalogue reads providers.csv, falling back to the built-in
// defaults when the file does not exist yet.
func loadCatalogue(dataDir string) (*providers.Service, error) {
	svc, err := providers.Load(dataDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return providers.NewService(providers.Defaults()), nil
		}
		return nil, fmt.Errorf("loading provider catalogue: %w", err)
	}
	return svc, nil
}
