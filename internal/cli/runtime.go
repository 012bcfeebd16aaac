package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/KafClaw/taskclaw/internal/agent"
	"github.com/KafClaw/taskclaw/internal/backend"
	"github.com/KafClaw/taskclaw/internal/board"
	"github.com/KafClaw/taskclaw/internal/config"
	"github.com/KafClaw/taskclaw/internal/intent"
	"github.com/KafClaw/taskclaw/internal/policy"
	"github.com/KafClaw/taskclaw/internal/provider"
	"github.com/KafClaw/taskclaw/internal/store"
	"github.com/KafClaw/taskclaw/internal/timeline"
)

// runtime bundles the collaborators a command needs. Close releases them.
type runtime struct {
	cfg       *config.Config
	repo      board.Repository
	local     *store.Store
	timeline  *timeline.TimelineService
	generator provider.Generator
	pipeline  *agent.Pipeline
}

// newGenerator is swapped in tests.
var newGenerator = provider.Resolve

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openTimeline(cfg *config.Config) (*timeline.TimelineService, error) {
	if err := config.EnsureDir(cfg.Paths.DataDir); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return timeline.NewTimelineService(filepath.Join(cfg.Paths.DataDir, "timeline.db"))
}

// openRepository returns the configured board backend.
func openRepository(ctx context.Context, cfg *config.Config) (board.Repository, *store.Store, error) {
	switch cfg.Backend.Kind {
	case config.BackendREST:
		c := backend.NewClient(ctx, cfg.Backend.BaseURL, cfg.Backend.Token, cfg.Backend.Timeout, cfg.Backend.DeveloperCacheTTL)
		c.PersistDevelopers(filepath.Join(cfg.Paths.DataDir, "developers.json"))
		return c, nil, nil
	default:
		if err := config.EnsureDir(cfg.Paths.DataDir); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		s, err := store.Open(filepath.Join(cfg.Paths.DataDir, "board.db"))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}

func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg}
	var err error
	if rt.timeline, err = openTimeline(cfg); err != nil {
		return nil, err
	}
	if rt.repo, rt.local, err = openRepository(ctx, cfg); err != nil {
		rt.Close()
		return nil, err
	}

	prompts, err := intent.LoadPrompts(cfg.Pipeline.PromptsFile)
	if err != nil {
		rt.Close()
		return nil, err
	}

	// A missing model is not fatal: the pipeline reports it per command.
	gen, err := newGenerator(ctx, cfg)
	if err != nil {
		var perr *provider.ProviderError
		if !errors.As(err, &perr) {
			rt.Close()
			return nil, err
		}
		slog.Warn("Runtime: model unavailable", "error", err)
		gen = provider.Unavailable{Reason: err.Error()}
	}
	rt.generator = gen

	rt.pipeline = agent.NewPipeline(agent.PipelineOptions{
		Generator:  gen,
		Repository: rt.repo,
		Classifier: intent.Classifier{Strict: cfg.Pipeline.StrictIntent},
		Prompts:    prompts,
		Policy:     newPolicyEngine(cfg.Pipeline),
		Timeline:   rt.timeline,
		DryRun:     cfg.Pipeline.DryRun,
	})
	return rt, nil
}

func newPolicyEngine(pc config.PipelineConfig) *policy.DefaultEngine {
	engine := policy.NewDefaultEngine()
	engine.MaxAutoTier = pc.MaxAutoTier
	if len(pc.AllowedSenders) > 0 {
		engine.AllowedSenders = make(map[string]bool, len(pc.AllowedSenders))
		for _, s := range pc.AllowedSenders {
			if s != "" {
				engine.AllowedSenders[s] = true
			}
		}
	}
	return engine
}

func (rt *runtime) Close() {
	if rt.local != nil {
		rt.local.Close()
	}
	if rt.timeline != nil {
		rt.timeline.Close()
	}
}
