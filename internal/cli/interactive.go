package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/dyike/IndexGo/config"
)

// InteractiveSession handles interactive CLI sessions
type InteractiveSession struct {
	opts *options
	out  io.Writer

	mu      sync.Mutex
	pending *config.Config
}

// NewInteractiveSession creates a new interactive session
func NewInteractiveSession(opts *options) *InteractiveSession {
	return &InteractiveSession{opts: opts, out: os.Stdout}
}

// Start asks for a budget, shows the purchase plan and loops until the user
// exits. Edits to the config file are picked up before the next run.
func (s *InteractiveSession) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	DisplayWelcomeBanner(s.out)
	s.watchConfig(ctx)

	a, err := newApp(s.opts.cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	action := actionPlan
	for {
		if cfg := s.takeReload(); cfg != nil {
			next, err := newApp(cfg, os.Stderr)
			if err != nil {
				DisplayError(s.out, fmt.Errorf("config reload: %w", err))
			} else {
				_ = a.Close()
				a = next
				s.opts.cfg = cfg
				DisplayInfo(s.out, "Configuration reloaded")
			}
		}

		switch action {
		case actionPlan:
			err = s.runPlan(ctx, a)
		case actionComposition:
			DisplayComposition(s.out, a.engine.Composition(ctx), a.cfg.IndexFunds)
		case actionFunds:
			DisplayFunds(s.out, a.engine.FundDetails(ctx))
		case actionExit:
			fmt.Fprintln(s.out, "👋 Thank you for using IndexGo!")
			return nil
		}
		if err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				return nil
			}
			DisplayError(s.out, err)
		}

		fmt.Fprintln(s.out)
		action, err = PromptForNextAction()
		if err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				return nil
			}
			return err
		}
	}
}

func (s *InteractiveSession) runPlan(ctx context.Context, a *app) error {
	cash, err := PromptForCash(a.cfg.DefaultCash)
	if err != nil {
		return err
	}
	fractional, err := PromptForFractional(a.cfg.Fractional)
	if err != nil {
		return err
	}

	DisplayInfo(s.out, "Resolving fund sizes and prices...")
	run := a.engine.Plan(ctx, cash, fractional)
	DisplayAssets(s.out, run.Assets, a.cfg.IndexFunds)
	fmt.Fprintln(s.out)
	DisplayPlan(s.out, run)

	if len(run.Plan.Buy) == 0 {
		return nil
	}
	save, err := PromptForExport()
	if err != nil || !save {
		return err
	}
	path, err := a.exports.SaveOrderSheet(run.Plan, "")
	if err != nil {
		return err
	}
	DisplaySuccess(s.out, "Order sheet saved to "+path)
	return nil
}

// watchConfig reloads the config file on change. Without a config file
// there is nothing to watch.
func (s *InteractiveSession) watchConfig(ctx context.Context) {
	if s.opts.configPath == "" {
		return
	}
	mgr, err := config.NewManager(config.WithConfigPath(s.opts.configPath))
	if err != nil {
		DisplayWarning(s.out, fmt.Sprintf("config watch disabled: %v", err))
		return
	}
	level, debug := s.opts.cfg.LogLevel, s.opts.cfg.Debug
	err = mgr.Watch(ctx, func(cfg config.Config) {
		cfg.LogLevel = level
		cfg.Debug = debug
		if err := cfg.Validate(); err != nil {
			return
		}
		s.mu.Lock()
		s.pending = &cfg
		s.mu.Unlock()
	})
	if err != nil {
		DisplayWarning(s.out, fmt.Sprintf("config watch disabled: %v", err))
	}
}

func (s *InteractiveSession) takeReload() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.pending
	s.pending = nil
	return cfg
}
