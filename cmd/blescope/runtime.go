package main

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blescope/blescope/internal/adapter"
	"github.com/blescope/blescope/internal/discovery"
	"github.com/blescope/blescope/internal/inspector"
	"github.com/blescope/blescope/internal/scan"
	"github.com/blescope/blescope/internal/session"
	"github.com/blescope/blescope/internal/stack"
	"github.com/blescope/blescope/internal/stack/goble"
	"github.com/blescope/blescope/internal/subscription"
	"github.com/blescope/blescope/pkg/config"
)

// stackFactory creates the host stack; a variable so command tests can
// substitute a fake.
var stackFactory = func(logger *logrus.Logger) stack.Stack {
	return goble.New(logger)
}

// app wires the core components behind the commands.
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	stack    stack.Stack
	monitor  *adapter.Monitor
	scanner  *scan.Controller
	sessions *session.Manager
	engine   *discovery.Engine
	subs     *subscription.Manager
}

// newApp loads configuration and assembles the component graph.
func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".blescope.yaml")
		}
	}

	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	st := stackFactory(logger)
	monitor := adapter.NewMonitor(st, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		stack:    st,
		monitor:  monitor,
		scanner:  scan.NewController(st, monitor, logger),
		sessions: session.NewManager(st, logger),
		engine:   discovery.NewEngine(logger),
		subs:     subscription.NewManager(logger),
	}, nil
}

// inspectorOptions builds the connect/discover lifecycle options from the
// command's flags with config-file fallbacks.
func inspectorOptions(cmd *cobra.Command, a *app) *inspector.Options {
	opts := &inspector.Options{
		ConnectTimeout: a.cfg.ConnectTimeout.Std(),
		MTU:            a.cfg.MTU,
	}
	if timeout, err := cmd.Flags().GetDuration("connect-timeout"); err == nil && timeout > 0 {
		opts.ConnectTimeout = timeout
	}
	return opts
}
