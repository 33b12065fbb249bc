// Package inspector bundles the connect → discover → operate → disconnect
// flow used by every command that talks to a single peripheral.
package inspector

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blescope/blescope/internal/core"
	"github.com/blescope/blescope/internal/discovery"
	"github.com/blescope/blescope/internal/session"
)

// ProgressCallback is called when the inspection phase changes.
type ProgressCallback func(phase string)

// Options configures the inspection lifecycle.
type Options struct {
	ConnectTimeout  time.Duration
	DiscoverTimeout time.Duration
	MTU             int
}

// Callback processes a connected peripheral and its discovered tree,
// producing a result of type R.
type Callback[R any] func(s *session.Session, tree []*core.ServiceDescriptor) (R, error)

// WithDevice connects to a peripheral, discovers its GATT tree, executes the
// callback, and disconnects. The session lifecycle is managed here so
// callers only express the operation itself.
func WithDevice[R any](
	ctx context.Context,
	mgr *session.Manager,
	engine *discovery.Engine,
	address string,
	opts *Options,
	logger *logrus.Logger,
	progress ProgressCallback,
	callback Callback[R],
) (R, error) {
	var zero R
	if opts == nil {
		opts = &Options{ConnectTimeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
	}
	if progress == nil {
		progress = func(string) {}
	}

	progress("Connecting")

	sess := mgr.Session(address)
	err := sess.Connect(ctx, session.ConnectOptions{
		Timeout: opts.ConnectTimeout,
		MTU:     opts.MTU,
	})
	if err != nil {
		progress("Failed")
		return zero, err
	}

	defer func() {
		if err := sess.Disconnect(); err != nil {
			logger.WithError(err).Error("failed to disconnect device")
		}
	}()

	progress("Discovering")

	discoverCtx := ctx
	if opts.DiscoverTimeout > 0 {
		var cancel context.CancelFunc
		discoverCtx, cancel = context.WithTimeout(ctx, opts.DiscoverTimeout)
		defer cancel()
	}

	tree, err := engine.Discover(discoverCtx, sess)
	if err != nil {
		progress("Failed")
		return zero, err
	}

	progress("Processing results")

	return callback(sess, tree)
}
