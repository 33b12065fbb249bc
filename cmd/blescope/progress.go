package main

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter displays a one-line progress message with elapsed time on
// stderr. Output is suppressed entirely when stderr is not a terminal, so
// piped and scripted invocations stay clean.
//
// A ProgressPrinter is single-use: Start at most once, Stop exactly once.
type ProgressPrinter struct {
	prefix    string
	phase     atomic.Value // current phase name
	startTime time.Time
	stopChan  chan struct{}
	done      chan struct{}
	started   atomic.Bool
	stopped   atomic.Bool
	isTTY     bool
}

// NewProgressPrinter creates a progress printer with an initial phase.
func NewProgressPrinter(prefix, phase string) *ProgressPrinter {
	p := &ProgressPrinter{
		prefix:   prefix,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		isTTY:    term.IsTerminal(int(os.Stderr.Fd())),
	}
	p.phase.Store(phase)
	return p
}

// Start launches the render loop. Calling Start twice is a no-op.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	p.startTime = time.Now()

	if !p.isTTY {
		close(p.done)
		return
	}

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopChan:
				fmt.Fprint(os.Stderr, clearLineSequence)
				return
			case <-ticker.C:
				elapsed := time.Since(p.startTime).Truncate(100 * time.Millisecond)
				fmt.Fprintf(os.Stderr, "%s%s: %s (%s)", clearLineSequence, p.prefix, p.phase.Load(), elapsed)
			}
		}
	}()
}

// SetPhase updates the displayed phase name.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

// Callback returns a phase callback suitable for the core packages.
func (p *ProgressPrinter) Callback() func(phase string) {
	return p.SetPhase
}

// Stop terminates the render loop and clears the line. Safe to call more
// than once; only the first call has effect.
func (p *ProgressPrinter) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	if !p.started.Load() {
		return
	}
	close(p.stopChan)
	<-p.done
}
