// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dpi implements the host-side DPI service loop of spec §4.6:
// users register DPI function callbacks, then run the service loop,
// which polls the mailbox's pending-call bitmask, dispatches each
// pending call to its callback, and writes the result back.
//
// Grounded on the retrieved loom_dpi_service.c/.h reference
// implementation for the registration/poll/get-call/complete protocol
// and the service loop's termination conditions; the request/response
// poll and the asynchronous IRQ wait run concurrently via
// golang.org/x/sync/errgroup, matching cmd/daq-boot/main.go's
// errgroup.Group multi-goroutine supervisor idiom.
package dpi

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-lpc/loom/host"
	"github.com/go-lpc/loom/host/wire"
	"github.com/go-lpc/loom/ir"
	"golang.org/x/sync/errgroup"
)

const op = "host/dpi"

// maxFuncs bounds the pending-call bitmask to 32 functions, matching
// the reference implementation's `pending_mask & (1 << func_id)`
// scheme (spec §9 "priority across multiple calls... func-id 0
// dominates").
const maxFuncs = 32

// Func is one registered DPI function implementation.
type Func struct {
	ID       int
	Name     string
	NArgs    int
	RetWidth int
	Callback func(args []uint32) uint64
}

// ExitCode is why Run returned (spec §4.6 termination conditions).
type ExitCode int

const (
	ExitComplete ExitCode = iota
	ExitError
	ExitTimeout
	ExitEmuError
)

func (c ExitCode) String() string {
	switch c {
	case ExitComplete:
		return "Complete"
	case ExitError:
		return "Error"
	case ExitTimeout:
		return "Timeout"
	case ExitEmuError:
		return "EmuError"
	default:
		return "Unknown"
	}
}

// Service dispatches pending DPI calls against a registered function
// table (spec §4.6 "the DPI function table is registered once before
// the service loop starts and is read-only thereafter").
type Service struct {
	ctx   *host.Context
	funcs map[int]Func

	callCount  uint64
	errorCount uint64
	exitReq    int32 // one-shot cancellation flag (Design Notes §9)
}

// NewService builds a Service dispatching against ctx.
func NewService(ctx *host.Context) *Service {
	return &Service{ctx: ctx, funcs: map[int]Func{}}
}

// Register adds f to the dispatch table. Must be called before Run.
func (s *Service) Register(f Func) { s.funcs[f.ID] = f }

// CallByName invokes the registered function named name directly,
// with no mailbox round-trip: this is how reset-DPI calls execute
// (spec §4.7 "the shell issues each flagged call to the host"), as
// opposed to the emulator-initiated calls ServiceOnce dispatches. Only
// the first f.NArgs words of args are passed to the callback.
func (s *Service) CallByName(ctx context.Context, name string, args []uint32) (uint64, error) {
	for _, f := range s.funcs {
		if f.Name != name {
			continue
		}
		if len(args) > f.NArgs {
			args = args[:f.NArgs]
		}
		return f.Callback(args), nil
	}
	return 0, ir.Errorf(ir.InvalidArgument, op, "no registered DPI function named %q", name)
}

// RequestExit asks the running service loop to stop after its current
// round; safe to call from inside a callback (spec Design Notes §9
// "Callers of the DPI service loop must be able to request
// termination from inside a callback").
func (s *Service) RequestExit() { atomic.StoreInt32(&s.exitReq, 1) }

func (s *Service) exitRequested() bool { return atomic.LoadInt32(&s.exitReq) != 0 }

// CallCount returns the number of DPI calls serviced since creation.
func (s *Service) CallCount() uint64 { return atomic.LoadUint64(&s.callCount) }

// ErrorCount returns the number of per-call errors encountered.
func (s *Service) ErrorCount() uint64 { return atomic.LoadUint64(&s.errorCount) }

// ServiceOnce polls for pending calls and dispatches each to its
// registered callback (spec §5 "dpi_service_once (non-blocking)").
// It returns the number of calls serviced.
func (s *Service) ServiceOnce(ctx context.Context) (int, error) {
	pending, err := s.ctx.Read32(ctx, wire.RegDPIPending)
	if err != nil {
		return 0, ir.Wrap(ir.TransportFailure, op, err, "could not poll pending mask")
	}
	if pending == 0 {
		return 0, nil
	}
	if pending&(pending-1) != 0 {
		// Simultaneous activations are a design error: the bridge
		// shares one result bus across all calls.
		atomic.AddUint64(&s.errorCount, 1)
		return 0, ir.Errorf(ir.ProtocolViolation, op, "simultaneous DPI calls pending (mask=%#x)", pending)
	}

	serviced := 0
	for id := 0; id < maxFuncs; id++ {
		if pending&(1<<uint(id)) == 0 {
			continue
		}

		f, ok := s.funcs[id]
		if !ok {
			atomic.AddUint64(&s.errorCount, 1)
			if err := s.errorOut(ctx, id); err != nil {
				return serviced, err
			}
			continue
		}

		args, err := s.readArgs(ctx, f)
		if err != nil {
			atomic.AddUint64(&s.errorCount, 1)
			return serviced, err
		}

		result := f.Callback(args)

		if err := s.complete(ctx, f, result); err != nil {
			atomic.AddUint64(&s.errorCount, 1)
			return serviced, err
		}

		serviced++
		atomic.AddUint64(&s.callCount, 1)
	}
	return serviced, nil
}

func (s *Service) readArgs(ctx context.Context, f Func) ([]uint32, error) {
	args := make([]uint32, f.NArgs)
	for i := range args {
		v, err := s.ctx.Read32(ctx, wire.FuncArgOffset(f.ID, i))
		if err != nil {
			return nil, ir.Wrap(ir.TransportFailure, op, err, "could not read arg %d of %q", i, f.Name)
		}
		args[i] = v
	}
	return args, nil
}

// complete writes the return value words starting right after the
// function's argument block, then acks the status register to
// release dpi_ack back to the emulator (spec §4.5 clock gate).
func (s *Service) complete(ctx context.Context, f Func, result uint64) error {
	words := (f.RetWidth + 31) / 32
	if words == 0 {
		words = 1
	}
	base := wire.FuncArgOffset(f.ID, f.NArgs)
	for i := 0; i < words; i++ {
		if err := s.ctx.Write32(ctx, base+uint32(i)*4, uint32(result>>(32*i))); err != nil {
			return ir.Wrap(ir.TransportFailure, op, err, "could not write result of %q", f.Name)
		}
	}
	return s.ctx.Write32(ctx, wire.FuncStatusOffset(f.ID), wire.FuncStatusAck)
}

func (s *Service) errorOut(ctx context.Context, id int) error {
	return s.ctx.Write32(ctx, wire.FuncStatusOffset(id), wire.FuncStatusAck)
}

// RunOptions configures Run's polling and timeout behaviour.
type RunOptions struct {
	PollInterval time.Duration // default 10ms, matching the reference's usleep(10000)
	Timeout      time.Duration // no DPI activity for this long => ExitTimeout
}

func (o RunOptions) withDefaults() RunOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Millisecond
	}
	return o
}

// Run drives the service loop until completion, an error, a timeout,
// or an emulator error state (spec §4.6; §5 "dpi_service_run (loops
// until termination condition)"). The request/response poll and the
// asynchronous IRQ wait run concurrently; an IRQ wakes the poll early
// instead of waiting out the next PollInterval tick.
func (s *Service) Run(ctx context.Context, opt RunOptions) (ExitCode, error) {
	opt = opt.withDefaults()

	gctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wake := make(chan struct{}, 1)
	var g errgroup.Group

	g.Go(func() error {
		for {
			if _, err := s.ctx.WaitIRQ(gctx); err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	})

	var code ExitCode
	var loopErr error
	g.Go(func() error {
		code, loopErr = s.serviceLoop(gctx, opt, wake)
		cancel()
		return loopErr
	})

	_ = g.Wait()
	return code, loopErr
}

func (s *Service) serviceLoop(ctx context.Context, opt RunOptions, wake <-chan struct{}) (ExitCode, error) {
	var lastActivity time.Time
	for {
		n, err := s.ServiceOnce(ctx)
		if err != nil {
			return ExitError, err
		}
		if n > 0 {
			lastActivity = time.Now()
		}

		if s.exitRequested() {
			return ExitComplete, nil
		}

		state, err := s.ctx.State(ctx)
		if err != nil {
			return ExitError, err
		}
		switch state {
		case host.StateError:
			return ExitEmuError, nil
		case host.StateFrozen:
			return ExitComplete, nil
		}

		if opt.Timeout > 0 && s.CallCount() > 0 && !lastActivity.IsZero() && time.Since(lastActivity) >= opt.Timeout {
			return ExitTimeout, nil
		}

		select {
		case <-ctx.Done():
			return ExitComplete, nil
		case <-wake:
		case <-time.After(opt.PollInterval):
		}
	}
}
