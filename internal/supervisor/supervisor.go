// Package supervisor owns the lifecycle of one keeper instance: it claims the
// command port, runs the command listener beside the workload, and answers
// the controller side of status and stop requests.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"vawter.tech/stopper"

	"github.com/rbright/keeper/internal/fsm"
	"github.com/rbright/keeper/internal/ipc"
	"github.com/rbright/keeper/internal/metrics"
)

var (
	ErrStartup    = errors.New("workload startup failed")
	ErrShutdown   = errors.New("workload shutdown failed")
	ErrNoWorkload = errors.New("no workload configured")
	ErrNotStarted = errors.New("instance not started")
)

// listenerGrace bounds how long the listener goroutine may take to return
// after its socket is closed.
const listenerGrace = 100 * time.Millisecond

// Workload is the supervised long-running service.
type Workload interface {
	// Start begins serving and returns once the workload is up.
	Start(context.Context) error
	// Stop asks the workload to stop and blocks until it has.
	Stop(context.Context) error
	// Join blocks until the workload is fully stopped or ctx ends.
	Join(context.Context) error
}

// Options configures a Supervisor.
type Options struct {
	// Addr is the loopback command address, see ipc.Address.
	Addr string
	// Workload is used as-is when set; otherwise NewWorkload creates it on Start.
	Workload    Workload
	NewWorkload func() (Workload, error)

	Logger       *slog.Logger
	ProbeTimeout time.Duration
	IdleTimeout  time.Duration

	// WaitForStop makes Run block until the workload has fully stopped.
	WaitForStop bool

	// Exit is handed to the command listener; nil means os.Exit.
	Exit func(code int)
}

// Supervisor is the owner side of one instance.
type Supervisor struct {
	id           string
	addr         string
	logger       *slog.Logger
	newWorkload  func() (Workload, error)
	probeTimeout time.Duration
	idleTimeout  time.Duration
	waitForStop  bool
	exit         func(int)

	mu       sync.Mutex
	state    fsm.State
	workload Workload
	listener net.Listener
	sctx     *stopper.Context

	stopOnce sync.Once
	stopErr  error

	joinOnce sync.Once
	joined   chan struct{}
	joinErr  error
}

// New constructs a supervisor. Nothing is bound until Start.
func New(opts Options) *Supervisor {
	id := uuid.NewString()

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	addr := opts.Addr
	if addr == "" {
		addr = ipc.Address(ipc.DefaultPort)
	}

	probeTimeout := opts.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 200 * time.Millisecond
	}

	return &Supervisor{
		id:           id,
		addr:         addr,
		logger:       logger.With("instance", id),
		newWorkload:  opts.NewWorkload,
		probeTimeout: probeTimeout,
		idleTimeout:  opts.IdleTimeout,
		waitForStop:  opts.WaitForStop,
		exit:         opts.Exit,
		state:        fsm.StateNotRunning,
		workload:     opts.Workload,
		joined:       make(chan struct{}),
	}
}

// ID returns the instance identifier attached to every log line.
func (s *Supervisor) ID() string {
	return s.id
}

// State returns the current lifecycle state snapshot.
func (s *Supervisor) State() fsm.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the command address, resolved to the bound port once started.
func (s *Supervisor) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Run starts the instance and, when configured to wait, blocks until the
// workload has fully stopped. Otherwise it returns once started and joins the
// workload in the background; Done reports when that join completes.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	if !s.waitForStop {
		go func() { _ = s.Join(ctx) }()
		return nil
	}
	return s.Join(ctx)
}

// Done is closed once the workload has stopped and the command port is released.
func (s *Supervisor) Done() <-chan struct{} {
	return s.joined
}

// Start claims the command port, launches the command listener, and starts
// the workload. A held command port fails with ipc.ErrBindConflict before the
// workload is touched.
func (s *Supervisor) Start(ctx context.Context) error {
	workload, err := s.ensureWorkload()
	if err != nil {
		return err
	}

	listener, err := ipc.Listen(ctx, s.addr, s.probeTimeout)
	if err != nil {
		return err
	}

	if err := s.transition(fsm.EventStart); err != nil {
		_ = listener.Close()
		return err
	}

	server := &ipc.Server{
		Handler:     s,
		Logger:      s.logger.With("component", "command_listener"),
		IdleTimeout: s.idleTimeout,
		Exit:        s.exit,
	}

	sctx := stopper.WithContext(context.WithoutCancel(ctx))
	sctx.Go(func(sctx *stopper.Context) error {
		if err := server.Serve(sctx, listener); err != nil {
			s.logger.Error("command listener failed", "error", err.Error())
		}
		return nil
	})

	s.mu.Lock()
	s.listener = listener
	s.sctx = sctx
	s.mu.Unlock()

	s.logger.Info("command listener started", "addr", listener.Addr().String())

	if err := workload.Start(ctx); err != nil {
		_ = s.transition(fsm.EventFail)
		s.releaseListener()
		s.logger.Error("workload start failed", "error", err.Error())
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	s.logger.Info("workload started")
	return nil
}

// Join blocks until the workload has fully stopped, then releases the
// command port. Cancelling ctx is treated as a local stop request. Only the
// first call joins; later and concurrent callers wait for and share its result.
func (s *Supervisor) Join(ctx context.Context) error {
	s.mu.Lock()
	workload := s.workload
	started := s.sctx != nil
	s.mu.Unlock()
	if workload == nil || !started {
		return ErrNotStarted
	}

	s.joinOnce.Do(func() {
		s.joinErr = s.join(ctx, workload)
		close(s.joined)
	})
	return s.joinErr
}

func (s *Supervisor) join(ctx context.Context, workload Workload) error {
	err := workload.Join(ctx)
	if err != nil && ctx.Err() != nil {
		s.logger.Info("interrupted; stopping workload", "cause", ctx.Err().Error())
		stopErr := s.Shutdown(context.Background())
		err = errors.Join(stopErr, workload.Join(context.Background()))
	}

	s.mu.Lock()
	if s.state == fsm.StateServing {
		s.setStateLocked(fsm.EventExited)
	}
	s.mu.Unlock()

	s.releaseListener()
	s.logger.Info("workload stopped")
	return err
}

// Shutdown stops the workload once; concurrent and later callers wait for
// and share the first result. It is the command listener's stop handler.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopErr = s.stopWorkload(ctx)
	})
	return s.stopErr
}

func (s *Supervisor) stopWorkload(ctx context.Context) error {
	s.mu.Lock()
	if s.state != fsm.StateServing {
		s.mu.Unlock()
		return nil
	}
	s.setStateLocked(fsm.EventStop)
	workload := s.workload
	s.mu.Unlock()

	s.logger.Info("stopping workload")
	if err := workload.Stop(ctx); err != nil {
		_ = s.transition(fsm.EventFail)
		return fmt.Errorf("%w: %w", ErrShutdown, err)
	}

	return s.transition(fsm.EventStopped)
}

func (s *Supervisor) ensureWorkload() (Workload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workload != nil {
		return s.workload, nil
	}
	if s.newWorkload == nil {
		return nil, ErrNoWorkload
	}

	workload, err := s.newWorkload()
	if err != nil {
		return nil, fmt.Errorf("create workload: %w", err)
	}
	s.workload = workload
	return workload, nil
}

// releaseListener closes the command socket and waits for the listener
// goroutine to return.
func (s *Supervisor) releaseListener() {
	s.mu.Lock()
	listener, sctx := s.listener, s.sctx
	s.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	if sctx != nil {
		sctx.Stop(listenerGrace)
		if err := sctx.Wait(); err != nil {
			s.logger.Warn("command listener did not stop cleanly", "error", err.Error())
		}
	}
}

func (s *Supervisor) transition(event fsm.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setStateLocked(event)
}

func (s *Supervisor) setStateLocked(event fsm.Event) error {
	next, err := fsm.Transition(s.state, event)
	if err != nil {
		return err
	}
	s.state = next
	metrics.SetState(string(next), stateLabels())
	return nil
}

func stateLabels() []string {
	states := fsm.States()
	labels := make([]string, 0, len(states))
	for _, state := range states {
		labels = append(labels, string(state))
	}
	return labels
}
