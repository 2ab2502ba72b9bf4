package xcomm

import (
	"context"
	"errors"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const defaultWaitTimeout = 100 * time.Millisecond

type EventLoopConfig struct {
	Name          string `yaml:"name" toml:"name"`
	LockOsThread  bool   `yaml:"lock_os_thread" toml:"lock_os_thread"`
	WaitTimeoutMs int    `yaml:"wait_timeout_ms" toml:"wait_timeout_ms"`
	// MaxOpenFiles raises the process descriptor limit when non-zero.
	MaxOpenFiles uint64          `yaml:"max_open_files" toml:"max_open_files"`
	Logger       *zerolog.Logger `yaml:"-" toml:"-"`
}

// EventHandler receives the events of one attached connection. Returning an
// error from OnReadable or OnWritable closes the connection; io.EOF closes
// it without reporting an error to OnClosed.
type EventHandler interface {
	OnReadable(conn Conn) error
	OnWritable(conn Conn) error
	OnClosed(conn Conn, err error)
}

// binding ties an attached connection or listener to its callbacks. It is
// the user data of every SQE the loop submits.
type binding struct {
	node     ListNode[binding]
	conn     Conn
	handler  EventHandler
	listener *Listener
	accept   func(*Socket)
	attached bool
}

// EventLoop drives one Poller from a single goroutine. Attach, Detach and
// AttachListener must run on that goroutine (or before Run); other
// goroutines hand work over with Post.
type EventLoop struct {
	Name         string
	lockOsThread bool
	waitTimeout  time.Duration
	isRunning    *atomic.Bool
	poller       Poller
	bindings     List[binding]
	lock         sync.Mutex
	tasks        *queue.Queue
	stats        loopStats
	logger       *zerolog.Logger
}

func NewEventLoop(config EventLoopConfig) (*EventLoop, error) {
	logger := loggerOrGlobal(config.Logger)
	if logger.Debug().Enabled() {
		logger.Debug().Msgf("init event loop:%+v", config)
	} else {
		logger.Info().Msgf("init event loop:%s", config.Name)
	}
	if config.WaitTimeoutMs < 0 {
		return nil, invalidConfig("event loop %s: negative wait timeout", config.Name)
	}
	if config.MaxOpenFiles > 0 {
		raiseOpenFiles(config.MaxOpenFiles, logger)
	}
	poller, err := OpenPoller(logger)
	if err != nil {
		logger.Error().Msgf("can't open poller: %+v", err)
		return nil, err
	}
	waitTimeout := defaultWaitTimeout
	if config.WaitTimeoutMs > 0 {
		waitTimeout = time.Duration(config.WaitTimeoutMs) * time.Millisecond
	}
	return &EventLoop{
		Name:         config.Name,
		lockOsThread: config.LockOsThread,
		waitTimeout:  waitTimeout,
		isRunning:    atomic.NewBool(false),
		poller:       poller,
		tasks:        queue.New(),
		stats:        newLoopStats(),
		logger:       logger,
	}, nil
}

func (el *EventLoop) newBinding() *binding {
	b := &binding{attached: true}
	b.node.Init(b)
	return b
}

// Attach registers conn and routes its events to handler.
func (el *EventLoop) Attach(conn Conn, handler EventHandler) error {
	b := el.newBinding()
	b.conn = conn
	b.handler = handler
	if err := conn.Attach(el.poller, b); err != nil {
		return err
	}
	el.bindings.InsertTail(&b.node)
	el.stats.attached.Inc()
	if el.logger.Debug().Enabled() {
		el.logger.Debug().Msgf("[%d] attached %s to %s", conn.Fd(), conn.Kind(), el.Name)
	}
	return nil
}

// AttachListener calls accept with every connection l accepts.
func (el *EventLoop) AttachListener(l *Listener, accept func(*Socket)) error {
	b := el.newBinding()
	b.listener = l
	b.accept = accept
	if err := el.poller.Submit(SQE{Op: OpRead, Fd: l.Fd(), UserData: b}); err != nil {
		return err
	}
	el.bindings.InsertTail(&b.node)
	el.stats.attached.Inc()
	return nil
}

// Detach deregisters conn without closing it.
func (el *EventLoop) Detach(conn Conn) error {
	var found *binding
	el.bindings.Each(func(b *binding) bool {
		if b.conn == conn {
			found = b
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}
	el.unbind(found)
	return conn.Detach()
}

// CloseConn closes an attached conn and reports cause to its handler.
func (el *EventLoop) CloseConn(conn Conn, cause error) {
	el.bindings.Each(func(b *binding) bool {
		if b.conn == conn {
			el.closeBinding(b, cause)
			return false
		}
		return true
	})
}

func (el *EventLoop) unbind(b *binding) {
	if !b.attached {
		return
	}
	b.attached = false
	b.node.Remove()
	el.stats.attached.Dec()
}

// Post queues fn to run on the loop goroutine before the next wait.
func (el *EventLoop) Post(fn func()) error {
	el.lock.Lock()
	el.tasks.Add(fn)
	el.lock.Unlock()
	return el.poller.Wakeup()
}

func (el *EventLoop) runTasks() {
	el.lock.Lock()
	count := el.tasks.Length()
	if count == 0 {
		el.lock.Unlock()
		return
	}
	tasks := make([]func(), 0, count)
	for el.tasks.Length() > 0 {
		tasks = append(tasks, el.tasks.Remove().(func()))
	}
	el.lock.Unlock()
	for _, task := range tasks {
		task()
	}
}

// RunOnce runs posted tasks, waits up to timeout and dispatches the batch.
// It returns the number of completions handled.
func (el *EventLoop) RunOnce(timeout time.Duration) (int, error) {
	el.runTasks()
	cqes, err := el.poller.Wait(timeout)
	el.stats.waits.Inc()
	if err != nil {
		return 0, err
	}
	el.stats.completions.Add(uint64(len(cqes)))
	for _, cqe := range cqes {
		b, ok := cqe.UserData.(*binding)
		if !ok || !b.attached {
			continue
		}
		el.dispatch(b, cqe)
	}
	return len(cqes), nil
}

func (el *EventLoop) dispatch(b *binding, cqe CQE) {
	if b.listener != nil {
		el.acceptAll(b)
		return
	}
	if cqe.Err != nil {
		el.closeBinding(b, cqe.Err)
		return
	}
	if cqe.Op&OpWrite != 0 {
		if _, err := b.conn.Flush(); err != nil {
			el.closeBinding(b, err)
			return
		}
		if err := b.handler.OnWritable(b.conn); err != nil {
			el.closeBinding(b, err)
			return
		}
	}
	if cqe.Op&OpRead != 0 && b.attached {
		if err := b.handler.OnReadable(b.conn); err != nil {
			el.closeBinding(b, err)
			return
		}
	}
	if b.attached {
		if err := b.conn.Rearm(); err != nil {
			el.closeBinding(b, err)
		}
	}
}

func (el *EventLoop) acceptAll(b *binding) {
	for {
		socket, err := b.listener.Accept()
		if err != nil {
			el.logger.Error().Msgf("[%d] got error while accepting connection: %+v", b.listener.Fd(), err)
			break
		}
		if socket == nil {
			break
		}
		b.accept(socket)
	}
	if err := el.poller.Submit(SQE{Op: OpRead, Fd: b.listener.Fd(), UserData: b}); err != nil {
		el.logger.Error().Msgf("[%d] can't re-arm listener: %+v", b.listener.Fd(), err)
		el.unbind(b)
	}
}

func (el *EventLoop) closeBinding(b *binding, cause error) {
	if !b.attached {
		return
	}
	el.unbind(b)
	if errors.Is(cause, io.EOF) {
		cause = nil
	}
	if cause != nil {
		el.logger.Debug().Msgf("[%d] closing %s: %+v", b.conn.Fd(), b.conn.Kind(), cause)
	}
	if err := b.conn.Close(); err != nil {
		el.logger.Error().Msgf("[%d] got error while closing %s: %+v", b.conn.Fd(), b.conn.Kind(), err)
	}
	b.handler.OnClosed(b.conn, cause)
}

// Run dispatches events until ctx is done or Stop is called.
func (el *EventLoop) Run(ctx context.Context) error {
	if el.lockOsThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	el.isRunning.Store(true)
	stop := context.AfterFunc(ctx, el.Stop)
	defer stop()
	for el.isRunning.Load() {
		_, err := el.RunOnce(el.waitTimeout)
		if err != nil {
			if errors.Is(err, ErrReactorClosed) {
				el.isRunning.Store(false)
				return err
			}
			el.logger.Error().Msgf("got error while waiting for events: %+v", err)
		}
	}
	return ctx.Err()
}

func (el *EventLoop) Stop() {
	el.isRunning.Store(false)
	if err := el.poller.Wakeup(); err != nil && !errors.Is(err, ErrReactorClosed) {
		el.logger.Error().Msgf("can't wake up event loop %s: %+v", el.Name, err)
	}
}

func (el *EventLoop) Stats() LoopStats {
	return LoopStats{
		Name:        el.Name,
		Waits:       el.stats.waits.Load(),
		Completions: el.stats.completions.Load(),
		Attached:    int(el.stats.attached.Load()),
	}
}

// Close closes every attached connection and listener, then the poller.
// Call it after Run has returned.
func (el *EventLoop) Close() error {
	el.isRunning.Store(false)
	// OnClosed may close other bindings, so always restart from the head.
	for n := el.bindings.Head(); n != nil; n = el.bindings.Head() {
		b := n.Owner()
		if b.listener != nil {
			el.unbind(b)
			if err := b.listener.Close(); err != nil {
				el.logger.Error().Msgf("[%d] got error while closing listener: %+v", b.listener.Fd(), err)
			}
			continue
		}
		el.closeBinding(b, ErrReactorClosed)
	}
	return el.poller.Close()
}
