package mail

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by SendPasswordReset when the queue is full and
// DropIfFull is set.
var ErrQueueFull = errors.New("mail: queue full")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("mail: dispatcher closed")

// DispatcherConfig controls queueing and link rendering.
type DispatcherConfig struct {
	// AppOrigin is the frontend origin reset links point at.
	AppOrigin  string
	BufferSize int
	Workers    int
	DropIfFull bool
	// SendTimeout bounds a single delivery. Defaults to 30s.
	SendTimeout time.Duration
	Now         func() time.Time
}

// Dispatcher queues messages and delivers them from background workers.
type Dispatcher struct {
	cfg    DispatcherConfig
	sender Sender
	logger *zap.Logger

	ch        chan Message
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once

	dropped   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

func NewDispatcher(cfg DispatcherConfig, sender Sender, logger *zap.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = LogSender{Logger: logger}
	}

	d := &Dispatcher{
		cfg:    cfg,
		sender: sender,
		logger: logger.Named("mail"),
		ch:     make(chan Message, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	d.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go d.run()
	}
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()
	if err := d.sender.Send(ctx, msg); err != nil {
		d.failed.Add(1)
		d.logger.Error("email delivery failed", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	d.delivered.Add(1)
}

// Enqueue queues msg. With DropIfFull it never blocks; otherwise it waits
// for space or ctx.
func (d *Dispatcher) Enqueue(ctx context.Context, msg Message) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if d.cfg.DropIfFull {
		select {
		case d.ch <- msg:
			return nil
		case <-d.done:
			return ErrClosed
		default:
			d.dropped.Add(1)
			return ErrQueueFull
		}
	}
	select {
	case d.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrClosed
	}
}

// SendPasswordReset renders the reset email for token and queues it.
func (d *Dispatcher) SendPasswordReset(ctx context.Context, to, nickname, token string, expiresAt time.Time) error {
	msg, err := PasswordResetMessage(to, nickname, ResetURL(d.cfg.AppOrigin, token), expiresAt.Sub(d.cfg.Now()))
	if err != nil {
		return err
	}
	return d.Enqueue(ctx, msg)
}

// Close stops accepting messages and waits for queued ones to be sent.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64   { return d.dropped.Load() }
func (d *Dispatcher) Delivered() uint64 { return d.delivered.Load() }
func (d *Dispatcher) Failed() uint64    { return d.failed.Load() }
