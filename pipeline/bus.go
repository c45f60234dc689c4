package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// queueSize is the amount of messages a stage buffers before senders block.
const queueSize = 4096

// Reply is what a stage answers: a failure cause, or success along with the
// messages it sent itself and did not wait for.
type Reply struct {
	Err     error
	Pending []*Future
}

// Success replies with the futures the caller should also wait for.
func Success(pending ...*Future) Reply {
	return Reply{Pending: pending}
}

// Failure replies with the cause.
func Failure(err error) Reply {
	return Reply{Err: err}
}

// Handler consumes one message. It must reply, never panic.
type Handler func(ctx context.Context, m Message) Reply

// Future is the eventual reply to a sent message. It always resolves, at
// the latest when the delivery timeout expires. The timeout runs from the
// moment a handler picks the message up; waiting for room in a full queue
// is bounded by the same timeout.
type Future struct {
	Topic   string
	Message Message

	once  sync.Once
	done  chan struct{}
	reply Reply

	mu    sync.Mutex
	timer *time.Timer
}

func newFuture(topic string, m Message) *Future {
	return &Future{
		Topic:   topic,
		Message: m,
		done:    make(chan struct{}),
	}
}

// Resolved creates a future that already holds its reply.
func Resolved(topic string, m Message, reply Reply) *Future {
	f := newFuture(topic, m)
	f.resolve(reply)
	return f
}

func (f *Future) resolve(reply Reply) bool {
	resolved := false
	f.once.Do(func() {
		f.mu.Lock()
		if f.timer != nil {
			f.timer.Stop()
		}
		f.mu.Unlock()
		f.reply = reply
		close(f.done)
		resolved = true
	})
	return resolved
}

func (f *Future) expireAfter(timeout time.Duration, expire func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timer = time.AfterFunc(timeout, expire)
}

// Done is closed once the reply is known.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the reply is known.
func (f *Future) Wait() Reply {
	<-f.done
	return f.reply
}

type envelope struct {
	ctx     context.Context
	message Message
	future  *Future
}

type stage struct {
	topic   string
	workers int
	handler Handler
	queue   chan envelope
}

// Bus delivers messages to the stages registered on it. Each stage runs
// its handler on a bounded pool of goroutines.
type Bus struct {
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	stages map[string]*stage
	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewBus creates a bus whose sends fail when not replied to within timeout.
func NewBus(timeout time.Duration, logger *zap.Logger) *Bus {
	return &Bus{
		timeout: timeout,
		logger:  logger,
		stages:  make(map[string]*stage),
		done:    make(chan struct{}),
	}
}

// Register starts consuming the topic with up to workers concurrent
// handlers.
func (b *Bus) Register(topic string, workers int, handler Handler) {
	if workers < 1 {
		workers = 1
	}

	s := &stage{
		topic:   topic,
		workers: workers,
		handler: handler,
		queue:   make(chan envelope, queueSize),
	}

	b.mu.Lock()
	if _, ok := b.stages[topic]; ok {
		b.mu.Unlock()
		panic(fmt.Sprintf("pipeline: topic %s registered twice", topic))
	}
	b.stages[topic] = s
	b.mu.Unlock()

	b.wg.Add(1)
	go b.consume(s)
}

func (b *Bus) consume(s *stage) {
	defer b.wg.Done()

	p := pool.New().WithMaxGoroutines(s.workers)
	for {
		select {
		case env := <-s.queue:
			p.Go(func() {
				b.handle(s, env)
			})
		case <-b.done:
			p.Wait()
			for {
				select {
				case env := <-s.queue:
					env.future.resolve(Failure(stageError(KindTimeout, s.topic, env.message, ErrBusClosed)))
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) handle(s *stage, env envelope) {
	select {
	case <-env.future.Done():
		b.logger.Debug("dropping resolved message",
			zap.String("stage", s.topic),
			zap.String("id", env.message.ID),
			zap.String("path", env.message.IIIFPath))
		return
	default:
	}

	b.expire(env.future, s.topic, env.message)

	defer func() {
		if p := recover(); p != nil {
			err := stageError(KindResource, s.topic, env.message, fmt.Errorf("panic: %v", p))
			b.logger.Error("stage crashed", zap.Error(err))
			env.future.resolve(Failure(err))
		}
	}()

	reply := s.handler(env.ctx, env.message)
	if reply.Err != nil {
		b.logger.Warn("stage failed",
			zap.String("stage", s.topic),
			zap.String("id", env.message.ID),
			zap.String("path", env.message.IIIFPath),
			zap.Error(reply.Err))
	}

	if !env.future.resolve(reply) {
		b.logger.Debug("late reply ignored",
			zap.String("stage", s.topic),
			zap.String("id", env.message.ID),
			zap.String("path", env.message.IIIFPath))
	}
}

// Send delivers the message to the stage and returns its future reply.
func (b *Bus) Send(ctx context.Context, topic string, m Message) *Future {
	f := newFuture(topic, m)

	if b.closed.Load() {
		f.resolve(Failure(stageError(KindTimeout, topic, m, ErrBusClosed)))
		return f
	}

	b.mu.RLock()
	s, ok := b.stages[topic]
	b.mu.RUnlock()
	if !ok {
		f.resolve(Failure(stageError(KindTimeout, topic, m, ErrNoHandler)))
		return f
	}

	full := time.NewTimer(b.timeout)
	defer full.Stop()

	select {
	case s.queue <- envelope{ctx, m, f}:
	case <-full.C:
		b.timedOut(f, topic, m)
	case <-b.done:
		f.resolve(Failure(stageError(KindTimeout, topic, m, ErrBusClosed)))
	case <-ctx.Done():
		f.resolve(Failure(stageError(KindTimeout, topic, m, ctx.Err())))
	}

	return f
}

// expire arms the delivery timeout of a message a handler picked up.
func (b *Bus) expire(f *Future, topic string, m Message) {
	f.expireAfter(b.timeout, func() {
		b.timedOut(f, topic, m)
	})
}

func (b *Bus) timedOut(f *Future, topic string, m Message) {
	err := stageError(KindTimeout, topic, m, ErrSendTimeout)
	if f.resolve(Failure(err)) {
		b.logger.Warn("send timed out",
			zap.String("stage", topic),
			zap.String("id", m.ID),
			zap.String("path", m.IIIFPath),
			zap.Duration("timeout", b.timeout))
	}
}

// Publish sends without caring about the reply, a failure being logged.
func (b *Bus) Publish(ctx context.Context, topic string, m Message) {
	f := b.Send(ctx, topic, m)
	go func() {
		if reply := f.Wait(); reply.Err != nil {
			b.logger.Warn("published message failed",
				zap.String("stage", topic),
				zap.String("id", m.ID),
				zap.Error(reply.Err))
		}
	}()
}

// Close stops the stages once the running handlers are done. Queued
// messages fail.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	close(b.done)
	b.wg.Wait()
}
