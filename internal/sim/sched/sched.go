// Package sched is a tick-driven callback scheduler standing in for the engine's
// run/runTimeout/runInterval primitives. All callbacks run on the goroutine that
// advances the loop.
package sched

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
)

// ErrHandleDone is returned when cancelling a callback that already ran or was cancelled.
var ErrHandleDone = errors.New("sched: handle already done")

type Scheduler interface {
	// Defer runs fn at the next tick boundary.
	Defer(fn func()) Handle
	After(ticks int, fn func()) Handle
	Every(ticks int, fn func()) Handle
}

type Handle struct {
	loop *Loop
	id   uint64
}

func (h Handle) Cancel() error {
	if h.loop == nil {
		return ErrHandleDone
	}
	if _, ok := h.loop.tasks[h.id]; !ok {
		return ErrHandleDone
	}
	delete(h.loop.tasks, h.id)
	return nil
}

// Live reports whether the callback is still scheduled.
func (h Handle) Live() bool {
	if h.loop == nil {
		return false
	}
	_, ok := h.loop.tasks[h.id]
	return ok
}

type task struct {
	id    uint64
	due   uint64
	every uint64
	fn    func()
}

type Loop struct {
	log *zap.Logger

	tick   uint64
	nextID uint64
	tasks  map[uint64]*task

	// inbox carries work posted from other goroutines.
	inbox chan func()
}

func NewLoop(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		log:   logger,
		tasks: map[uint64]*task{},
		inbox: make(chan func(), 1024),
	}
}

func (l *Loop) CurrentTick() uint64 { return l.tick }

// Pending is the number of scheduled callbacks.
func (l *Loop) Pending() int { return len(l.tasks) }

func (l *Loop) Defer(fn func()) Handle { return l.schedule(1, 0, fn) }

func (l *Loop) After(ticks int, fn func()) Handle {
	if ticks < 1 {
		ticks = 1
	}
	return l.schedule(uint64(ticks), 0, fn)
}

func (l *Loop) Every(ticks int, fn func()) Handle {
	if ticks < 1 {
		ticks = 1
	}
	return l.schedule(uint64(ticks), uint64(ticks), fn)
}

func (l *Loop) schedule(delay, every uint64, fn func()) Handle {
	l.nextID++
	t := &task{id: l.nextID, due: l.tick + delay, every: every, fn: fn}
	l.tasks[t.id] = t
	return Handle{loop: l, id: t.id}
}

// Post queues fn to run on the loop goroutine at the start of the next tick.
// It is safe to call from any goroutine; it reports false when the inbox is full.
func (l *Loop) Post(fn func()) bool {
	select {
	case l.inbox <- fn:
		return true
	default:
		return false
	}
}

// Advance runs n ticks.
func (l *Loop) Advance(n int) {
	for i := 0; i < n; i++ {
		l.step()
	}
}

func (l *Loop) step() {
	l.tick++
	for {
		select {
		case fn := <-l.inbox:
			l.call(0, fn)
			continue
		default:
		}
		break
	}

	due := make([]*task, 0, len(l.tasks))
	for _, t := range l.tasks {
		if t.due <= l.tick {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].id < due[j].id })

	for _, t := range due {
		// An earlier callback in this tick may have cancelled it.
		if _, ok := l.tasks[t.id]; !ok {
			continue
		}
		if t.every > 0 {
			t.due = l.tick + t.every
		} else {
			delete(l.tasks, t.id)
		}
		l.call(t.id, t.fn)
	}
}

func (l *Loop) call(id uint64, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("scheduled callback panicked", zap.Uint64("task", id), zap.Uint64("tick", l.tick), zap.Any("panic", r))
		}
	}()
	fn()
}

// Run advances one tick per period until ctx is done.
func (l *Loop) Run(ctx context.Context, period time.Duration) error {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			l.step()
		}
	}
}
