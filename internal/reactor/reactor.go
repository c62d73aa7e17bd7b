// Package reactor implements the runtime's wait core: registration of
// (fd, direction, handler) triples, multiplexed readiness waiting, and
// dispatch of the four wait-core events (START, DONE, NEXT_KEY,
// NEXT_TRUSTITEM) to whatever is pumping the loop.
//
// The done-queue bookkeeping here is grounded on the teacher's
// internal/ghostpool/pool_manager.go, which tracks ready/in-use items
// behind a single mutex plus a buffered channel of completions; the
// event shape (a typed struct carrying a kind and a payload, pushed to
// subscribers) is grounded on internal/events/bus.go's EventBus, here
// narrowed from an open CloudEvents catalogue to the four wait-core
// event kinds.
package reactor

import (
	"sync"
	"time"

	"github.com/gpgclient/gpgclient/internal/gpgerr"
	"github.com/gpgclient/gpgclient/internal/ioxfer"
)

// Direction is the readiness direction a handler is registered for.
type Direction int

const (
	DirRead Direction = iota
	DirWrite
)

// Handler is invoked when its descriptor becomes ready. Returning an
// error aborts the operation currently being driven by the reactor that
// owns this registration.
type Handler func(fd int) error

// EventKind distinguishes the four events a driver emits through a
// Reactor while running an operation.
type EventKind int

const (
	EventStart EventKind = iota
	EventDone
	EventNextKey
	EventNextTrustItem
)

// Event is a single notification pushed through a Reactor's event
// dispatch. Data is a typed result reference (a *keymodel.Key for
// NEXT_KEY, a *keymodel.TrustItem for NEXT_TRUSTITEM, an error — possibly
// nil — for DONE, nil for START) whose lifetime spans the dispatch call
// only.
type Event struct {
	Kind EventKind
	Data interface{}
}

// Reactor is the interface every wait-core implementation satisfies:
// register a descriptor with a direction and handler, deregister by tag,
// and run one poll iteration.
type Reactor interface {
	Register(fd int, dir Direction, handler Handler) (tag int, err error)
	Deregister(tag int)
	Poll(timeout *time.Duration) error
	Emit(ev Event)
}

type registration struct {
	tag     int
	fd      int
	dir     Direction
	handler Handler
	active  bool
}

// PrivateReactor is a per-context fd-table: wait_one loops select over
// the table, dispatching ready handlers, until the table is empty or an
// operation signals done or is cancelled.
type PrivateReactor struct {
	mu       sync.Mutex
	regs     map[int]*registration
	nextTag  int
	events   []Event
	canceled bool
}

// NewPrivateReactor returns an empty PrivateReactor.
func NewPrivateReactor() *PrivateReactor {
	return &PrivateReactor{regs: make(map[int]*registration)}
}

func (r *PrivateReactor) Register(fd int, dir Direction, handler Handler) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextTag++
	tag := r.nextTag
	r.regs[tag] = &registration{tag: tag, fd: fd, dir: dir, handler: handler, active: true}
	return tag, nil
}

func (r *PrivateReactor) Deregister(tag int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.regs, tag)
}

// Cancel marks the reactor cancelled; the next Poll returns Canceled and
// leaves the fd table untouched so the caller can close descriptors
// itself (the wait core never closes fds on the caller's behalf).
func (r *PrivateReactor) Cancel() {
	r.mu.Lock()
	r.canceled = true
	r.mu.Unlock()
}

// Empty reports whether the fd table has no live registrations, the
// private loop's other stopping condition besides cancellation and
// operation completion.
func (r *PrivateReactor) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.regs) == 0
}

// Poll runs one select cycle and dispatches every ready handler. It
// returns a Canceled error if Cancel was called since the last Poll.
func (r *PrivateReactor) Poll(timeout *time.Duration) error {
	r.mu.Lock()
	if r.canceled {
		r.mu.Unlock()
		return gpgerr.Sentinel(gpgerr.KindCanceled)
	}
	var readFds, writeFds []int
	byFd := make(map[int][]*registration, len(r.regs))
	for _, reg := range r.regs {
		if !reg.active {
			continue
		}
		switch reg.dir {
		case DirRead:
			readFds = append(readFds, reg.fd)
		case DirWrite:
			writeFds = append(writeFds, reg.fd)
		}
		byFd[reg.fd] = append(byFd[reg.fd], reg)
	}
	r.mu.Unlock()

	if len(readFds) == 0 && len(writeFds) == 0 {
		return nil
	}

	readyR, readyW, err := ioxfer.Select(readFds, writeFds, timeout)
	if err != nil {
		return err
	}

	for _, fd := range readyR {
		for _, reg := range byFd[fd] {
			if reg.dir == DirRead {
				if err := reg.handler(fd); err != nil {
					return err
				}
			}
		}
	}
	for _, fd := range readyW {
		for _, reg := range byFd[fd] {
			if reg.dir == DirWrite {
				if err := reg.handler(fd); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Emit records an event. PrivateReactor callers typically only care
// about DONE (to stop wait_one) and drain NEXT_KEY/NEXT_TRUSTITEM via
// DrainEvents after each Poll.
func (r *PrivateReactor) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// DrainEvents returns and clears all events recorded since the last
// drain.
func (r *PrivateReactor) DrainEvents() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := r.events
	r.events = nil
	return ev
}

// WaitOne pumps Poll until the table is empty, the operation reports
// done (an EventDone is recorded), or the reactor is cancelled.
func (r *PrivateReactor) WaitOne(timeout *time.Duration) error {
	for {
		if r.Empty() {
			return nil
		}
		if err := r.Poll(timeout); err != nil {
			return err
		}
		for _, ev := range r.DrainEvents() {
			if ev.Kind == EventDone {
				if err, _ := ev.Data.(error); err != nil {
					return err
				}
				return nil
			}
		}
	}
}

// completion is one finished context's outcome, queued for wait_any.
type completion struct {
	ctx interface{}
	err error
}

// GlobalReactor aggregates registrations from every context sharing it
// and exposes WaitAny, returning the next context whose operation
// completed. The done-queue is lock-protected and grows by append,
// mirroring a realloc-growable buffer.
type GlobalReactor struct {
	mu       sync.Mutex
	regs     map[int]*registration
	nextTag  int
	done     []completion
	doneCond *sync.Cond
}

// NewGlobalReactor returns an empty, process-wide GlobalReactor.
func NewGlobalReactor() *GlobalReactor {
	g := &GlobalReactor{regs: make(map[int]*registration)}
	g.doneCond = sync.NewCond(&g.mu)
	return g
}

func (g *GlobalReactor) Register(fd int, dir Direction, handler Handler) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextTag++
	tag := g.nextTag
	g.regs[tag] = &registration{tag: tag, fd: fd, dir: dir, handler: handler, active: true}
	return tag, nil
}

func (g *GlobalReactor) Deregister(tag int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.regs, tag)
}

// Emit is a no-op for GlobalReactor: completions reach the done-queue
// only through CompleteContext, and no event kind is recorded here.
func (g *GlobalReactor) Emit(ev Event) {}

// CompleteContext pushes a finished context's outcome onto the done-
// queue and wakes any WaitAny waiter.
func (g *GlobalReactor) CompleteContext(ctxMarker interface{}, err error) {
	g.mu.Lock()
	g.done = append(g.done, completion{ctx: ctxMarker, err: err})
	g.doneCond.Signal()
	g.mu.Unlock()
}

// WaitAny returns the oldest completion on the done-queue. While the
// queue is empty it runs select cycles over every registered descriptor,
// dispatching ready handlers and checking the queue again after each
// cycle. Calling it again after draining returns the next queued
// completion. If the queue is empty and no descriptor is registered it
// returns (nil, nil) at once; it does not wait for a later
// CompleteContext call.
func (g *GlobalReactor) WaitAny(timeout *time.Duration) (ctxMarker interface{}, err error) {
	for {
		g.mu.Lock()
		if len(g.done) > 0 {
			c := g.done[0]
			g.done = g.done[1:]
			g.mu.Unlock()
			return c.ctx, c.err
		}
		var readFds, writeFds []int
		byFd := make(map[int][]*registration, len(g.regs))
		for _, reg := range g.regs {
			if !reg.active {
				continue
			}
			switch reg.dir {
			case DirRead:
				readFds = append(readFds, reg.fd)
			case DirWrite:
				writeFds = append(writeFds, reg.fd)
			}
			byFd[reg.fd] = append(byFd[reg.fd], reg)
		}
		g.mu.Unlock()

		if len(readFds) == 0 && len(writeFds) == 0 {
			return nil, nil
		}

		readyR, readyW, serr := ioxfer.Select(readFds, writeFds, timeout)
		if serr != nil {
			return nil, serr
		}
		for _, fd := range readyR {
			for _, reg := range byFd[fd] {
				if reg.dir == DirRead {
					if herr := reg.handler(fd); herr != nil {
						return nil, herr
					}
				}
			}
		}
		for _, fd := range readyW {
			for _, reg := range byFd[fd] {
				if reg.dir == DirWrite {
					if herr := reg.handler(fd); herr != nil {
						return nil, herr
					}
				}
			}
		}
	}
}

// ExternalCallbacks are the caller-supplied add/remove/event functions an
// ExternalReactor delegates to, letting the caller drive the wait core
// from their own event loop instead of select.
type ExternalCallbacks struct {
	Add    func(fd int, dir Direction, handler Handler, cookie interface{}) int
	Remove func(tag int)
	Event  func(ev Event)
}

// ExternalReactor satisfies Reactor by forwarding every call to
// caller-supplied callbacks. The tag returned by Add is stored verbatim
// by the driver and handed back to Remove, exactly as the plain
// PrivateReactor/GlobalReactor tags are.
type ExternalReactor struct {
	cb ExternalCallbacks
}

// NewExternalReactor wraps cb as a Reactor.
func NewExternalReactor(cb ExternalCallbacks) *ExternalReactor {
	return &ExternalReactor{cb: cb}
}

func (e *ExternalReactor) Register(fd int, dir Direction, handler Handler) (int, error) {
	return e.cb.Add(fd, dir, handler, nil), nil
}

func (e *ExternalReactor) Deregister(tag int) {
	e.cb.Remove(tag)
}

// Poll is a no-op for ExternalReactor: readiness is driven entirely by
// the caller's own event loop invoking the registered handlers directly.
func (e *ExternalReactor) Poll(timeout *time.Duration) error { return nil }

func (e *ExternalReactor) Emit(ev Event) {
	if e.cb.Event != nil {
		e.cb.Event(ev)
	}
}
