package client

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// settlement is the terminal outcome of a pending call.
type settlement struct {
	result json.RawMessage
	err    error
}

// pendingCall is one outstanding request. The channel is buffered so the
// settling goroutine never blocks on the awaiting caller.
type pendingCall struct {
	id    int64
	ch    chan settlement
	timer clockwork.Timer
}

// registry correlates outstanding call ids with their eventual settlement.
//
// Settlement may arrive from the direct HTTP reply, from a push-channel
// response frame, from the per-call timeout, or from teardown. The entry is
// removed under the lock before its channel is written, so whichever path
// gets there first wins and every other path sees a missing id and becomes a
// no-op. Ids are allocated from a monotonic counter and never reused within
// the lifetime of a client instance.
type registry struct {
	clock  clockwork.Clock
	nextID atomic.Int64

	mu    sync.Mutex
	calls map[int64]*pendingCall
}

func newRegistry(clock clockwork.Clock) *registry {
	return &registry{
		clock: clock,
		calls: make(map[int64]*pendingCall),
	}
}

// register allocates the next call id and stores a pending call whose timeout
// rejects it with KindCallTimeout. Ids count up from zero; the handshake is
// the first registered call, so it always takes id 0.
func (r *registry) register(timeout time.Duration) *pendingCall {
	pc := &pendingCall{
		id: r.nextID.Add(1) - 1,
		ch: make(chan settlement, 1),
	}

	r.mu.Lock()
	r.calls[pc.id] = pc
	pc.timer = r.clock.AfterFunc(timeout, func() {
		r.settle(pc.id, nil, ErrCallTimeout)
	})
	r.mu.Unlock()

	return pc
}

// settle resolves or rejects the call with the given id exactly once. A
// missing id (already settled, timed out, or never registered) is a silent
// no-op; this is what makes dual-path settlement safe.
func (r *registry) settle(id int64, result json.RawMessage, err error) bool {
	r.mu.Lock()
	pc, ok := r.calls[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.calls, id)
	if pc.timer != nil {
		pc.timer.Stop()
	}
	r.mu.Unlock()

	pc.ch <- settlement{result: result, err: err}
	return true
}

// drain fails every outstanding call with the given reason. Used on teardown
// and on terminal reconnection failure; afterwards no call is left unsettled.
func (r *registry) drain(reason error) {
	r.mu.Lock()
	drained := make([]*pendingCall, 0, len(r.calls))
	for id, pc := range r.calls {
		delete(r.calls, id)
		if pc.timer != nil {
			pc.timer.Stop()
		}
		drained = append(drained, pc)
	}
	r.mu.Unlock()

	for _, pc := range drained {
		pc.ch <- settlement{err: reason}
	}
}

// outstanding returns the number of unsettled calls.
func (r *registry) outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
