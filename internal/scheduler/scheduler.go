// Package scheduler implements the totally-ordered, single-threaded event
// queue that interleaves CPU execution with PPU and DMA timing. Where the
// teacher's PPU ticked a dot counter one cycle at a time inside a Tick loop,
// the GBA core needs several independent timelines (hblank, vblank, DMA
// activation, interrupt commits) converging on one emulated cycle counter;
// a priority queue keyed on fire time is the natural generalisation.
package scheduler

import "container/heap"

// Trigger names the two deferred queues: events schedule()d against a
// trigger instead of a delay sit here until the named condition fires.
type Trigger int

const (
	Immediate Trigger = iota
	HBlank
	VBlank
)

// Callback is invoked when an event's fire time has been reached.
type Callback func()

// Event is a single scheduled callback. Event values returned by Schedule
// may be held by callers to Cancel them later.
type Event struct {
	callback Callback
	delay    uint64
	fireTime uint64
	trigger  Trigger
	cancelled bool

	seq   uint64
	index int // heap index, maintained by container/heap
}

// Cancel marks the event so it is skipped when it is popped from the heap
// (or removed from a pending trigger queue without ever reaching it).
func (e *Event) Cancel() {
	if e != nil {
		e.cancelled = true
	}
}

// eventHeap is a min-heap on (fireTime, seq) so ties break FIFO by
// insertion order, matching the ordering guarantee in the spec.
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].fireTime != h[j].fireTime {
		return h[i].fireTime < h[j].fireTime
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *eventHeap) Push(x any) {
	e := x.(*Event)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler owns the emulated cycle counter and the pending/active event
// queues. It has no concept of threads: Schedule, Trigger and
// ProcessEvents are all called synchronously from the CPU step loop.
type Scheduler struct {
	now   uint64
	heap  eventHeap
	seq   uint64
	queue [2][]*Event // indexed by Trigger-1 (HBlank, VBlank)
}

func New() *Scheduler {
	s := &Scheduler{}
	heap.Init(&s.heap)
	return s
}

// Now returns the current emulated cycle count.
func (s *Scheduler) Now() uint64 { return s.now }

// Schedule arranges for cb to run. With trigger == Immediate the event is
// inserted into the heap at now+delay. Otherwise the event is parked in the
// named queue, remembering delay, until Trigger(name) fires it.
func (s *Scheduler) Schedule(delay uint64, trigger Trigger, cb Callback) *Event {
	e := &Event{callback: cb, delay: delay, trigger: trigger, seq: s.seq}
	s.seq++
	if trigger == Immediate {
		e.fireTime = s.now + delay
		heap.Push(&s.heap, e)
		return e
	}
	s.queue[trigger-1] = append(s.queue[trigger-1], e)
	return e
}

// Trigger drains the named queue, stamping each still-pending entry with
// now+its remembered delay and inserting it into the heap.
func (s *Scheduler) Trigger(trigger Trigger) {
	if trigger == Immediate {
		return
	}
	q := s.queue[trigger-1]
	s.queue[trigger-1] = nil
	for _, e := range q {
		if e.cancelled {
			continue
		}
		e.fireTime = s.now + e.delay
		e.seq = s.seq
		s.seq++
		heap.Push(&s.heap, e)
	}
}

// Idle advances now by n cycles without firing anything.
func (s *Scheduler) Idle(n uint64) { s.now += n }

// IdleUntilNextEvent fast-forwards now to the next event's fire time, or by
// a single cycle if nothing is scheduled. Used by the CPU's HALT handling.
func (s *Scheduler) IdleUntilNextEvent() {
	if len(s.heap) == 0 {
		s.now++
		return
	}
	next := s.heap[0].fireTime
	if next > s.now {
		s.now = next
	} else {
		s.now++
	}
}

// ProcessEvents pops and runs every event whose fire time has been reached.
// Callbacks may schedule further events, including at the current now; the
// loop re-checks the heap top after every callback, so such an event runs
// within the same call.
func (s *Scheduler) ProcessEvents() {
	for len(s.heap) > 0 && s.heap[0].fireTime <= s.now {
		e := heap.Pop(&s.heap).(*Event)
		if e.cancelled {
			continue
		}
		e.callback()
	}
}
