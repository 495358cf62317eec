package scheduler

import (
	"container/heap"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidTriggerTime = errors.New("scheduler: invalid trigger time")
	ErrEngineStopped      = errors.New("scheduler: engine stopped")
)

type queueItem struct {
	handle Handle
	tag    Tag
	at     time.Time
	seq    uint64
	index  int
}

type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].at.Equal(pq[j].at) {
		return pq[i].seq < pq[j].seq
	}
	return pq[i].at.Before(pq[j].at)
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[0 : n-1]
	return item
}

// Engine is the in-process NotificationPort: a min-heap of registrations
// served by one timer goroutine. Deliveries that do not fit in the output
// buffer are dropped and counted.
type Engine struct {
	mu      sync.Mutex
	queue   priorityQueue
	items   map[Handle]*queueItem
	seq     uint64
	out     chan Delivery
	wakeup  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
	dropped uint64
}

var _ NotificationPort = (*Engine)(nil)

func NewEngine(bufferSize int) *Engine {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Engine{
		queue:  make(priorityQueue, 0),
		items:  make(map[Handle]*queueItem),
		out:    make(chan Delivery, bufferSize),
		wakeup: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (e *Engine) C() <-chan Delivery {
	return e.out
}

func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	heap.Init(&e.queue)
	go e.loop()
}

func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopCh)
	e.mu.Unlock()
	<-e.doneCh
}

func (e *Engine) ScheduleAt(at time.Time, tag Tag) (Handle, error) {
	if at.IsZero() {
		return "", ErrInvalidTriggerTime
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return "", ErrEngineStopped
	}

	e.seq++
	item := &queueItem{handle: Handle(uuid.NewString()), tag: tag, at: at, seq: e.seq}
	heap.Push(&e.queue, item)
	e.items[item.handle] = item
	e.signalWakeup()
	return item.handle, nil
}

func (e *Engine) Cancel(h Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	item, ok := e.items[h]
	if !ok {
		return ErrNotRegistered
	}
	heap.Remove(&e.queue, item.index)
	delete(e.items, h)
	e.signalWakeup()
	return nil
}

// Pending reports the number of registrations not yet fired or cancelled.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *Engine) Dropped() uint64 {
	return atomic.LoadUint64(&e.dropped)
}

func (e *Engine) loop() {
	defer close(e.doneCh)
	defer close(e.out)

	var timer *time.Timer
	for {
		next, hasNext := e.peek()
		if !hasNext {
			select {
			case <-e.wakeup:
				continue
			case <-e.stopCh:
				return
			}
		}

		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer = resetTimer(timer, wait)

		select {
		case <-timer.C:
			now := time.Now()
			for _, d := range e.popDue(now) {
				select {
				case e.out <- d:
				default:
					atomic.AddUint64(&e.dropped, 1)
				}
			}
		case <-e.wakeup:
			continue
		case <-e.stopCh:
			if timer != nil {
				stopTimer(timer)
			}
			return
		}
	}
}

func (e *Engine) signalWakeup() {
	select {
	case e.wakeup <- struct{}{}:
	default:
	}
}

func (e *Engine) peek() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return time.Time{}, false
	}
	return e.queue[0].at, true
}

func (e *Engine) popDue(now time.Time) []Delivery {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Delivery, 0)
	for len(e.queue) > 0 {
		if e.queue[0].at.After(now) {
			break
		}
		item := heap.Pop(&e.queue).(*queueItem)
		delete(e.items, item.handle)
		out = append(out, Delivery{Handle: item.handle, Tag: item.tag, FiredAt: now})
	}
	return out
}

func resetTimer(timer *time.Timer, d time.Duration) *time.Timer {
	if timer == nil {
		return time.NewTimer(d)
	}
	stopTimer(timer)
	timer.Reset(d)
	return timer
}

func stopTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
