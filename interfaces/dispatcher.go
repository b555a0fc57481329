package interfaces

import "sync"

// Dispatcher runs session work either inline or, in async mode, on a single
// worker goroutine in submission order. The queue is unbounded so work
// submitted from a running job never deadlocks.
type Dispatcher struct {
	async bool

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	started bool
	closed  bool
	exited  bool
	idle    sync.WaitGroup
}

// NewDispatcher creates a dispatcher; async selects the worker goroutine.
func NewDispatcher(async bool) *Dispatcher {
	d := &Dispatcher{async: async}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Async reports whether work runs on the worker goroutine.
func (d *Dispatcher) Async() bool {
	return d.async
}

// Dispatch runs job. Jobs dispatched after Close are still queued behind
// work the worker is draining; once the worker has stopped they run inline.
func (d *Dispatcher) Dispatch(job func()) {
	if !d.async {
		job()
		return
	}

	d.mu.Lock()
	if d.closed && (!d.started || d.exited) {
		d.mu.Unlock()
		job()
		return
	}
	if !d.started {
		d.started = true
		d.idle.Add(1)
		go d.run()
	}
	d.queue = append(d.queue, job)
	d.cond.Signal()
	d.mu.Unlock()
}

func (d *Dispatcher) run() {
	defer d.idle.Done()
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.exited = true
			d.mu.Unlock()
			return
		}
		job := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		job()
	}
}

// Close drains queued work and stops the worker. It must not be called from
// a dispatched job.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	d.idle.Wait()
}

// Submit runs fn through d and returns a future for its result.
func Submit[T any](d *Dispatcher, fn func() (T, error)) *Future[T] {
	f, resolve := NewPromise[T]()
	d.Dispatch(func() {
		resolve(fn())
	})
	return f
}
