package ble

import "sync"

// dispatcher runs queued callbacks in order on one goroutine. Posting never
// blocks.
type dispatcher struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// post queues fn. It is dropped after close.
func (d *dispatcher) post(fn func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		for _, fn := range batch {
			select {
			case <-d.done:
				return
			default:
			}
			fn()
		}

		select {
		case <-d.wake:
		case <-d.done:
			return
		}
	}
}

// close stops the dispatcher and waits for the running callback to return.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.queue = nil
	d.mu.Unlock()
	close(d.done)
	d.wg.Wait()
}
