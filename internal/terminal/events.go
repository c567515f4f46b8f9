package terminal

import "sync"

// Callbacks receive session events. Every field is optional. All callbacks
// of one session run on a single goroutine, in the order the events
// happened, so implementations need no locking of their own against each
// other.
type Callbacks struct {
	// Output receives raw bytes exactly as the remote shell produced them.
	Output func(data []byte)
	// Notice receives non-fatal events such as lost output or failed input.
	Notice func(n Notice)
	// State fires on every lifecycle or connection change.
	State func(state State, conn ConnectionState)
	// Disconnect fires when the transport fails. Polling is suspended until
	// Reconnect or Abandon is called.
	Disconnect func(err error)
	// Close fires exactly once when the session reaches StateClosed.
	Close func(reason CloseReason)
}

// dispatcher delivers queued events to Callbacks from its own goroutine.
type dispatcher struct {
	cb   Callbacks
	wake chan struct{}
	done chan struct{}

	mu        sync.Mutex
	queue     []func(Callbacks)
	finishing bool
	dropped   bool
}

func newDispatcher(cb Callbacks) *dispatcher {
	d := &dispatcher{
		cb:   cb,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *dispatcher) push(fn func(Callbacks)) {
	d.mu.Lock()
	if d.finishing || d.dropped {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()
	d.signal()
}

// finish delivers whatever is queued and then stops.
func (d *dispatcher) finish() {
	d.mu.Lock()
	d.finishing = true
	d.mu.Unlock()
	d.signal()
}

// discard stops without delivering anything still queued.
func (d *dispatcher) discard() {
	d.mu.Lock()
	d.dropped = true
	d.queue = nil
	d.mu.Unlock()
	d.signal()
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) loop() {
	defer close(d.done)
	for range d.wake {
		for {
			d.mu.Lock()
			if d.dropped {
				d.mu.Unlock()
				return
			}
			if len(d.queue) == 0 {
				finishing := d.finishing
				d.mu.Unlock()
				if finishing {
					return
				}
				break
			}
			fn := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.mu.Unlock()

			fn(d.cb)
		}
	}
}
