package session

// Loop is a single-threaded cooperative event loop: every action posted
// to it runs serialized, one at a time, in the order it was posted. This
// is the Go stand-in for the "one event loop per listener thread" model
// of spec.md §5 — WS reads and Peer callbacks from different goroutines
// are funnelled through Post so that session state is never touched by
// two goroutines at once, without resorting to locks in the session or
// proxy packages themselves.
type Loop struct {
	actions chan func()
	done    chan struct{}
}

// NewLoop starts a Loop's worker goroutine and returns it.
func NewLoop() *Loop {
	l := &Loop{
		actions: make(chan func(), 256),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	for {
		select {
		case fn := <-l.actions:
			fn()
		case <-l.done:
			return
		}
	}
}

// Post enqueues fn to run on the loop's goroutine. Safe to call from any
// goroutine, including from within fn itself. A Post after Close is a
// silent no-op, matching "dropping a connection cancels everything
// associated with it" (spec.md §5).
func (l *Loop) Post(fn func()) {
	select {
	case l.actions <- fn:
	case <-l.done:
	}
}

// Close stops the loop. Actions already queued are discarded.
func (l *Loop) Close() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}
