package bootloader

import "io"

// State is the retry scheduler state.
type State int

const (
	StateFirstTry State = iota // idle, or about to send the first copy
	StateRetrying              // sent at least once, waiting for the deadline
)

func (s State) String() string {
	if s == StateRetrying {
		return "retrying"
	}
	return "first-try"
}

// Event is what a scheduler tick did.
type Event int

const (
	EventNone       Event = iota
	EventSent             // the frame was written
	EventNoResponse       // retries exhausted; raised once per Start
)

// Scheduler retransmits one frame on a tick clock until it is stopped or
// its retry budget runs out. Time is measured in ticks supplied by the
// caller, so a Scheduler never reads a wall clock.
type Scheduler struct {
	frame     []byte
	max       int
	remaining int
	delay     uint64
	deadline  uint64
	state     State
}

// Start installs frame with a budget of maxRetries transmissions spaced
// delay ticks apart. Any previous countdown is replaced. The first copy goes
// out on the next Tick.
func (s *Scheduler) Start(frame []byte, maxRetries int, delay uint64) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	s.frame = frame
	s.max = maxRetries
	s.remaining = maxRetries
	s.delay = delay
	s.deadline = 0
	s.state = StateFirstTry
}

// Stop cancels any pending transmission.
func (s *Scheduler) Stop() {
	s.state = StateFirstTry
	s.remaining = 0
}

// Tick advances the scheduler to time now, writing the frame to w when a
// transmission is due. Write errors are returned unchanged and leave the
// budget untouched.
func (s *Scheduler) Tick(now uint64, w io.Writer) (Event, error) {
	switch s.state {
	case StateFirstTry:
		if s.remaining == 0 {
			return EventNone, nil
		}
		if err := s.send(now, w); err != nil {
			return EventNone, err
		}
		s.state = StateRetrying
		return EventSent, nil

	case StateRetrying:
		if now < s.deadline {
			return EventNone, nil
		}
		if s.remaining > 0 {
			if err := s.send(now, w); err != nil {
				return EventNone, err
			}
			return EventSent, nil
		}
		s.state = StateFirstTry
		return EventNoResponse, nil
	}
	return EventNone, nil
}

func (s *Scheduler) send(now uint64, w io.Writer) error {
	if _, err := w.Write(s.frame); err != nil {
		return err
	}
	s.remaining--
	s.deadline = now + s.delay
	return nil
}

// Active reports whether a transmission or a NoResponse is still pending.
func (s *Scheduler) Active() bool {
	return s.state == StateRetrying || s.remaining > 0
}

// State returns the current state.
func (s *Scheduler) State() State {
	return s.state
}

// Retries returns the budget of the current frame and what is left of it.
func (s *Scheduler) Retries() (total, remaining int) {
	return s.max, s.remaining
}

// Attempts returns how many copies of the current frame were written.
func (s *Scheduler) Attempts() int {
	return s.max - s.remaining
}

// Frame returns the installed frame.
func (s *Scheduler) Frame() []byte {
	return s.frame
}
