package hashnav

import "sync"

// Location is an in-memory Navigator. Navigate records a local move and signals
// Events; SetHash applies a remote move silently.
type Location struct {
	mu       sync.Mutex
	hash     string
	events   chan struct{}
	onChange func(hash string)
}

// NewLocation starts at initial. onChange, if set, observes every hash change.
func NewLocation(initial string, onChange func(hash string)) *Location {
	return &Location{
		hash:     initial,
		events:   make(chan struct{}, 1),
		onChange: onChange,
	}
}

func (l *Location) Hash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hash
}

func (l *Location) SetHash(hash string) {
	l.set(hash)
}

// Navigate moves to hash and signals Events.
func (l *Location) Navigate(hash string) {
	l.set(hash)
	select {
	case l.events <- struct{}{}:
	default:
		// A signal is already pending; the check it triggers sees this hash.
	}
}

// Events fires after local moves. Bursts collapse into one signal.
func (l *Location) Events() <-chan struct{} {
	return l.events
}

func (l *Location) set(hash string) {
	l.mu.Lock()
	changed := l.hash != hash
	l.hash = hash
	l.mu.Unlock()

	if changed && l.onChange != nil {
		l.onChange(hash)
	}
}
