// Package state implements the service-state publisher (spec C9): the
// single source of truth for Ready / Processing(n) / Downloading(id,%) /
// Error(msg, recoverable), fed by the request coordinator and by external
// downloaders.
//
// Grounded on the subscribe/cancel-func shape of
// itsneelabh-gomind/orchestration.RedisCommandStore.SubscribeCommand
// (`(<-chan T, func(), error)`), simplified to `(<-chan ServiceState,
// func())` since subscribing to an in-process broadcaster cannot itself
// fail.
package state

import "sync"

// Kind tags which variant of ServiceState is populated.
type Kind int

const (
	KindReady Kind = iota
	KindProcessing
	KindDownloading
	KindError
)

// ServiceState is the tagged union the publisher broadcasts. Only the
// fields relevant to Kind are meaningful.
type ServiceState struct {
	Kind Kind

	// Processing
	ActiveCount int

	// Downloading
	DownloadID      string
	DownloadPercent float64
	DownloadSize    int64
	HasDownloadSize bool

	// Error
	ErrorMessage     string
	ErrorRecoverable bool
}

// Ready constructs the Ready state.
func Ready() ServiceState { return ServiceState{Kind: KindReady} }

// Processing constructs the Processing(n) state.
func Processing(activeCount int) ServiceState {
	return ServiceState{Kind: KindProcessing, ActiveCount: activeCount}
}

// Downloading constructs the Downloading(id, percent) state, with an
// optional total size.
func Downloading(id string, percent float64, size int64, hasSize bool) ServiceState {
	return ServiceState{Kind: KindDownloading, DownloadID: id, DownloadPercent: percent, DownloadSize: size, HasDownloadSize: hasSize}
}

// Error constructs the Error(msg, recoverable) state.
func Error(message string, recoverable bool) ServiceState {
	return ServiceState{Kind: KindError, ErrorMessage: message, ErrorRecoverable: recoverable}
}

const subscriberBuffer = 4

// Publisher is a broadcaster of ServiceState transitions. New subscribers
// immediately observe the current state. The zero value is not usable; use
// New.
type Publisher struct {
	mu          sync.Mutex
	current     ServiceState
	subscribers map[chan ServiceState]struct{}
}

// New constructs a Publisher whose initial state is Ready.
func New() *Publisher {
	return &Publisher{
		current:     Ready(),
		subscribers: make(map[chan ServiceState]struct{}),
	}
}

// Publish sets the current state and broadcasts it to every subscriber. A
// Processing(0) transition is collapsed to Ready (spec invariant:
// Processing{0} collapses to Ready).
func (p *Publisher) Publish(s ServiceState) {
	if s.Kind == KindProcessing && s.ActiveCount == 0 {
		s = Ready()
	}

	p.mu.Lock()
	p.current = s
	subs := make([]chan ServiceState, 0, len(p.subscribers))
	for ch := range p.subscribers {
		subs = append(subs, ch)
	}
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- s:
		default:
			// Slow subscriber: drop the oldest buffered state rather than
			// block the publisher, then retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// Current returns the most recently published state.
func (p *Publisher) Current() ServiceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Subscribe returns a channel that receives every subsequent state
// transition, preloaded with the current state, and an unsubscribe func.
// Calling unsubscribe more than once is safe.
func (p *Publisher) Subscribe() (<-chan ServiceState, func()) {
	ch := make(chan ServiceState, subscriberBuffer)

	p.mu.Lock()
	ch <- p.current
	p.subscribers[ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subscribers, ch)
			p.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe
}
