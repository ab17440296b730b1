// Package coordinator implements the request coordinator (spec C6): the
// layer that stamps request ids, brackets active_count around in-flight
// work, publishes service state, and honors cancellation.
//
// Grounded on the teacher's metrics.Tracker usage in Scheduler (request
// entry/exit bracketing a counter that metrics.go exposes), generalized
// from a metrics-only counter into the full active_count/ServiceState
// publication contract, and on the teacher's request-id generation style
// (api.go assigns an id when a client omits one) using
// github.com/google/uuid in place of the teacher's net/http-layer id
// source, since the coordinator has no transport of its own to draw an id
// from.
package coordinator

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/engine/metrics"
	"github.com/edgerunner/engine/pkg/engine/state"
	"github.com/edgerunner/engine/pkg/logging"
)

// Engine is the subset of the manager's surface the coordinator drives.
type Engine interface {
	Process(ctx context.Context, request engine.Request, capability engine.Capability, preferred string) engine.Result
	ProcessStream(ctx context.Context, request engine.Request, capability engine.Capability, preferred string) engine.ResultStream
	Track(ctx context.Context, requestID string) (context.Context, func())
	Cancel(requestID string) bool
}

// Coordinator brackets requests to the engine manager with active-count
// tracking, service-state publication, and cancellation.
type Coordinator struct {
	log     logging.Logger
	engine  Engine
	state   *state.Publisher
	counter *activeCounter
	otel    *metrics.OTelMetrics
}

// New constructs a Coordinator over engine, publishing transitions to pub.
// otel may be nil, in which case per-request metrics are not recorded.
func New(log logging.Logger, eng Engine, pub *state.Publisher, otel *metrics.OTelMetrics) *Coordinator {
	return &Coordinator{log: log, engine: eng, state: pub, counter: &activeCounter{}, otel: otel}
}

// stampID returns requestID if non-empty, else a freshly generated one
// (spec.md §4.6 responsibility (i): stamp each incoming request with an id
// if missing).
func stampID(requestID string) string {
	if requestID != "" {
		return requestID
	}
	return uuid.NewString()
}

// Process runs the one-shot path (spec.md §4.6 "One-shot path"): entry
// increments active_count and publishes Processing(n); the engine is
// invoked; exit decrements active_count and publishes Ready once it drains.
func (c *Coordinator) Process(ctx context.Context, requestID string, request engine.Request, capability engine.Capability, preferred string) engine.Result {
	id := stampID(requestID)
	trackedCtx, release := c.engine.Track(ctx, id)
	defer release()

	n := c.counter.inc()
	c.state.Publish(state.Processing(n))
	c.otel.EnterRequest(trackedCtx)
	defer func() {
		n := c.counter.dec()
		c.state.Publish(state.Processing(n))
		c.otel.ExitRequest(trackedCtx)
	}()

	result := c.engine.Process(trackedCtx, request, capability, preferred)
	outcome := "success"
	if result.Error != nil {
		c.log.Warnf("coordinator: request %s failed: %v", id, result.Error)
		outcome = "error"
	}
	c.otel.RecordRequest(trackedCtx, capability, outcome)
	return result
}

// Cancel signals cancellation for a previously issued request id.
func (c *Coordinator) Cancel(requestID string) bool {
	return c.engine.Cancel(requestID)
}

// StreamResult is one emission from Stream: either a Result destined for
// the client, or Done == true once the stream has concluded and no further
// values will arrive (including on cancellation, where no terminal Result
// is emitted at all).
type StreamResult struct {
	Result engine.Result
	Done   bool
}

// Stream runs the streaming path (spec.md §4.6 "Streaming path") and
// returns a channel of StreamResult, closed once the stream concludes.
// Completion is signaled by a terminal (non-partial) Result from the
// runner; if the runner's stream ends without one, the coordinator
// synthesizes a terminal E101 "stream ended without completion" result. A
// cancelled stream ends with no terminal result and is not an error.
func (c *Coordinator) Stream(ctx context.Context, requestID string, request engine.Request, capability engine.Capability, preferred string) <-chan StreamResult {
	id := stampID(requestID)
	trackedCtx, release := c.engine.Track(ctx, id)

	out := make(chan StreamResult)

	go func() {
		defer close(out)
		defer release()

		n := c.counter.inc()
		c.state.Publish(state.Processing(n))
		c.otel.EnterRequest(trackedCtx)
		defer func() {
			n := c.counter.dec()
			c.state.Publish(state.Processing(n))
			c.otel.ExitRequest(trackedCtx)
		}()

		stream := c.engine.ProcessStream(trackedCtx, request, capability, preferred)
		sawTerminal := false

		for {
			result, ok := stream.Next(trackedCtx)
			if !ok {
				break
			}
			if !result.Partial {
				sawTerminal = true
				outcome := "success"
				if result.Error != nil {
					outcome = "error"
				}
				c.otel.RecordRequest(trackedCtx, capability, outcome)
			}
			select {
			case out <- StreamResult{Result: result}:
			case <-trackedCtx.Done():
				return
			}
			if !result.Partial {
				return
			}
		}

		if trackedCtx.Err() != nil {
			// Cancelled: no terminal result, clean end-of-stream.
			return
		}
		if !sawTerminal {
			synthesized := engine.ErrorResult(engine.NewRuntimeError(errors.New("stream ended without completion")))
			c.otel.RecordRequest(trackedCtx, capability, "error")
			select {
			case out <- StreamResult{Result: synthesized}:
			case <-trackedCtx.Done():
			}
		}
	}()

	return out
}

// activeCounter tracks the in-flight request count the coordinator
// publishes through ServiceState. Callers always pair inc with exactly one
// dec.
type activeCounter struct {
	mu    sync.Mutex
	count int
}

func (c *activeCounter) inc() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return c.count
}

func (c *activeCounter) dec() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count--
	return c.count
}
