package dispatch

import (
	"github.com/cognusion/go-timings"

	"context"
	"io"
	"log"
	"net/http"
	"time"
)

// attemptState tracks one attempt through the event transport. Every attempt
// ends in one of the three transport outcomes, unless cancellation cuts
// it short first.
type attemptState int

const (
	stateIdle attemptState = iota
	stateSent
	stateLoaded
	stateErrored
	stateTimedOut
	// stateAborted is not a transport outcome: it labels an attempt cut
	// short by cooperative cancellation so the debug trail stays truthful.
	stateAborted
)

// String returns the loggable name of the attemptState
func (s attemptState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateSent:
		return "sent"
	case stateLoaded:
		return "loaded"
	case stateErrored:
		return "errored"
	case stateTimedOut:
		return "timedout"
	case stateAborted:
		return "aborted"
	}
	return "unknown"
}

// attemptEvent is what the send goroutine reports back to the owning select.
type attemptEvent struct {
	status     int
	statusText string
	raw        []byte
	err        error
}

// eventTransport issues an attempt the way a long-lived request object
// would: the native call runs in its own goroutine while the owner
// arbitrates completion, a per-attempt timer, and cancellation. Headers are
// attached before the body is flushed, and the per-attempt deadline is a
// timer owned here rather than a context deadline.
type eventTransport struct {
	client     Client
	debugOut   *log.Logger
	timingsOut *log.Logger
}

// Send performs one attempt.
func (t *eventTransport) Send(ctx context.Context, cfg *RequestConfig) *Outcome {
	defer timings.Track("event attempt", time.Now(), t.timingsOut)

	state := stateIdle
	defer func() {
		t.debugOut.Printf("event attempt terminal state: %s\n", state)
	}()

	if err := ctx.Err(); err != nil {
		return failure(abortErr(err))
	}

	body, defaultCT, derr := cfg.buildBody()
	if derr != nil {
		return failure(derr)
	}

	// The attempt context exists so an expired timer can tear down the
	// in-flight call; the parent alone decides what counts as an abort.
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, cfg.Method, cfg.URL, body)
	if err != nil {
		return failure(configErr(err))
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if defaultCT != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", defaultCT)
	}

	events := make(chan attemptEvent, 1)
	state = stateSent

	go func() {
		res, err := t.client.Do(req)
		if err != nil {
			events <- attemptEvent{err: err}
			return
		}
		defer res.Body.Close()

		raw, rerr := io.ReadAll(&countingReader{
			r:          res.Body,
			total:      knownTotal(res.ContentLength),
			onProgress: cfg.OnProgress,
		})
		if rerr != nil {
			events <- attemptEvent{err: rerr}
			return
		}
		events <- attemptEvent{status: res.StatusCode, statusText: res.Status, raw: raw}
	}()

	var timeout <-chan time.Time
	if cfg.Timeout > 0 {
		timer := time.NewTimer(cfg.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ev := <-events:
		if ev.err != nil {
			if ctx.Err() != nil {
				state = stateAborted
				return failure(abortErr(ev.err))
			}
			state = stateErrored
			t.debugOut.Printf("event send failed: %v\n", ev.err)
			return failure(networkErr(ev.err))
		}
		state = stateLoaded
		return finishAttempt(cfg, ev.status, ev.statusText, ev.raw)
	case <-timeout:
		state = stateTimedOut
		cancel() // tear down the in-flight call so the goroutine can wind up
		return failure(timeoutErr(AttemptTimeoutError))
	case <-ctx.Done():
		state = stateAborted
		return failure(abortErr(ctx.Err()))
	}
}
