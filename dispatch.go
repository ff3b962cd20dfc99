// Package dispatch provides a configuration-driven entry point for issuing
// HTTP requests over one of two interchangeable transports: a streaming,
// context-first client and an event-driven, request-object client. Outcomes
// are normalized to a single Success/Failure result, response bodies are
// decoded per a declared response type, and failed attempts are re-run under
// a bounded retry policy. The policy applies uniformly to both transports.
package dispatch

import (
	"github.com/cognusion/go-sequence"
	"github.com/cognusion/go-timings"
	"github.com/cognusion/semaphore"

	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

var (
	seq = sequence.New(0)

	// DefaultClient is what both transports use for the underlying
	// exchanges unless SetClient overrides it. Retry and timeout handling
	// live in the Dispatcher, so a plain http.Client suffices.
	DefaultClient Client = new(http.Client)

	// Default is the dispatcher behind the package-level verb functions.
	Default = New()
)

// Dispatcher is the public entry point. It selects a transport from the
// config, runs the attempt loop under the retry policy, and exposes
// convenience wrappers for common HTTP verbs. The zero value is not useful;
// use New or NewWithLoggers.
type Dispatcher struct {
	TimingsOut *log.Logger
	DebugOut   *log.Logger

	client   Client
	inflight semaphore.Semaphore
	capped   bool
}

// New returns a Dispatcher. Logged messages are discarded.
func New() *Dispatcher {
	return NewWithLoggers(nil, nil)
}

// NewWithLoggers returns a Dispatcher. Logged messages are sent to the
// specified Loggers, or discarded if nil.
func NewWithLoggers(timingLogger, debugLogger *log.Logger) *Dispatcher {
	// Discard if nil
	if timingLogger == nil {
		timingLogger = log.New(io.Discard, "", 0)
	}

	// Discard if nil
	if debugLogger == nil {
		debugLogger = log.New(io.Discard, "", 0)
	}

	return &Dispatcher{
		TimingsOut: timingLogger,
		DebugOut:   debugLogger,
		client:     DefaultClient,
	}
}

// SetClient allows for overriding the Client used to make the requests.
func (d *Dispatcher) SetClient(client Client) {
	d.client = client
}

// SetMaxInFlight caps the number of concurrently-running dispatches. Zero or
// negative removes the cap; uncapped dispatchers never queue or synchronize
// independent calls.
func (d *Dispatcher) SetMaxInFlight(max int) {
	if max < 1 {
		d.capped = false
		return
	}
	d.inflight = semaphore.NewSemaphore(max)
	d.capped = true
}

// Dispatch issues one logical call per the config and blocks until it
// resolves. The Outcome carries either the decoded body or a failure
// Descriptor, never both, and resolves exactly once; there is no logging
// fallback for ignored failures. Total attempts never exceed Retries+1, and
// a context cancelled at any checkpoint suppresses all further attempts.
func (d *Dispatcher) Dispatch(ctx context.Context, cfg *RequestConfig) *Outcome {
	id := seq.NextHashID()
	defer timings.Track(fmt.Sprintf("[%s] dispatch full", id), time.Now(), d.TimingsOut)

	// Fail fast before any I/O
	if derr := cfg.validate(); derr != nil {
		d.DebugOut.Printf("[%s] config rejected: %v\n", id, derr)
		return failure(derr)
	}
	if err := ctx.Err(); err != nil {
		return failure(abortErr(err))
	}

	if d.capped {
		d.inflight.Lock()
		defer d.inflight.Unlock()
	}

	t := d.transportFor(cfg)
	state := &RetryState{budget: cfg.Retries}

	out := newPolicy(cfg).Run(ctx, state, func(c context.Context) *Outcome {
		defer timings.Track(fmt.Sprintf("[%s] attempt %d", id, state.Attempts()), time.Now(), d.TimingsOut)
		o := t.Send(c, cfg)
		if o.Err != nil {
			d.DebugOut.Printf("[%s] attempt %d failed (%d remaining): %v\n", id, state.Attempts(), state.Remaining(), o.Err)
		}
		return o
	})

	if out.Err != nil {
		d.DebugOut.Printf("[%s] resolved after %d attempt(s): %v\n", id, state.Attempts(), out.Err)
	} else {
		d.DebugOut.Printf("[%s] resolved after %d attempt(s)\n", id, state.Attempts())
	}
	return out
}

func (d *Dispatcher) transportFor(cfg *RequestConfig) transport {
	if cfg.UseStream {
		return &streamTransport{client: d.client, debugOut: d.DebugOut, timingsOut: d.TimingsOut}
	}
	return &eventTransport{client: d.client, debugOut: d.DebugOut, timingsOut: d.TimingsOut}
}

// Get dispatches a GET. Query data is serialized onto the URL as a
// percent-encoded query string; it never becomes a body.
func (d *Dispatcher) Get(ctx context.Context, url string, query map[string]any, overrides *RequestConfig) *Outcome {
	return d.Dispatch(ctx, queryConfig(http.MethodGet, url, query, overrides))
}

// Delete dispatches a DELETE, serializing query data like Get.
func (d *Dispatcher) Delete(ctx context.Context, url string, query map[string]any, overrides *RequestConfig) *Outcome {
	return d.Dispatch(ctx, queryConfig(http.MethodDelete, url, query, overrides))
}

// Post dispatches a POST. A structured body defaults the content type to
// JSON unless the caller declared one or supplied a form payload.
func (d *Dispatcher) Post(ctx context.Context, url string, body any, overrides *RequestConfig) *Outcome {
	return d.Dispatch(ctx, bodyConfig(http.MethodPost, url, body, overrides))
}

// Put dispatches a PUT with Post's body rules.
func (d *Dispatcher) Put(ctx context.Context, url string, body any, overrides *RequestConfig) *Outcome {
	return d.Dispatch(ctx, bodyConfig(http.MethodPut, url, body, overrides))
}

// Patch dispatches a PATCH with Post's body rules.
func (d *Dispatcher) Patch(ctx context.Context, url string, body any, overrides *RequestConfig) *Outcome {
	return d.Dispatch(ctx, bodyConfig(http.MethodPatch, url, body, overrides))
}

// Dispatch issues a call on the Default dispatcher.
func Dispatch(ctx context.Context, cfg *RequestConfig) *Outcome {
	return Default.Dispatch(ctx, cfg)
}

// Get issues a GET on the Default dispatcher.
func Get(ctx context.Context, url string, query map[string]any, overrides *RequestConfig) *Outcome {
	return Default.Get(ctx, url, query, overrides)
}

// Delete issues a DELETE on the Default dispatcher.
func Delete(ctx context.Context, url string, query map[string]any, overrides *RequestConfig) *Outcome {
	return Default.Delete(ctx, url, query, overrides)
}

// Post issues a POST on the Default dispatcher.
func Post(ctx context.Context, url string, body any, overrides *RequestConfig) *Outcome {
	return Default.Post(ctx, url, body, overrides)
}

// Put issues a PUT on the Default dispatcher.
func Put(ctx context.Context, url string, body any, overrides *RequestConfig) *Outcome {
	return Default.Put(ctx, url, body, overrides)
}

// Patch issues a PATCH on the Default dispatcher.
func Patch(ctx context.Context, url string, body any, overrides *RequestConfig) *Outcome {
	return Default.Patch(ctx, url, body, overrides)
}

// queryConfig builds a config for the query-string verbs.
func queryConfig(method, rawurl string, query map[string]any, overrides *RequestConfig) *RequestConfig {
	cfg := overrides.clone()
	cfg.Method = method
	cfg.URL = rawurl
	cfg.Body = nil
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(rawurl, "?") {
			sep = "&"
		}
		cfg.URL = rawurl + sep + encodeQuery(query)
	}
	return cfg
}

// bodyConfig builds a config for the body-carrying verbs.
func bodyConfig(method, url string, body any, overrides *RequestConfig) *RequestConfig {
	cfg := overrides.clone()
	cfg.Method = method
	cfg.URL = url
	cfg.Body = body

	if body == nil || isFormPayload(body) || cfg.contentType() != "" {
		return cfg
	}
	switch body.(type) {
	case string, []byte, io.Reader:
		// Raw bodies pass through with whatever the caller declared
	default:
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, 1)
		}
		cfg.Headers["Content-Type"] = "application/json"
	}
	return cfg
}
