package dispatch

import (
	"github.com/cognusion/go-timings"
	"go.uber.org/atomic"

	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"
)

// Client is an interface that could refer to an http.Client or anything else
// that can execute a formed request.
type Client interface {
	Do(*http.Request) (*http.Response, error)
}

// transport performs exactly one attempt of one logical call. The Dispatcher
// owns transport selection and the retry loop; implementations hold no retry
// logic of their own.
type transport interface {
	Send(ctx context.Context, cfg *RequestConfig) *Outcome
}

// countingReader invokes a progress callback as body bytes arrive.
type countingReader struct {
	r          io.Reader
	loaded     atomic.Int64
	total      int64
	onProgress func(loaded, total int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		loaded := c.loaded.Add(int64(n))
		if c.onProgress != nil {
			c.onProgress(loaded, c.total)
		}
	}
	return n, err
}

// streamTransport issues an attempt over the context-first net/http path:
// the per-attempt deadline is a child context, and cancellation is observed
// before the send and during the in-flight read.
type streamTransport struct {
	client     Client
	debugOut   *log.Logger
	timingsOut *log.Logger
}

// Send performs one attempt.
func (t *streamTransport) Send(ctx context.Context, cfg *RequestConfig) *Outcome {
	defer timings.Track("stream attempt", time.Now(), t.timingsOut)

	if err := ctx.Err(); err != nil {
		return failure(abortErr(err))
	}

	attemptCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	body, defaultCT, derr := cfg.buildBody()
	if derr != nil {
		return failure(derr)
	}

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

	res, err := t.client.Do(req)
	if err != nil {
		t.debugOut.Printf("stream send failed: %v\n", err)
		return failure(classifySendError(ctx, err))
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(&countingReader{
		r:          res.Body,
		total:      knownTotal(res.ContentLength),
		onProgress: cfg.OnProgress,
	})
	if err != nil {
		t.debugOut.Printf("stream read failed: %v\n", err)
		return failure(classifySendError(ctx, err))
	}

	return finishAttempt(cfg, res.StatusCode, res.Status, raw)
}

// classifySendError maps a raw transport error onto the failure taxonomy.
// The parent context is consulted first so a cooperative cancel mid-flight
// is an abort, never a network failure, even when the platform wraps it.
func classifySendError(parent context.Context, err error) *Descriptor {
	switch {
	case parent.Err() != nil:
		return abortErr(err)
	case errors.Is(err, context.DeadlineExceeded):
		return timeoutErr(err)
	default:
		return networkErr(err)
	}
}

// finishAttempt runs the decoder and ranks the result against the status.
// Non-2xx bodies are still decoded so error payloads are not discarded.
func finishAttempt(cfg *RequestConfig, status int, statusText string, raw []byte) *Outcome {
	decoded, derr := decodeBody(raw, cfg.ResponseType)

	if status < 200 || status >= 300 {
		d := statusErr(status, statusText)
		if derr == nil {
			d.Body = decoded
		} else {
			// The error body didn't match the declared type; keep it as text
			d.Body = string(raw)
		}
		return failure(d)
	}

	if derr != nil {
		return failure(derr)
	}
	return success(decoded, cfg.ResponseType)
}

func knownTotal(contentLength int64) int64 {
	if contentLength < 0 {
		return 0
	}
	return contentLength
}
