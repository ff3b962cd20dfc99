package dispatch

import (
	"github.com/fortytw2/leaktest"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/atomic"

	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func Test_ProgressReporting(t *testing.T) {
	defer leaktest.Check(t)()

	Convey("When a progress callback is configured, it sees the bytes arrive and ends at the known total", t, func() {
		payload := []byte(strings.Repeat("progress! ", 100))

		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			rw.Write(payload)
		}))
		defer server.Close()

		for _, useStream := range []bool{false, true} {
			var (
				lastLoaded atomic.Int64
				lastTotal  atomic.Int64
				calls      atomic.Int64
			)

			out := New().Dispatch(context.Background(), &RequestConfig{
				Method:    http.MethodGet,
				URL:       server.URL,
				UseStream: useStream,
				OnProgress: func(loaded, total int64) {
					calls.Inc()
					lastLoaded.Store(loaded)
					lastTotal.Store(total)
				},
			})
			So(out.OK(), ShouldBeTrue)
			So(calls.Load(), ShouldBeGreaterThan, 0)
			So(lastLoaded.Load(), ShouldEqual, int64(len(payload)))
			So(lastTotal.Load(), ShouldEqual, int64(len(payload)))
		}
	})
}

func Test_EventTransportStates(t *testing.T) {
	defer leaktest.Check(t)()

	Convey("The event transport reaches each terminal state", t, func() {
		et := &eventTransport{
			client:     DefaultClient,
			debugOut:   discardLogger(),
			timingsOut: discardLogger(),
		}

		Convey("a 2xx answer loads", func() {
			server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
				rw.Write([]byte(`loaded`))
			}))
			defer server.Close()

			out := et.Send(context.Background(), &RequestConfig{Method: http.MethodGet, URL: server.URL})
			So(out.OK(), ShouldBeTrue)
		})

		Convey("an unreachable server errors", func() {
			out := et.Send(context.Background(), &RequestConfig{Method: http.MethodGet, URL: "http://127.0.0.1:1/nope"})
			So(out.OK(), ShouldBeFalse)
			So(out.Err.Kind, ShouldEqual, KindNetwork)
		})

		Convey("a silent server times out", func() {
			server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
				time.Sleep(200 * time.Millisecond)
			}))
			defer server.Close()

			out := et.Send(context.Background(), &RequestConfig{
				Method:  http.MethodGet,
				URL:     server.URL,
				Timeout: 30 * time.Millisecond,
			})
			So(out.OK(), ShouldBeFalse)
			So(out.Err.Kind, ShouldEqual, KindTimeout)
		})
	})
}

func Test_EventTransportAbortedLabel(t *testing.T) {
	defer leaktest.Check(t)()

	Convey("When a call is cancelled mid-flight, the debug trail labels the attempt aborted, not errored", t, func() {
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			time.Sleep(300 * time.Millisecond)
		}))
		defer server.Close()

		var debug bytes.Buffer
		et := &eventTransport{
			client:     DefaultClient,
			debugOut:   log.New(&debug, "", 0),
			timingsOut: discardLogger(),
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		out := et.Send(ctx, &RequestConfig{Method: http.MethodGet, URL: server.URL})
		So(out.OK(), ShouldBeFalse)
		So(out.Err.Kind, ShouldEqual, KindAbort)
		So(debug.String(), ShouldContainSubstring, "terminal state: aborted")
		So(debug.String(), ShouldNotContainSubstring, "terminal state: errored")
	})
}

func Test_MaxInFlight(t *testing.T) {
	defer leaktest.Check(t)()

	Convey("When a dispatcher is capped, concurrent dispatches never exceed the cap", t, func() {
		var (
			active atomic.Int64
			peak   atomic.Int64
		)

		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			n := active.Inc()
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			active.Dec()
			rw.Write([]byte(`ok`))
		}))
		defer server.Close()

		d := New()
		d.SetMaxInFlight(2)

		done := make(chan *Outcome, 6)
		for i := 0; i < 6; i++ {
			go func() {
				done <- d.Get(context.Background(), server.URL, nil, nil)
			}()
		}
		for i := 0; i < 6; i++ {
			out := <-done
			So(out.OK(), ShouldBeTrue)
		}
		So(peak.Load(), ShouldBeLessThanOrEqualTo, 2)
	})
}

func Test_ProgressBarCallback(t *testing.T) {
	Convey("The progress bar adapter renders to the supplied writer once driven", t, func() {
		var buf bytes.Buffer

		cb, finish := ProgressBarCallback(&buf)
		cb(512, 1024)
		cb(1024, 1024)
		finish()

		So(buf.Len(), ShouldBeGreaterThan, 0)
	})

	Convey("A bar that never starts draws nothing on finish", t, func() {
		var buf bytes.Buffer

		_, finish := ProgressBarCallback(&buf)
		finish()

		So(buf.Len(), ShouldEqual, 0)
	})
}
