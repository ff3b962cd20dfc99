package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ResponseType declares how a response body should be decoded.
type ResponseType string

// Supported response types. The zero value decodes as text.
const (
	TypeText        ResponseType = "text"
	TypeJSON        ResponseType = "json"
	TypeBlob        ResponseType = "blob"
	TypeArrayBuffer ResponseType = "arraybuffer"
	TypeDocument    ResponseType = "document"
)

// DefaultRetryDelay is the constant inter-attempt delay used when retries
// are requested without a RetryDelay.
const DefaultRetryDelay = 1000 * time.Millisecond

// RequestConfig describes one logical call. It is treated as read-only once
// handed to Dispatch; the verb wrappers copy before mutating.
type RequestConfig struct {
	// Method is the HTTP verb. Required.
	Method string
	// URL is the target. Required.
	URL string
	// Headers are sent as-is. Names are matched case-insensitively where
	// this package inspects them (content type detection).
	Headers map[string]string
	// Body may be a string, []byte, io.Reader, url.Values (sent as an
	// x-www-form-urlencoded payload), or any JSON-serializable value.
	Body any
	// Timeout is a hard per-attempt deadline. Each retried attempt gets a
	// fresh window. Zero means no deadline.
	Timeout time.Duration
	// Retries is the re-attempt budget after the first attempt fails.
	Retries int
	// RetryDelay is the constant wait between attempts. Defaults to
	// DefaultRetryDelay when Retries > 0 and this is unset.
	RetryDelay time.Duration
	// ExponentialBackoff doubles the delay after each failed attempt,
	// starting from RetryDelay, instead of keeping it constant.
	ExponentialBackoff bool
	// ResponseType selects the decoder. Defaults to TypeText.
	ResponseType ResponseType
	// OnProgress, if set, is invoked on every body read with the bytes
	// received so far and the total if known (0 otherwise).
	OnProgress func(loaded, total int64)
	// UseStream selects the streaming transport instead of the default
	// event-driven one.
	UseStream bool
}

func (cfg *RequestConfig) validate() *Descriptor {
	if cfg == nil {
		return configErr(MissingConfigError)
	}
	if cfg.Method == "" {
		return configErr(MissingMethodError)
	}
	if cfg.URL == "" {
		return configErr(MissingURLError)
	}
	return nil
}

// contentType returns the declared Content-Type header, matched
// case-insensitively, or the empty string.
func (cfg *RequestConfig) contentType() string {
	for k, v := range cfg.Headers {
		if strings.EqualFold(k, "Content-Type") {
			return v
		}
	}
	return ""
}

// buildBody converts the configured Body into a reader for the wire, along
// with a content type to default when the caller didn't declare one. Bodies
// are never attached to GET requests.
func (cfg *RequestConfig) buildBody() (io.Reader, string, *Descriptor) {
	if cfg.Body == nil || cfg.Method == http.MethodGet {
		return nil, "", nil
	}

	switch b := cfg.Body.(type) {
	case string:
		return strings.NewReader(b), "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	case url.Values:
		return strings.NewReader(b.Encode()), "application/x-www-form-urlencoded", nil
	case io.Reader:
		return b, "", nil
	default:
		// Structured value: serialize to JSON when the declared content
		// type is JSON, or when nothing was declared at all.
		if ct := cfg.contentType(); ct != "" && !strings.Contains(strings.ToLower(ct), "json") {
			return nil, "", configErr(fmt.Errorf("%w: %T under content type %q", BodyTypeError, b, ct))
		}
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, "", configErr(fmt.Errorf("%w: %w", BodyTypeError, err))
		}
		return bytes.NewReader(raw), "application/json", nil
	}
}

// clone copies a config, including its header map, so per-verb defaulting
// never mutates a caller-held struct.
func (cfg *RequestConfig) clone() *RequestConfig {
	out := &RequestConfig{}
	if cfg != nil {
		*out = *cfg
	}
	if cfg != nil && cfg.Headers != nil {
		out.Headers = make(map[string]string, len(cfg.Headers))
		for k, v := range cfg.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

// encodeQuery serializes query data into a deterministic (key-sorted)
// percent-encoded query string. Spaces encode as %20, not +.
func encodeQuery(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(queryEscape(k))
		b.WriteByte('=')
		b.WriteString(queryEscape(fmt.Sprintf("%v", data[k])))
	}
	return b.String()
}

// queryEscape percent-encodes s for a query string. url.QueryEscape uses
// the historical + for spaces; the wire contract here is %20.
func queryEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func isFormPayload(body any) bool {
	_, ok := body.(url.Values)
	return ok
}
