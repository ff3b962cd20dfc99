package dispatch

import (
	"errors"
	"fmt"
)

// Static errors to return
const (
	MissingConfigError  = dispatchError("a RequestConfig is required")
	MissingMethodError  = dispatchError("RequestConfig is missing a method")
	MissingURLError     = dispatchError("RequestConfig is missing a url")
	BodyTypeError       = dispatchError("unsupported body type")
	AttemptTimeoutError = dispatchError("attempt timed out")
)

// dispatchError is an error type
type dispatchError string

// Error returns the stringified version of dispatchError
func (e dispatchError) Error() string {
	return string(e)
}

// Kind tags a Descriptor with the failure category it represents.
type Kind int

// Failure categories, in rough order of when they can occur during a call.
const (
	KindConfig Kind = iota
	KindNetwork
	KindStatus
	KindTimeout
	KindAbort
	KindDecode
)

// String returns the loggable name of the Kind
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindNetwork:
		return "network"
	case KindStatus:
		return "status"
	case KindTimeout:
		return "timeout"
	case KindAbort:
		return "abort"
	case KindDecode:
		return "decode"
	}
	return "unknown"
}

// Descriptor is the normalized failure value for a call. Transport- and
// decode-level errors are always converted into one of these; raw platform
// errors never escape to callers.
type Descriptor struct {
	Kind       Kind
	StatusCode int    // set when Kind is KindStatus
	StatusText string // set when Kind is KindStatus
	Body       any    // decoded error body, when the server responded with one
	Err        error  // underlying cause, when there is one
}

// Error satisfies the error interface
func (d *Descriptor) Error() string {
	if d.Kind == KindStatus {
		return fmt.Sprintf("%s failure: %d %s", d.Kind, d.StatusCode, d.StatusText)
	}
	if d.Err != nil {
		return fmt.Sprintf("%s failure: %v", d.Kind, d.Err)
	}
	return fmt.Sprintf("%s failure", d.Kind)
}

// Unwrap exposes the underlying cause to errors.Is/As
func (d *Descriptor) Unwrap() error {
	return d.Err
}

// Retryable is true for the failure kinds where another attempt could
// plausibly succeed. Config, abort, and decode failures are terminal:
// retrying will not fix a bad config, a cancelled call, or a persistently
// malformed body.
func (d *Descriptor) Retryable() bool {
	switch d.Kind {
	case KindNetwork, KindStatus, KindTimeout:
		return true
	}
	return false
}

func configErr(err error) *Descriptor {
	return &Descriptor{Kind: KindConfig, Err: err}
}

func networkErr(err error) *Descriptor {
	return &Descriptor{Kind: KindNetwork, Err: err}
}

func statusErr(code int, text string) *Descriptor {
	return &Descriptor{Kind: KindStatus, StatusCode: code, StatusText: text}
}

func timeoutErr(err error) *Descriptor {
	return &Descriptor{Kind: KindTimeout, Err: err}
}

func abortErr(err error) *Descriptor {
	return &Descriptor{Kind: KindAbort, Err: err}
}

func decodeErr(err error) *Descriptor {
	return &Descriptor{Kind: KindDecode, Err: err}
}

// asDescriptor digs a *Descriptor out of an error chain, if one is there.
func asDescriptor(err error) (*Descriptor, bool) {
	var d *Descriptor
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}
