package dispatch

import (
	"github.com/cognusion/go-recyclable"
	"golang.org/x/net/html"
)

// Outcome is the terminal result of one logical call: either a decoded body
// or a failure Descriptor, never both. There is no logging fallback; callers
// that ignore Err get no other notification of failure.
type Outcome struct {
	Body any
	Err  *Descriptor

	// decodedAs remembers which decoder produced Body, so JSON() can tell
	// a JSON body that decoded to a string apart from a plain text body.
	decodedAs ResponseType
}

func success(body any, decodedAs ResponseType) *Outcome {
	return &Outcome{Body: body, decodedAs: decodedAs}
}

func failure(d *Descriptor) *Outcome {
	return &Outcome{Err: d}
}

// OK is true when the call succeeded
func (o *Outcome) OK() bool {
	return o.Err == nil
}

// String returns the body as text, and whether it was one.
func (o *Outcome) String() (string, bool) {
	s, ok := o.Body.(string)
	return s, ok
}

// Bytes returns the body as a raw byte buffer, and whether it was one.
func (o *Outcome) Bytes() ([]byte, bool) {
	b, ok := o.Body.([]byte)
	return b, ok
}

// JSON returns the decoded JSON value, and whether the body was decoded as
// JSON. The value is whatever encoding/json unmarshals into an any, which
// can itself be a string when the server sent a quoted JSON scalar.
func (o *Outcome) JSON() (any, bool) {
	if o.Err != nil || o.decodedAs != TypeJSON {
		return nil, false
	}
	return o.Body, true
}

// Blob returns the body as a pooled buffer, and whether it was one.
// Close the buffer when done with it to return it to the pool.
func (o *Outcome) Blob() (*recyclable.Buffer, bool) {
	b, ok := o.Body.(*recyclable.Buffer)
	return b, ok
}

// Document returns the body as a parsed document, and whether it was one.
func (o *Outcome) Document() (*html.Node, bool) {
	n, ok := o.Body.(*html.Node)
	return n, ok
}
