package dispatch

import (
	"bytes"
	"encoding/json"

	"github.com/cognusion/go-recyclable"
	"golang.org/x/net/html"
)

var rPool = recyclable.NewBufferPool()

// decodeBody extracts the correctly-typed payload from raw response bytes.
// A body that doesn't match the declared type is a decode failure, distinct
// from network and status failures, so callers can tell "the server answered
// but the body was wrong" from "the server was unreachable."
func decodeBody(raw []byte, rt ResponseType) (any, *Descriptor) {
	switch rt {
	case TypeJSON:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, decodeErr(err)
		}
		return v, nil
	case TypeBlob:
		b := rPool.Get()
		b.Reset(raw)
		return b, nil
	case TypeArrayBuffer:
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	case TypeDocument:
		// html.Parse is tolerant of malformed markup, so the error path
		// here is a read failure rather than a parse failure.
		doc, err := html.Parse(bytes.NewReader(raw))
		if err != nil {
			return nil, decodeErr(err)
		}
		return doc, nil
	default:
		return string(raw), nil
	}
}
