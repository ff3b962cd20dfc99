package dispatch

import (
	"github.com/cheggaaa/pb/v3"
	"go.uber.org/atomic"

	"io"
)

// ProgressBarCallback returns an OnProgress callback that drives a terminal
// progress bar written to out, plus a finish func the caller should invoke
// once the dispatch resolves. The bar starts lazily on the first progress
// notification, so calls that never receive a body draw nothing.
func ProgressBarCallback(out io.Writer) (func(loaded, total int64), func()) {
	bar := pb.New64(0)
	bar.SetWriter(out)

	var started atomic.Bool

	cb := func(loaded, total int64) {
		if started.CompareAndSwap(false, true) {
			bar.SetTotal(total)
			bar.Start()
		}
		if total > 0 {
			bar.SetTotal(total)
		}
		bar.SetCurrent(loaded)
	}

	finish := func() {
		if started.Load() {
			bar.Finish()
		}
	}

	return cb, finish
}
