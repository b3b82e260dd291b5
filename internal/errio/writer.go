// Package errio provides small io.Writer helpers shared by cheax's
// printer and error-reporting code paths.
package errio

import (
	"io"

	"github.com/pkg/errors"
)

// Writer wraps an io.Writer and remembers the first error it encounters.
// Every subsequent Write becomes a no-op returning that same error, so a
// long chain of Fprintf calls (as used when printing a backtrace) can skip
// individual error checks and test Err once at the end.
type Writer struct {
	w   io.Writer
	Err error
}

// New returns a new Writer wrapping w.
func New(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Write(p []byte) (n int, err error) {
	if w.Err != nil {
		return 0, w.Err
	}
	n, err = w.w.Write(p)
	if err != nil {
		w.Err = errors.Wrap(err, "write failed")
	}
	return n, w.Err
}
