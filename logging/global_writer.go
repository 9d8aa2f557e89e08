package logging

import (
	"io"
	"os"
	"sync/atomic"
)

// swapWriter forwards writes to a target that can be replaced while
// loggers hold a reference to the swapWriter itself.
type swapWriter struct {
	target atomic.Pointer[io.Writer]
}

func newSwapWriter(w io.Writer) *swapWriter {
	s := &swapWriter{}
	s.target.Store(&w)
	return s
}

func (s *swapWriter) Write(p []byte) (int, error) {
	return (*s.target.Load()).Write(p)
}

var stderrMirror = newSwapWriter(os.Stderr)

// SetGlobalOutput redirects the stderr mirror of every logger already built.
func SetGlobalOutput(w io.Writer) {
	stderrMirror.target.Store(&w)
}

// GetGlobalOutput returns the shared mirror writer.
func GetGlobalOutput() io.Writer {
	return stderrMirror
}
