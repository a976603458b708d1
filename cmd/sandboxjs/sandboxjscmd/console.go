package sandboxjscmd

import (
	"bytes"
	"io"
	"sync"
)

// consoleWriter syncs writes with a mutex and, on a TTY, clears to end
// of line before each newline, adapted from the teacher's cmd/ui.go
// consoleWriter for a CLI with no progress bars to coordinate with.
type consoleWriter struct {
	Writer io.Writer
	IsTTY  bool
	Mutex  *sync.Mutex
}

func (w *consoleWriter) Write(p []byte) (int, error) {
	origLen := len(p)
	if w.IsTTY {
		p = bytes.ReplaceAll(p, []byte{'\n'}, []byte{'\x1b', '[', '0', 'K', '\n'})
	}
	w.Mutex.Lock()
	n, err := w.Writer.Write(p)
	w.Mutex.Unlock()
	if err != nil && n < origLen {
		return n, err
	}
	return origLen, err
}
