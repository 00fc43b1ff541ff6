package machine

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// LineWriter buffers machine log output and emits one log record per
// complete line. send_int_log appends fragments; nothing reaches the
// logger until a newline arrives or Flush is called.
type LineWriter struct {
	log logrus.FieldLogger
	buf strings.Builder
}

// NewLineWriter creates a LineWriter emitting to log.
func NewLineWriter(log logrus.FieldLogger) *LineWriter {
	return &LineWriter{log: log}
}

// Log appends s to the buffer, emitting a record for every complete line
// it closes.
func (w *LineWriter) Log(s string) {
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			break
		}
		w.log.Info(w.buf.String() + s[:i])
		w.buf.Reset()
		s = s[i+1:]
	}
	w.buf.WriteString(s)
}

// Flush emits any buffered partial line. Called at simulation end so
// trailing output is not lost.
func (w *LineWriter) Flush() {
	if w.buf.Len() > 0 {
		w.log.Info(w.buf.String())
		w.buf.Reset()
	}
}
