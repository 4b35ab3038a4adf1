package supervisor

import (
	"bytes"
	"sync"

	"github.com/rs/zerolog/log"
)

// lineLogger forwards child output into the server log one line at a time
type lineLogger struct {
	mu     sync.Mutex
	token  string
	stream string
	buf    []byte
}

func newLineLogger(token, stream string) *lineLogger {
	return &lineLogger{token: Mask(token), stream: stream}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.emit(l.buf[:i])
		l.buf = l.buf[i+1:]
	}
	return len(p), nil
}

// Flush emits a trailing partial line
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buf) > 0 {
		l.emit(l.buf)
		l.buf = nil
	}
}

func (l *lineLogger) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	log.Info().
		Str("token", l.token).
		Str("stream", l.stream).
		Msg(string(line))
}
