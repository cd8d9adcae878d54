package logger

import (
	"fmt"
	"io"
	"log"
	"os"

	"ContentSync/internal/domain"
	"ContentSync/internal/ports"
)

// New returns a stdlib-backed logger with component prefix.
func New(component string) *log.Logger {
	return NewWithWriter(os.Stdout, component)
}

// NewWithWriter is New writing to w, without file and line flags.
func NewWithWriter(w io.Writer, component string) *log.Logger {
	prefix := fmt.Sprintf("[%s] ", component)
	return log.New(w, prefix, log.LstdFlags|log.Lmsgprefix)
}

// Progress prints every progress event as one line.
func Progress(l *log.Logger) ports.ProgressFunc {
	return func(ev domain.ProgressEvent) {
		if l == nil {
			return
		}
		if ev.Groups > 0 && ev.Group > 0 {
			l.Printf("%s %s [%d/%d] %s", ev.Source, ev.State, ev.Group, ev.Groups, ev.Message)
			return
		}
		l.Printf("%s %s %s", ev.Source, ev.State, ev.Message)
	}
}
