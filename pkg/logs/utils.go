package logs

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	mu      sync.Mutex
	level   = log.InfoLevel
	out     io.Writer = os.Stderr
	loggers []*log.Logger
)

// formatter adds default fields to each log entry.
type formatter struct {
	owner string
	lf    log.Formatter
}

// Format satisfies the log.Formatter interface.
func (f *formatter) Format(e *log.Entry) ([]byte, error) {
	e.Message = fmt.Sprintf("[%s] %s", f.owner, e.Message)
	return f.lf.Format(e)
}

func NewLogger(owner string) *log.Logger {
	logger := log.New()
	logger.SetFormatter(&formatter{
		owner: owner,
		lf: &log.TextFormatter{
			ForceColors:     true,
			FullTimestamp:   true,
			TimestampFormat: time.StampMilli,
		},
	})
	mu.Lock()
	logger.SetLevel(level)
	logger.SetOutput(out)
	loggers = append(loggers, logger)
	mu.Unlock()
	return logger
}

// SetLevel applies lvl to every logger created by NewLogger, past and future.
func SetLevel(lvl string) error {
	parsed, err := log.ParseLevel(lvl)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	level = parsed
	for _, l := range loggers {
		l.SetLevel(parsed)
	}
	return nil
}

func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	for _, l := range loggers {
		l.SetOutput(w)
	}
}
