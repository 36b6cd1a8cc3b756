package obs

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

var (
	loggerMu sync.RWMutex
	logger   log.Logger
)

// NewLogger builds a leveled logger writing JSON or logfmt to w.
func NewLogger(w io.Writer, format, lvl string) log.Logger {
	var l log.Logger
	if strings.EqualFold(format, "json") {
		l = log.NewJSONLogger(log.NewSyncWriter(w))
	} else {
		l = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}
	l = level.NewFilter(l, levelOption(lvl))
	l = log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	return l
}

func levelOption(lvl string) level.Option {
	switch strings.ToLower(lvl) {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}

// Logger returns the shared structured logger used across the service.
func Logger() log.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = NewLogger(os.Stdout, "logfmt", "info")
	}
	return logger
}

// SetLogger replaces the shared logger.
func SetLogger(l log.Logger) {
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

// LogRequest emits one access log line.
func LogRequest(keyvals ...interface{}) {
	_ = level.Info(Logger()).Log(append([]interface{}{"type", "access"}, keyvals...)...)
}
