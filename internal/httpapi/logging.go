package httpapi

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger of the HTTP layer; silent until SetLogger.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// defaultLogLevel is read once from TENSORD_LOG_LEVEL.
var defaultLogLevel = parseLevel(os.Getenv("TENSORD_LOG_LEVEL"))

// SetDefaultLogLevel overrides the request log level used when a request
// carries no override.
func SetDefaultLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// requestLog carries the per-request logging decision through a handler.
type requestLog struct {
	lvl   LogLevel
	start time.Time
	r     *http.Request
	model string
}

func newRequestLog(r *http.Request, model string) requestLog {
	return requestLog{lvl: requestLogLevel(r), start: time.Now(), r: r, model: model}
}

func (l requestLog) event(e *zerolog.Event) *zerolog.Event {
	e = e.Str("path", l.r.URL.Path).Str("model", l.model)
	if rid := middleware.GetReqID(l.r.Context()); rid != "" {
		e = e.Str("request_id", rid)
	}
	return e
}

func (l requestLog) begin(msg string) {
	if l.lvl >= LevelInfo {
		l.event(zlog.Info()).Msg(msg + " start")
	}
}

// debug logs fn's fields only at debug level.
func (l requestLog) debug(msg string, fn func(e *zerolog.Event) *zerolog.Event) {
	if l.lvl >= LevelDebug {
		fn(l.event(zlog.Debug())).Msg(msg)
	}
}

// end logs the outcome. Failures are logged from LevelError, success from LevelInfo.
func (l requestLog) end(msg string, status int, err error) {
	switch {
	case err != nil && l.lvl >= LevelError:
		l.event(zlog.Error()).Int("status", status).Dur("dur", time.Since(l.start)).Err(err).Msg(msg + " end")
	case err == nil && l.lvl >= LevelInfo:
		l.event(zlog.Info()).Int("status", status).Dur("dur", time.Since(l.start)).Msg(msg + " end")
	}
}
