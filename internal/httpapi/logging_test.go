package httpapi

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"":      LevelOff,
		"off":   LevelOff,
		"error": LevelError,
		"INFO":  LevelInfo,
		"debug": LevelDebug,
		"weird": LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestLogLevel_Overrides(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?log=debug", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("query override failed: %v", got)
	}
	r = httptest.NewRequest("GET", "/x?log=1", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("short query override failed: %v", got)
	}
	r = httptest.NewRequest("GET", "/x", nil)
	r.Header.Set("X-Log-Level", "error")
	if got := requestLogLevel(r); got != LevelError {
		t.Fatalf("header override failed: %v", got)
	}
	SetDefaultLogLevel("info")
	defer SetDefaultLogLevel("")
	if got := requestLogLevel(httptest.NewRequest("GET", "/x", nil)); got != LevelInfo {
		t.Fatalf("default level: %v", got)
	}
}

func TestRequestLog_Levels(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer SetLogger(zerolog.Nop())

	r := httptest.NewRequest("POST", "/v2/models/m/infer?log=error", nil)
	rl := newRequestLog(r, "m")
	rl.begin("infer")
	rl.end("infer", 200, nil)
	if buf.Len() != 0 {
		t.Fatalf("error level logged success: %q", buf.String())
	}
	rl.end("infer", 500, errors.New("boom"))
	if out := buf.String(); !strings.Contains(out, `"error":"boom"`) || !strings.Contains(out, `"model":"m"`) {
		t.Fatalf("missing failure log: %q", out)
	}

	buf.Reset()
	r = httptest.NewRequest("POST", "/v2/models/m/infer?log=debug", nil)
	rl = newRequestLog(r, "m")
	rl.debug("infer request", func(e *zerolog.Event) *zerolog.Event { return e.Int("batch_size", 2) })
	if out := buf.String(); !strings.Contains(out, `"batch_size":2`) {
		t.Fatalf("missing debug log: %q", out)
	}
}
