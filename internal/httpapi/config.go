package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
)

const defaultMaxBodyBytes int64 = 8 << 20

// maxBodyBytes caps request bodies on JSON endpoints. Tensor payloads are
// base64 encoded, so the default is larger than for plain control requests.
var maxBodyBytes = defaultMaxBodyBytes

// SetMaxBodyBytes sets the maximum request body size; n <= 0 restores the default.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
		return
	}
	maxBodyBytes = n
}

// inferTimeout bounds a single inference request. Zero disables it.
var inferTimeout time.Duration

// SetInferTimeoutSeconds sets the infer timeout in seconds (0 disables).
func SetInferTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	inferTimeout = time.Duration(sec) * time.Second
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var corsOpts *cors.Options

// SetCORSOptions configures CORS behavior for the HTTP server. Empty method
// and header lists fall back to what the API needs.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	if !enabled {
		corsOpts = nil
		return
	}
	o := cors.Options{
		AllowedOrigins: append([]string(nil), origins...),
		AllowedMethods: append([]string(nil), methods...),
		AllowedHeaders: append([]string(nil), headers...),
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = []string{"*"}
	}
	if len(o.AllowedMethods) == 0 {
		o.AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	if len(o.AllowedHeaders) == 0 {
		o.AllowedHeaders = []string{"Content-Type", "X-Log-Level", "X-Request-Id"}
	}
	corsOpts = &o
}
