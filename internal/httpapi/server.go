package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tensord/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.ModelSummary
	Status() types.StatusResponse
	Ready() bool
	LoadModel(ctx context.Context, name string) error
	Unload(name string) error
	Infer(ctx context.Context, name string, req types.InferRequest) (types.InferResponse, error)
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsOpts != nil {
		r.Use(cors.Handler(*corsOpts))
	}
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: svc.ListModels()})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Post("/models/{model}/load", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "model")
		rl := newRequestLog(r, name)
		rl.begin("load")
		ctx, cancel := joinContexts(r.Context(), serverBaseCtx)
		defer cancel()
		if err := svc.LoadModel(ctx, name); err != nil {
			rl.end("load", writeServiceError(w, err), err)
			return
		}
		writeSummary(w, svc, name)
		rl.end("load", http.StatusOK, nil)
	})

	r.Post("/models/{model}/unload", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "model")
		rl := newRequestLog(r, name)
		rl.begin("unload")
		if err := svc.Unload(name); err != nil {
			rl.end("unload", writeServiceError(w, err), err)
			return
		}
		writeSummary(w, svc, name)
		rl.end("unload", http.StatusOK, nil)
	})

	r.Post("/v2/models/{model}/infer", inferHandler(svc))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func inferHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "model")
		rl := newRequestLog(r, name)

		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.InferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			// Oversized bodies are reported like any other malformed body.
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if len(req.Inputs) == 0 {
			writeJSONError(w, http.StatusBadRequest, "inputs are required")
			return
		}
		rl.begin("infer")
		rl.debug("infer request", func(e *zerolog.Event) *zerolog.Event {
			arr := zerolog.Arr()
			for _, in := range req.Inputs {
				arr = arr.Dict(zerolog.Dict().Str("name", in.Name).Str("datatype", in.DataType).Ints64("shape", in.Shape).Int("bytes", len(in.Data)))
			}
			return e.Str("id", req.ID).Int("batch_size", req.BatchSize).Array("inputs", arr)
		})

		// Shutdown cancels in-flight work as well as a client disconnect.
		ctx, cancel := joinContexts(r.Context(), serverBaseCtx)
		defer cancel()
		if inferTimeout > 0 {
			var cancelTimeout context.CancelFunc
			ctx, cancelTimeout = context.WithTimeout(ctx, inferTimeout)
			defer cancelTimeout()
		}

		resp, err := svc.Infer(ctx, name, req)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				rl.end("infer", 0, err)
				return
			}
			rl.end("infer", writeServiceError(w, err), err)
			return
		}
		batch := req.BatchSize
		if batch == 0 {
			batch = 1
		}
		inferBatchSize.WithLabelValues(name).Observe(float64(batch))
		writeJSON(w, http.StatusOK, resp)
		rl.end("infer", http.StatusOK, nil)
	}
}

// writeSummary answers a lifecycle request with the model's current summary.
func writeSummary(w http.ResponseWriter, svc Service, name string) {
	for _, m := range svc.ListModels() {
		if m.Name == name {
			writeJSON(w, http.StatusOK, m)
			return
		}
	}
	writeJSON(w, http.StatusOK, types.ModelSummary{Name: name})
}
