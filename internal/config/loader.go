package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by defaults in main.
type Config struct {
	Addr            string   `json:"addr" yaml:"addr" toml:"addr"`
	ModelRepository string   `json:"model_repository" yaml:"model_repository" toml:"model_repository"`
	Models          []string `json:"models" yaml:"models" toml:"models"`
	LogLevel        string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat       string   `json:"log_format" yaml:"log_format" toml:"log_format"`

	BatchWindowMs       int   `json:"batch_window_ms" yaml:"batch_window_ms" toml:"batch_window_ms"`
	MaxQueueDepth       int   `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitMs           int   `json:"max_wait_ms" yaml:"max_wait_ms" toml:"max_wait_ms"`
	MaxBodyBytes        int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	InferTimeoutSeconds int   `json:"infer_timeout_seconds" yaml:"infer_timeout_seconds" toml:"infer_timeout_seconds"`

	DeviceCapabilities map[string]string `json:"device_capabilities" yaml:"device_capabilities" toml:"device_capabilities"`
	ProbeDevices       bool              `json:"probe_devices" yaml:"probe_devices" toml:"probe_devices"`
	NvidiaSMI          string            `json:"nvidia_smi" yaml:"nvidia_smi" toml:"nvidia_smi"`

	ONNXLibraryPath  string `json:"onnx_library_path" yaml:"onnx_library_path" toml:"onnx_library_path"`
	IntraOpThreads   int    `json:"intra_op_threads" yaml:"intra_op_threads" toml:"intra_op_threads"`
	LlamaContextSize int    `json:"llama_context_size" yaml:"llama_context_size" toml:"llama_context_size"`
	LlamaGPULayers   int    `json:"llama_gpu_layers" yaml:"llama_gpu_layers" toml:"llama_gpu_layers"`

	CORS CORSConfig `json:"cors" yaml:"cors" toml:"cors"`
}

// CORSConfig enables cross-origin requests when Enabled is set.
type CORSConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	if err := decodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeFile(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, v)
	case ".json":
		return json.Unmarshal(b, v)
	case ".toml":
		return toml.Unmarshal(b, v)
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
}

// Capabilities converts DeviceCapabilities keys to GPU indexes.
func (c Config) Capabilities() (map[int]string, error) {
	out := make(map[int]string, len(c.DeviceCapabilities))
	for k, v := range c.DeviceCapabilities {
		idx, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("device_capabilities: invalid gpu index %q", k)
		}
		out[idx] = v
	}
	return out, nil
}

// Env returns the value of TENSORD_<name> or def.
func Env(name, def string) string {
	if v := os.Getenv("TENSORD_" + name); v != "" {
		return v
	}
	return def
}

// EnvInt is Env for integers; unparsable values fall back to def.
func EnvInt(name string, def int) int {
	if v := os.Getenv("TENSORD_" + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
