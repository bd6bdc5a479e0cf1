package types

import (
	"fmt"
	"strings"
)

// DataType is the logical element type of a model input or output as it
// appears in a model configuration.
type DataType string

const (
	TypeInvalid DataType = "TYPE_INVALID"
	TypeBool    DataType = "TYPE_BOOL"
	TypeUint8   DataType = "TYPE_UINT8"
	TypeUint16  DataType = "TYPE_UINT16"
	TypeUint32  DataType = "TYPE_UINT32"
	TypeUint64  DataType = "TYPE_UINT64"
	TypeInt8    DataType = "TYPE_INT8"
	TypeInt16   DataType = "TYPE_INT16"
	TypeInt32   DataType = "TYPE_INT32"
	TypeInt64   DataType = "TYPE_INT64"
	TypeFP16    DataType = "TYPE_FP16"
	TypeBF16    DataType = "TYPE_BF16"
	TypeFP32    DataType = "TYPE_FP32"
	TypeFP64    DataType = "TYPE_FP64"
	TypeString  DataType = "TYPE_STRING"
)

var dataTypeSizes = map[DataType]int{
	TypeBool:   1,
	TypeUint8:  1,
	TypeUint16: 2,
	TypeUint32: 4,
	TypeUint64: 8,
	TypeInt8:   1,
	TypeInt16:  2,
	TypeInt32:  4,
	TypeInt64:  8,
	TypeFP16:   2,
	TypeBF16:   2,
	TypeFP32:   4,
	TypeFP64:   8,
}

// ByteSize returns the width of one element in bytes. Variable-size types
// (TYPE_STRING) and unknown types report 0.
func (d DataType) ByteSize() int { return dataTypeSizes[d] }

// WireName is the short form used on the HTTP API (e.g. "FP32").
func (d DataType) WireName() string { return strings.TrimPrefix(string(d), "TYPE_") }

// ParseDataType accepts both the config form ("TYPE_FP32") and the wire form
// ("FP32"), case-insensitively.
func ParseDataType(s string) (DataType, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	if u == "" {
		return TypeInvalid, fmt.Errorf("empty datatype")
	}
	if !strings.HasPrefix(u, "TYPE_") {
		u = "TYPE_" + u
	}
	d := DataType(u)
	if d == TypeString {
		return d, nil
	}
	if _, ok := dataTypeSizes[d]; !ok {
		return TypeInvalid, fmt.Errorf("unknown datatype %q", s)
	}
	return d, nil
}

// InstanceKind selects where replicas of an instance group run.
type InstanceKind string

const (
	KindCPU InstanceKind = "KIND_CPU"
	KindGPU InstanceKind = "KIND_GPU"
)

// ModelInput declares one named input tensor. Dims exclude the batch
// dimension when the model supports batching.
type ModelInput struct {
	Name     string   `json:"name" yaml:"name" toml:"name"`
	DataType DataType `json:"data_type" yaml:"data_type" toml:"data_type"`
	Dims     []int64  `json:"dims" yaml:"dims" toml:"dims"`
}

// ModelOutput declares one named output tensor.
type ModelOutput struct {
	Name     string   `json:"name" yaml:"name" toml:"name"`
	DataType DataType `json:"data_type" yaml:"data_type" toml:"data_type"`
	Dims     []int64  `json:"dims" yaml:"dims" toml:"dims"`
}

// InstanceGroup describes a set of replicas placed on CPU or on the listed GPUs.
type InstanceGroup struct {
	Name  string       `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Kind  InstanceKind `json:"kind" yaml:"kind" toml:"kind"`
	Count int          `json:"count" yaml:"count" toml:"count"`
	GPUs  []int        `json:"gpus,omitempty" yaml:"gpus,omitempty" toml:"gpus,omitempty"`
}

// ModelConfig is the read-only description of a model served by one backend.
type ModelConfig struct {
	Name     string `json:"name" yaml:"name" toml:"name"`
	Platform string `json:"platform" yaml:"platform" toml:"platform"`
	// MaxBatchSize of 0 means the model does not support batching.
	MaxBatchSize         int               `json:"max_batch_size" yaml:"max_batch_size" toml:"max_batch_size"`
	Inputs               []ModelInput      `json:"input" yaml:"input" toml:"input"`
	Outputs              []ModelOutput     `json:"output" yaml:"output" toml:"output"`
	InstanceGroups       []InstanceGroup   `json:"instance_group,omitempty" yaml:"instance_group,omitempty" toml:"instance_group,omitempty"`
	DefaultModelFilename string            `json:"default_model_filename,omitempty" yaml:"default_model_filename,omitempty" toml:"default_model_filename,omitempty"`
	CCModelFilenames     map[string]string `json:"cc_model_filenames,omitempty" yaml:"cc_model_filenames,omitempty" toml:"cc_model_filenames,omitempty"`
	// Parameters are passed through to the runtime untouched.
	Parameters map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty" toml:"parameters,omitempty"`
}

// Input returns the declared input with the given name.
func (c ModelConfig) Input(name string) (ModelInput, bool) {
	for _, in := range c.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return ModelInput{}, false
}

// Output returns the declared output with the given name.
func (c ModelConfig) Output(name string) (ModelOutput, bool) {
	for _, out := range c.Outputs {
		if out.Name == name {
			return out, true
		}
	}
	return ModelOutput{}, false
}

// ModelEntry is a model found in the on-disk repository.
type ModelEntry struct {
	Config ModelConfig
	// Dir is the absolute model directory.
	Dir string
	// Artifacts maps artifact filename to absolute path.
	Artifacts map[string]string
}
