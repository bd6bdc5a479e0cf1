package types

// ModelSummary is one entry of GET /models.
type ModelSummary struct {
	// Model name (directory name in the repository).
	// example: resnet50
	Name string `json:"name" example:"resnet50"`
	// Runtime platform used to load the model.
	// example: onnxruntime
	Platform string `json:"platform" example:"onnxruntime"`
	// Maximum batch size, 0 when batching is unsupported.
	// example: 8
	MaxBatchSize int `json:"max_batch_size" example:"8"`
	// Lifecycle state: unloaded, loading, ready, draining, error.
	// example: ready
	State string `json:"state" example:"ready"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of models found in the repository.
	Models []ModelSummary `json:"models"`
}

// TensorData carries one named tensor on the wire. Data holds the raw
// little-endian element bytes and is base64 encoded in JSON.
type TensorData struct {
	// example: INPUT0
	Name string `json:"name" example:"INPUT0"`
	// Element type in wire form.
	// example: FP32
	DataType string `json:"datatype" example:"FP32"`
	// Full shape including the batch dimension when the model batches.
	// example: [1,16]
	Shape []int64 `json:"shape" example:"1,16"`
	// Raw tensor contents.
	Data []byte `json:"data" swaggertype:"string" format:"base64"`
}

// InferRequest is the body of POST /v2/models/{model}/infer.
type InferRequest struct {
	// Optional client correlation id; generated when empty.
	// example: 6f1d3c1e-1b1e-4c55-9a57-3c6f3f6d2a10
	ID string `json:"id,omitempty" example:"6f1d3c1e-1b1e-4c55-9a57-3c6f3f6d2a10"`
	// Number of batch entries carried by this request. Defaults to 1.
	// example: 1
	BatchSize int `json:"batch_size,omitempty" example:"1"`
	// Input tensors.
	Inputs []TensorData `json:"inputs"`
}

// InferResponse is returned by POST /v2/models/{model}/infer.
type InferResponse struct {
	// example: 6f1d3c1e-1b1e-4c55-9a57-3c6f3f6d2a10
	ID string `json:"id" example:"6f1d3c1e-1b1e-4c55-9a57-3c6f3f6d2a10"`
	// example: resnet50
	Model string `json:"model" example:"resnet50"`
	// Output tensors, one per configured output.
	Outputs []TensorData `json:"outputs"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// InstanceStatus summarizes one execution context for /status.
type InstanceStatus struct {
	// Model served by this instance.
	// example: resnet50
	Model string `json:"model" example:"resnet50"`
	// Instance name.
	// example: resnet50_0_gpu0
	Name string `json:"name" example:"resnet50_0_gpu0"`
	// GPU index, -1 for CPU instances.
	// example: 0
	Device int `json:"device" example:"0"`
	// Effective maximum batch size, 0 when batching is unsupported.
	// example: 8
	MaxBatchSize int `json:"max_batch_size" example:"8"`
	// Execution state: idle or running.
	// example: idle
	State string `json:"state" example:"idle"`
	// Artifact file loaded by this instance.
	// example: model.onnx
	Artifact string `json:"artifact" example:"model.onnx"`
	// Groups executed by this instance.
	// example: 42
	Runs uint64 `json:"runs" example:"42"`
	// Groups that failed on this instance.
	// example: 0
	Failures uint64 `json:"failures" example:"0"`
}

// ModelStatus summarizes a model for /status.
type ModelStatus struct {
	// example: resnet50
	Name string `json:"name" example:"resnet50"`
	// example: ready
	State string `json:"state" example:"ready"`
	// Last load error, if any.
	Error string `json:"error,omitempty"`
	// Requests waiting in the model queue.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Maximum queued requests before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	Instances     []InstanceStatus `json:"instances"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Models []ModelStatus `json:"models"`
	// Overall state: ready when at least one model is ready.
	// example: ready
	State string `json:"state" example:"ready"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Total number of successful model loads.
	// example: 3
	LoadsTotal uint64 `json:"loads_total" example:"3"`
}
