package types

// GenerateImageRequest is the payload accepted by POST /v1/images/generations.
type GenerateImageRequest struct {
	// Required prompt describing the image to generate.
	// example: a lighthouse at dusk, oil painting
	Prompt string `json:"prompt" example:"a lighthouse at dusk, oil painting"`
	// Optional negative prompt listing things to avoid.
	// example: blurry, low quality
	NegativePrompt string `json:"negative_prompt,omitempty" example:"blurry, low quality"`
	// Output width in pixels. Defaults to 512.
	// example: 512
	Width int `json:"width,omitempty" example:"512"`
	// Output height in pixels. Defaults to 512.
	// example: 512
	Height int `json:"height,omitempty" example:"512"`
	// Number of diffusion steps. Defaults to 20.
	// example: 20
	Steps int `json:"steps,omitempty" example:"20"`
	// Classifier-free guidance scale.
	// example: 7.0
	CfgScale float64 `json:"cfg_scale,omitempty" example:"7.0"`
	// Sampler name understood by the image executable.
	// example: euler_a
	Sampler string `json:"sampler,omitempty" example:"euler_a"`
	// Random seed; -1 or omitted picks a random seed.
	// example: 42
	Seed int64 `json:"seed,omitempty" example:"42"`
}

// GenerateImageResponse carries one generated image.
type GenerateImageResponse struct {
	// Base64-encoded image bytes.
	Image string `json:"image"`
	// Image encoding of the payload.
	// example: png
	Format string `json:"format" example:"png"`
	// Width of the generated image in pixels.
	// example: 512
	Width int `json:"width" example:"512"`
	// Height of the generated image in pixels.
	// example: 512
	Height int `json:"height" example:"512"`
	// Seed actually used for generation.
	// example: 42
	Seed int64 `json:"seed" example:"42"`
	// Wall-clock generation time in milliseconds.
	// example: 9500
	ElapsedMS int64 `json:"elapsed_ms" example:"9500"`
	// Identifier of the job that produced this image.
	// example: 6f1c9e0a-4a3e-4b61-b9a0-0f5f0a2f9b77
	JobID string `json:"job_id" example:"6f1c9e0a-4a3e-4b61-b9a0-0f5f0a2f9b77"`
}

// ServerConfigRequest configures a managed server for POST /v1/servers/{name}/start.
// Zero-valued knobs are auto-tuned from the hardware snapshot before launch.
type ServerConfigRequest struct {
	// Catalog identifier of the model to serve.
	// example: llama3-8b-q4
	Model string `json:"model" example:"llama3-8b-q4"`
	// TCP port the server listens on. 0 means the configured default.
	// example: 8080
	Port int `json:"port,omitempty" example:"8080"`
	// Worker thread count. 0 means auto.
	// example: 8
	Threads int `json:"threads,omitempty" example:"8"`
	// Context window size in tokens. 0 means auto. Text server only.
	// example: 4096
	CtxSize int `json:"ctx_size,omitempty" example:"4096"`
	// Number of model layers offloaded to the accelerator. Omitted means
	// auto; an explicit 0 forces CPU-only. Text server only.
	// example: 28
	GPULayers *int `json:"gpu_layers,omitempty" example:"28"`
	// Parallel request slots. 0 means auto. Text server only.
	// example: 2
	Parallel int `json:"parallel,omitempty" example:"2"`
	// Enable flash attention when the binary supports it. Text server only.
	// example: true
	FlashAttn bool `json:"flash_attn,omitempty" example:"true"`
}

// ServerStatus summarizes one managed server for /v1/status.
type ServerStatus struct {
	// Server name: "text" or "image".
	// example: text
	Name string `json:"name" example:"text"`
	// Lifecycle state: stopped, starting, running, stopping or crashed.
	// example: running
	State string `json:"state" example:"running"`
	// Catalog ID of the model currently configured, if any.
	// example: llama3-8b-q4
	Model string `json:"model,omitempty" example:"llama3-8b-q4"`
	// Listening port while running.
	// example: 8080
	Port int `json:"port,omitempty" example:"8080"`
	// Process ID of the spawned executable while running.
	// example: 12345
	PID int `json:"pid,omitempty" example:"12345"`
	// Result of the most recent health probe.
	// example: true
	Healthy bool `json:"healthy"`
	// Unix seconds when the server entered the running state.
	// example: 1700000000
	StartedAtUnix int64 `json:"started_at_unix,omitempty" example:"1700000000"`
}

// ArbiterStatus reports resource arbitration state for /v1/status.
type ArbiterStatus struct {
	// True while an arbitrated operation is in flight.
	Busy bool `json:"busy"`
	// Total offloads performed since start.
	// example: 3
	OffloadsTotal uint64 `json:"offloads_total" example:"3"`
	// Model of a suspended text server awaiting restart, if any.
	// example: llama3-8b-q4
	SuspendedModel string `json:"suspended_model,omitempty" example:"llama3-8b-q4"`
	// Unix seconds when the text server was suspended, if it is.
	SuspendedAtUnix int64 `json:"suspended_at_unix,omitempty"`
}

// GPUStatus describes the detected accelerator for /v1/status.
type GPUStatus struct {
	// Accelerator kind: cuda, rocm, metal or none.
	// example: cuda
	Kind string `json:"kind" example:"cuda"`
	// Device name as reported by the driver.
	// example: NVIDIA GeForce RTX 3060
	Name string `json:"name,omitempty" example:"NVIDIA GeForce RTX 3060"`
	// Total accelerator memory in bytes.
	// example: 12884901888
	VRAMTotalBytes uint64 `json:"vram_total_bytes" example:"12884901888"`
	// Currently available accelerator memory in bytes.
	// example: 9663676416
	VRAMFreeBytes uint64 `json:"vram_free_bytes" example:"9663676416"`
}

// HardwareStatus is the hardware snapshot section of /v1/status.
type HardwareStatus struct {
	// Logical CPU core count.
	// example: 16
	CPUCores int `json:"cpu_cores" example:"16"`
	// Total system memory in bytes.
	// example: 33554432000
	RAMTotalBytes uint64 `json:"ram_total_bytes" example:"33554432000"`
	// Currently available system memory in bytes.
	// example: 21474836480
	RAMFreeBytes uint64 `json:"ram_free_bytes" example:"21474836480"`
	// Detected accelerator, omitted when none.
	GPU *GPUStatus `json:"gpu,omitempty"`
}

// StatusResponse is returned by GET /v1/status.
type StatusResponse struct {
	// Managed servers in a fixed order: text, image.
	Servers []ServerStatus `json:"servers"`
	// Resource arbitration state.
	Arbiter ArbiterStatus `json:"arbiter"`
	// Hardware snapshot taken for this response.
	Hardware HardwareStatus `json:"hardware"`
	// Daemon uptime in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// HealthResponse mirrors the managed servers' health endpoint contract.
type HealthResponse struct {
	// One of "ok", "loading", "error" or "unknown".
	// example: ok
	Status string `json:"status" example:"ok"`
}

// ModelsResponse wraps the list of models returned by GET /v1/models.
type ModelsResponse struct {
	// List of catalog models.
	Models []Model `json:"models"`
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
