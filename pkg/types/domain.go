package types

// Model kinds as they appear on the wire and in the catalog.
const (
	ModelKindText  = "text"
	ModelKindImage = "image"
)

// Model represents one entry of the local model catalog.
type Model struct {
	// Stable identifier for the model.
	// example: llama3-8b-q4
	ID string `json:"id" example:"llama3-8b-q4"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/llama3-8b.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/llama3-8b.Q4_K_M.gguf"`
	// File size in bytes.
	// example: 4920000000
	SizeBytes int64 `json:"size_bytes" example:"4920000000"`
	// Model kind: "text" or "image".
	// example: text
	Kind string `json:"kind" example:"text"`
	// Transformer layer count when known, 0 otherwise.
	// example: 32
	Layers int `json:"layers,omitempty" example:"32"`
	// True when the model is known to support reasoning output.
	// example: false
	Reasoning bool `json:"reasoning,omitempty"`
}
