package server

// Tool names registered with the MCP server.
const (
	ToolSave      = "memory_save"
	ToolRetrieve  = "memory_retrieve"
	ToolArchive   = "memory_archive"
	ToolRestore   = "memory_restore"
	ToolDelete    = "memory_delete"
	ToolRebuild   = "memory_rebuild"
	ToolReconcile = "memory_reconcile"
	ToolStatus    = "memory_status"
	ToolCancel    = "memory_cancel"
)

// SaveRequest defines the input schema for memory_save.
type SaveRequest struct {
	// Content is the memory text to store.
	Content string `json:"content"`
}

// SaveResponse defines the output schema for memory_save.
type SaveResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// RetrieveRequest defines the input schema for memory_retrieve.
type RetrieveRequest struct {
	// Query is the text to search memories for.
	Query string `json:"query"`
	// TopK caps the number of results. Unset or 0 applies the server's
	// configured default; a negative value returns every non-archived
	// memory and ignores the query.
	TopK int `json:"top_k,omitempty"`
	// Mode is "vector" (default) or "keyword".
	Mode string `json:"mode,omitempty"`
}

// RetrieveResponse defines the output schema for memory_retrieve.
type RetrieveResponse struct {
	Status  string   `json:"status"`
	Results []string `json:"results"`
	Error   string   `json:"error,omitempty"`
}

// IDRequest addresses a single memory by id; shared by archive, restore
// and delete.
type IDRequest struct {
	ID string `json:"id"`
}

// AckResponse is the generic success/error envelope.
type AckResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// JobRequest carries no parameters; rebuild, reconcile, status and cancel
// operate on the singleton job.
type JobRequest struct{}

// JobResponse reports the outcome of a job trigger or a status read.
type JobResponse struct {
	Status string `json:"status"`
	// Busy is set when a trigger was rejected by the single-flight guard.
	Busy bool `json:"busy,omitempty"`
	// Job is the current job snapshot, absent when the engine is idle.
	Job   *JobSnapshot `json:"job,omitempty"`
	Error string       `json:"error,omitempty"`
}

// JobSnapshot mirrors the engine's job state for tool consumers.
type JobSnapshot struct {
	ID          string      `json:"id"`
	Kind        string      `json:"kind"`
	Phase       string      `json:"phase"`
	Total       int         `json:"total"`
	Processed   int         `json:"processed"`
	CurrentItem string      `json:"current_item,omitempty"`
	Err         string      `json:"error,omitempty"`
	Summary     *JobSummary `json:"summary,omitempty"`
}

// JobSummary reports completion totals for a finished job.
type JobSummary struct {
	Processed int `json:"processed"`
	Chunks    int `json:"chunks"`
}
