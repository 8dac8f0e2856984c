package http

// HealthResponse is the response body for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Mode    string `json:"mode"`
}

// UploadResponse is the response body for POST /api/v1/documents/upload.
type UploadResponse struct {
	Message        string `json:"message"`
	FilesProcessed int    `json:"files_processed"`
	ChunksCreated  int    `json:"chunks_created"`
	ChunksStored   int    `json:"chunks_stored"`
}

// StatsResponse is the response body for GET /api/v1/documents/stats.
type StatsResponse struct {
	Collection  string `json:"collection"`
	TotalChunks int    `json:"total_chunks"`
	StoragePath string `json:"storage_path"`
}

// QueryRequest is the request body for POST /api/v1/query.
type QueryRequest struct {
	Question string `json:"question"`
	TopK     *int   `json:"top_k,omitempty"`
}

// SourceResponse is one citation in a QueryResponse.
type SourceResponse struct {
	Document       string  `json:"document"`
	Page           *int    `json:"page"`
	ChunkText      string  `json:"chunk_text"`
	RelevanceScore float64 `json:"relevance_score"`
}

// QueryResponse is the response body for POST /api/v1/query.
type QueryResponse struct {
	Answer  string           `json:"answer"`
	Sources []SourceResponse `json:"sources"`
	Model   string           `json:"model"`
	Mode    string           `json:"mode"`
}

// ResetResponse is the response body for DELETE /api/v1/documents.
type ResetResponse struct {
	Message string `json:"message"`
}
