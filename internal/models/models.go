package models

// AnalyzeRequest is the body of POST /api/analyze.
type AnalyzeRequest struct {
	URL string `json:"url"`
}

// QualityOption is one user-selectable download target ("best", "720p", "mp3", ...).
type QualityOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// AnalyzeResponse lists the options a video can be downloaded in.
type AnalyzeResponse struct {
	Title   string          `json:"title"`
	Formats []QualityOption `json:"formats"`
}

// DownloadQuery holds the query parameters of GET /api/download.
type DownloadQuery struct {
	URL    string `form:"url" binding:"required"`
	Format string `form:"format" binding:"required"`
}

// MessageResponse is returned by plumbing endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
}
