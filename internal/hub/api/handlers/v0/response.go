package v0

// Response is a generic wrapper for Huma responses
// Usage: Response[ConfigBody] instead of ConfigOutput
type Response[T any] struct {
	Body T
}

// EmptyResponse represents a simple success response with a message
type EmptyResponse struct {
	Message string `json:"message" doc:"Success message" example:"Operation completed successfully"`
}
