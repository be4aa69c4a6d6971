package api

type ErrorResponse struct {
	Error     string `json:"error" example:"something went wrong"`
	Retryable bool   `json:"retryable,omitempty" example:"false"`
}

// ActionResponse is the body returned by operator actions on the mock gateway.
type ActionResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"payment approved"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}
