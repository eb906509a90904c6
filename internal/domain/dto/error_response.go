package dto

import "time"

// ErrorResponse is the JSON body of every failed request.
//
// Fields:
//   - Success: always false.
//   - Message: client-facing message, e.g. "Daily API call limit exceeded".
//   - Code: error kind, e.g. "RATE_LIMITED".
//   - ErrorDetails: optional detail safe to expose.
//   - Timestamp: when the error was produced.
type ErrorResponse struct {
	Success      bool      `json:"success" example:"false"`
	Message      string    `json:"message" example:"Invalid API key"`
	Code         string    `json:"code,omitempty" example:"UNAUTHENTICATED"`
	ErrorDetails string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewErrorResponse builds an ErrorResponse. err, when non-nil, fills
// ErrorDetails, so only pass errors whose text may reach clients.
func NewErrorResponse(message string, err error) ErrorResponse {
	resp := ErrorResponse{
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		resp.ErrorDetails = err.Error()
	}
	return resp
}

func (e ErrorResponse) Error() string {
	if e.ErrorDetails != "" {
		return e.Message + ": " + e.ErrorDetails
	}
	return e.Message
}
