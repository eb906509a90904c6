package dto

// Envelope wraps every successful JSON response.
type Envelope[T any] struct {
	Success    bool      `json:"success" example:"true"`
	Message    string    `json:"message" example:"Stocks retrieved successfully"`
	Data       T         `json:"data"`
	Pagination *PageInfo `json:"pagination,omitempty"`
}

// PageInfo describes the page returned. Total is set for listings that count
// rows; HasMore for searches that do not.
type PageInfo struct {
	Page    int   `json:"page" example:"1"`
	Limit   int   `json:"limit" example:"20"`
	Total   *int  `json:"total,omitempty" example:"120"`
	HasMore *bool `json:"hasMore,omitempty"`
}

// OK builds a successful envelope.
func OK[T any](message string, data T) Envelope[T] {
	return Envelope[T]{Success: true, Message: message, Data: data}
}

// WithPage attaches pagination metadata.
func (e Envelope[T]) WithPage(p PageInfo) Envelope[T] {
	e.Pagination = &p
	return e
}
