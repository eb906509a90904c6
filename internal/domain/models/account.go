package models

import "time"

// Identity is the owner of an API key.
type Identity struct {
	UserID string
	Role   string
}

// Subscription is a user's active subscription joined with its plan limits.
type Subscription struct {
	ID                   string
	PlanName             string
	StartDate            time.Time
	EndDate              time.Time
	APICallsPerDay       int
	APIRequestsPerMinute int
	DataRangeYears       int
}

// Entitlement holds the plan limits the gateway and range resolver enforce.
type Entitlement struct {
	PlanName             string
	APICallsPerDay       int
	APIRequestsPerMinute int
	DataRangeYears       int
}

// Entitlement projects the plan limits out of the subscription.
func (s Subscription) Entitlement() Entitlement {
	return Entitlement{
		PlanName:             s.PlanName,
		APICallsPerDay:       s.APICallsPerDay,
		APIRequestsPerMinute: s.APIRequestsPerMinute,
		DataRangeYears:       s.DataRangeYears,
	}
}

// RequestLog is one audited request, persisted to "request_logs".
type RequestLog struct {
	UserID     string
	Endpoint   string
	Method     string
	StatusCode int
	Timestamp  time.Time
}
