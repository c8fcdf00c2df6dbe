package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest is scoped to one facility.
type CallsSummaryRequest struct {
	FacilityID string    `json:"facility_id"`
	Range      TimeRange `json:"range"`
}

type CallsSummary struct {
	FacilityID string    `json:"facility_id"`
	Range      TimeRange `json:"range"`

	TotalCalls      int `json:"total_calls"`
	OutboundCalls   int `json:"outbound_calls"`
	InboundCalls    int `json:"inbound_calls"`
	CompletedCalls  int `json:"completed_calls"`
	NoAnswerCalls   int `json:"no_answer_calls"`
	FailedCalls     int `json:"failed_calls"`
	InProgressCalls int `json:"in_progress_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// DurableRecordings counts calls whose recording has been copied out of the provider.
	DurableRecordings int `json:"durable_recordings"`
	ProcessedCalls    int `json:"processed_calls"`
	// AnswerRate is completed over terminal outbound calls.
	AnswerRate float64 `json:"answer_rate"`
}
