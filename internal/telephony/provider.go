package telephony

import (
	"context"
	"errors"
)

var (
	ErrInvalidSignature = errors.New("telephony: invalid webhook signature")
	ErrInvalidPayload   = errors.New("telephony: invalid webhook payload")
	ErrCallRejected     = errors.New("telephony: provider rejected call")
)

// Provider places outbound calls through the voice-agent platform.
//
// Rules:
// - No provider HTTP calls outside this package.
// - Request and response types mirror the provider wire format; business state lives in internal/calls.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error
	CreatePhoneCall(ctx context.Context, req CreateCallRequest) (CreateCallResult, error)
}

// CreateCallRequest is the outbound placement request.
// DynamicVariables are string-valued; the agent prompt interpolates them verbatim.
type CreateCallRequest struct {
	AgentID          string            `json:"agentId"`
	ToNumber         string            `json:"toNumber"`
	FromNumber       string            `json:"fromNumber"`
	DynamicVariables map[string]string `json:"dynamicVariables"`
	Metadata         CallMetadata      `json:"metadata"`
}

// CallMetadata is echoed back on every callback for the call.
type CallMetadata struct {
	InternalCallID string `json:"internalCallId"`
	ResidentID     string `json:"residentId,omitempty"`
	CallNumber     int    `json:"callNumber,omitempty"`
	IsFirstCall    bool   `json:"isFirstCall,omitempty"`
}

type CreateCallResult struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`
}
