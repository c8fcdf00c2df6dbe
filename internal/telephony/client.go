package telephony

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type ClientConfig struct {
	BaseURL    string
	APIKey     string
	AgentID    string
	FromNumber string
	Timeout    time.Duration
}

// VoiceAgentClient is the HTTP adapter for the voice-agent platform.
type VoiceAgentClient struct {
	http       *resty.Client
	agentID    string
	fromNumber string
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func NewVoiceAgentClient(cfg ClientConfig) *VoiceAgentClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	// Placement is not retried here: a repeated POST dials the resident twice.
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &VoiceAgentClient{http: client, agentID: cfg.AgentID, fromNumber: cfg.FromNumber}
}

func (c *VoiceAgentClient) Name() string { return "voice-agent" }

func (c *VoiceAgentClient) HealthCheck(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/get-agent/" + c.agentID)
	if err != nil {
		return fmt.Errorf("telephony health check: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telephony health check: status %d", resp.StatusCode())
	}
	return nil
}

// CreatePhoneCall asks the provider to dial. Agent and caller id default to the configured values.
func (c *VoiceAgentClient) CreatePhoneCall(ctx context.Context, req CreateCallRequest) (CreateCallResult, error) {
	if req.AgentID == "" {
		req.AgentID = c.agentID
	}
	if req.FromNumber == "" {
		req.FromNumber = c.fromNumber
	}
	if req.ToNumber == "" {
		return CreateCallResult{}, fmt.Errorf("%w: missing destination number", ErrCallRejected)
	}
	if req.DynamicVariables == nil {
		req.DynamicVariables = map[string]string{}
	}

	var out CreateCallResult
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/create-phone-call")
	if err != nil {
		return CreateCallResult{}, fmt.Errorf("create phone call: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error
		}
		return CreateCallResult{}, fmt.Errorf("%w: status %d: %s", ErrCallRejected, resp.StatusCode(), msg)
	}
	if out.CallID == "" {
		return CreateCallResult{}, fmt.Errorf("%w: response without call_id", ErrCallRejected)
	}
	return out, nil
}
