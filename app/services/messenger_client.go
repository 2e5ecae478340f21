// Package services provides external service integrations and technical concerns like messaging transport and tokens
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/pagepulse/pagepulse/config"
	"github.com/pagepulse/pagepulse/models"
)

// SendRequest is one message handed to the messaging platform
type SendRequest struct {
	PSID       string
	Content    string
	TrackingID string

	Method     models.SendMethod
	MessageTag *models.MessageTag

	// Artifact tokens backing the bypass method, when one is used.
	OTNToken          *string
	SubscriptionToken *string
}

// SendResult is the platform's acknowledgement of an accepted send
type SendResult struct {
	PlatformMessageID string
}

// SendError is a transport-level send failure. Retryable errors (rate limits,
// transient platform faults) are retried with backoff; permanent errors fail
// the recipient immediately.
type SendError struct {
	Code      int
	Message   string
	Retryable bool
}

// Error implements the error interface
func (e *SendError) Error() string {
	return fmt.Sprintf("messenger send failed (code %d): %s", e.Code, e.Message)
}

// MessengerClient sends messages through the messaging platform's API
type MessengerClient interface {
	SendMessage(ctx context.Context, accessToken string, req *SendRequest) (*SendResult, error)
}

// MessengerClientImpl implements MessengerClient against the platform's
// Graph-style send API
type MessengerClientImpl struct {
	config *config.MessengerConfig
	client *http.Client
}

// NewMessengerClient creates a new messenger client instance
func NewMessengerClient(cfg *config.MessengerConfig) MessengerClient {
	return &MessengerClientImpl{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type sendRecipient struct {
	ID                        string `json:"id,omitempty"`
	OneTimeNotifToken         string `json:"one_time_notif_token,omitempty"`
	NotificationMessagesToken string `json:"notification_messages_token,omitempty"`
}

type sendMessage struct {
	Text     string `json:"text"`
	Metadata string `json:"metadata,omitempty"`
}

type sendPayload struct {
	Recipient     sendRecipient `json:"recipient"`
	Message       sendMessage   `json:"message"`
	MessagingType string        `json:"messaging_type,omitempty"`
	Tag           string        `json:"tag,omitempty"`
}

type sendAPIResponse struct {
	MessageID string `json:"message_id"`
	Error     *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SendMessage sends one message through the platform's send API
func (c *MessengerClientImpl) SendMessage(ctx context.Context, accessToken string, req *SendRequest) (*SendResult, error) {
	payload := sendPayload{
		Message: sendMessage{
			Text:     req.Content,
			Metadata: req.TrackingID,
		},
	}

	switch req.Method {
	case models.SendMethodOTNToken:
		if req.OTNToken == nil {
			return nil, &SendError{Code: 0, Message: "missing one-time-notification token", Retryable: false}
		}
		payload.Recipient.OneTimeNotifToken = *req.OTNToken
	case models.SendMethodRecurringNotification:
		if req.SubscriptionToken == nil {
			return nil, &SendError{Code: 0, Message: "missing notification messages token", Retryable: false}
		}
		payload.Recipient.NotificationMessagesToken = *req.SubscriptionToken
	case models.SendMethodMessageTag:
		if req.MessageTag == nil {
			return nil, &SendError{Code: 0, Message: "missing message tag", Retryable: false}
		}
		payload.Recipient.ID = req.PSID
		payload.MessagingType = "MESSAGE_TAG"
		payload.Tag = string(*req.MessageTag)
	default:
		payload.Recipient.ID = req.PSID
		payload.MessagingType = "RESPONSE"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal send payload: %w", err)
	}

	url := fmt.Sprintf("https://%s/%s/me/messages?access_token=%s",
		c.config.GraphDomain, c.config.APIVersion, accessToken)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// Network faults are worth retrying.
		return nil, &SendError{Code: -1, Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	var apiResp sendAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &SendError{Code: -1, Message: fmt.Sprintf("failed to decode send response: %v", err), Retryable: true}
	}

	if apiResp.Error != nil {
		return nil, &SendError{
			Code:      apiResp.Error.Code,
			Message:   apiResp.Error.Message,
			Retryable: isRetryableCode(apiResp.Error.Code, resp.StatusCode),
		}
	}
	if resp.StatusCode >= 500 {
		return nil, &SendError{Code: resp.StatusCode, Message: "platform server error", Retryable: true}
	}
	if resp.StatusCode >= 400 {
		return nil, &SendError{Code: resp.StatusCode, Message: "platform rejected send", Retryable: false}
	}

	return &SendResult{PlatformMessageID: apiResp.MessageID}, nil
}

// isRetryableCode classifies platform error codes. Rate limits and transient
// faults retry; policy and recipient errors do not.
func isRetryableCode(code, httpStatus int) bool {
	switch code {
	case 1200, 613, 4, 17, 2:
		return true
	}
	return httpStatus >= 500
}

// MockMessengerClient implements MessengerClient for testing
type MockMessengerClient struct {
	mu    sync.Mutex
	Sends []MockSend

	// FailWith scripts an error per PSID. FailuresLeft scripts transient
	// failures: each send to a matching PSID fails until the count is spent.
	FailWith     map[string]*SendError
	FailuresLeft map[string]int

	nextMessageID int
}

// MockSend records one delivered mock message
type MockSend struct {
	PSID       string
	Content    string
	Method     models.SendMethod
	TrackingID string
}

// NewMockMessengerClient creates a new mock messenger client
func NewMockMessengerClient() *MockMessengerClient {
	return &MockMessengerClient{
		FailWith:     make(map[string]*SendError),
		FailuresLeft: make(map[string]int),
	}
}

// SendMessage records the send or returns the scripted failure
func (m *MockMessengerClient) SendMessage(ctx context.Context, accessToken string, req *SendRequest) (*SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if left, ok := m.FailuresLeft[req.PSID]; ok && left > 0 {
		m.FailuresLeft[req.PSID] = left - 1
		return nil, &SendError{Code: 1200, Message: "temporary send failure", Retryable: true}
	}
	if scripted, ok := m.FailWith[req.PSID]; ok {
		return nil, scripted
	}

	m.nextMessageID++
	m.Sends = append(m.Sends, MockSend{
		PSID:       req.PSID,
		Content:    req.Content,
		Method:     req.Method,
		TrackingID: req.TrackingID,
	})

	return &SendResult{PlatformMessageID: fmt.Sprintf("mid.%d", m.nextMessageID)}, nil
}

// SentCount returns how many sends the mock accepted
func (m *MockMessengerClient) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sends)
}
