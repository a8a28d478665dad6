package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/classpoint/chat-client/internal/models"
)

// APIClient is the request/response channel: initial history loads and the
// fallback send path when the realtime channel is down.
type APIClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type messagesResponse struct {
	Messages []models.Message `json:"messages"`
}

type messageResponse struct {
	Message models.Message `json:"message"`
}

// FetchRoomMessages loads a room's history.
func (c *APIClient) FetchRoomMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	var out messagesResponse
	if err := c.do(ctx, http.MethodGet, c.roomURL(roomID), nil, &out); err != nil {
		return nil, err
	}
	for i := range out.Messages {
		out.Messages[i].Status = models.StatusConfirmed
	}
	return out.Messages, nil
}

// SendRoomMessage delivers a message over HTTP. The returned message is the
// server's authoritative confirmed record.
func (c *APIClient) SendRoomMessage(ctx context.Context, roomID, text string) (*models.Message, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	var out messageResponse
	if err := c.do(ctx, http.MethodPost, c.roomURL(roomID), body, &out); err != nil {
		return nil, err
	}
	out.Message.Status = models.StatusConfirmed
	return &out.Message, nil
}

func (c *APIClient) roomURL(roomID string) string {
	return fmt.Sprintf("%s/api/chat/room/%s", c.baseURL, roomID)
}

func (c *APIClient) do(ctx context.Context, method, url string, body []byte, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, url, apiErr.Error, resp.Status)
		}
		return fmt.Errorf("%s %s: %s", method, url, resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, url, err)
	}
	return nil
}
