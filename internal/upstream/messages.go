package upstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
)

// MessageClient forwards opaque payloads to the message endpoint.
type MessageClient struct {
	endpoint *url.URL
	http     *http.Client
}

func NewMessageClient(endpoint string, hc *http.Client) (*MessageClient, error) {
	u, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	return &MessageClient{endpoint: u, http: hc}, nil
}

// Forward POSTs payload byte-for-byte with the token as access_token and returns the
// raw upstream body. Transport failures and non-2xx statuses are *RelayError.
func (c *MessageClient) Forward(ctx context.Context, token string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, withQuery(c.endpoint, "access_token", token), bytes.NewReader(payload))
	if err != nil {
		return nil, &RelayError{Message: "build message request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, &RelayError{Message: "message endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return nil, &RelayError{Code: resp.StatusCode, Message: "message endpoint returned " + resp.Status}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMessageBytes+1))
	if err != nil {
		return nil, &RelayError{Message: "read message response", Err: err}
	}
	if len(body) > maxMessageBytes {
		return nil, &RelayError{Message: "message response exceeds 4 MiB"}
	}
	return body, nil
}
