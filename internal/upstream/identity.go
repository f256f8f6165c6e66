package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Token is a freshly issued bearer token and its lifetime as reported upstream.
type Token struct {
	Value string
	TTL   time.Duration
}

type tokenResponse struct {
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// IdentityClient exchanges a corp id / secret pair for an access token.
type IdentityClient struct {
	endpoint *url.URL
	http     *http.Client
}

func NewIdentityClient(endpoint string, hc *http.Client) (*IdentityClient, error) {
	u, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	return &IdentityClient{endpoint: u, http: hc}, nil
}

// FetchToken performs one GET against the identity endpoint. Every failure is an *AuthError.
func (c *IdentityClient) FetchToken(ctx context.Context, clientID, clientSecret string) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, withQuery(c.endpoint, "corpid", clientID, "corpsecret", clientSecret), nil)
	if err != nil {
		return Token{}, &AuthError{Message: "build identity request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		// *url.Error embeds the full URL, which carries the secret.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return Token{}, &AuthError{Message: "identity endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return Token{}, &AuthError{Code: resp.StatusCode, Message: "identity endpoint returned " + resp.Status}
	}

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxIdentityBytes)).Decode(&tr); err != nil {
		return Token{}, &AuthError{Message: "decode identity response", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if tr.ErrCode != 0 {
		msg := tr.ErrMsg
		if msg == "" {
			msg = fmt.Sprintf("errcode %d", tr.ErrCode)
		}
		return Token{}, &AuthError{Code: tr.ErrCode, Message: msg}
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return Token{}, &AuthError{Message: "decode identity response", Err: fmt.Errorf("%w: missing access_token or expires_in", ErrMalformedResponse)}
	}
	return Token{Value: tr.AccessToken, TTL: time.Duration(tr.ExpiresIn) * time.Second}, nil
}
