package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

type authStatusResponse struct {
	Authenticated bool `json:"authenticated"`
}

// Login authenticates against the backend and stores the session token on the
// client for subsequent requests.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp loginResponse
	req := loginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, req, &resp); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if resp.AccessToken == "" {
		return "", errors.New("invalid login response")
	}
	c.SetToken(resp.AccessToken)
	return resp.AccessToken, nil
}

// AuthStatus reports whether the current session is still valid.
func (c *Client) AuthStatus(ctx context.Context) (bool, error) {
	var resp authStatusResponse
	if err := c.do(ctx, http.MethodGet, "/auth/status", nil, nil, &resp); err != nil {
		return false, fmt.Errorf("auth status: %w", err)
	}
	return resp.Authenticated, nil
}

// TokenExpired decodes the token's exp claim without verifying the signature,
// so a stale persisted session can be dropped without a round trip. Tokens
// that do not parse as JWTs are treated as expired.
func TokenExpired(token string) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
