package exchange

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"marketmaker/internal/errs"
	"marketmaker/pkg/types"
)

// staleAfter is how long a bearer token is trusted before RequireAuthenticated
// forces a re-login, per spec: 5 hours.
const staleAfter = 5 * time.Hour

// loginResponse is the body of POST /v1/log_in.
type loginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// Session holds exchange credentials and the current bearer token. It is
// owned by the Client (composition, not inheritance: the client *has a*
// session) and mutated only by RequireAuthenticated.
type Session struct {
	mu          sync.Mutex
	creds       types.Credentials
	env         types.Environment
	token       string
	userID      string
	lastLoginAt time.Time
}

// NewSession creates an empty session for the given environment and
// credentials. Nothing is authenticated until RequireAuthenticated runs.
func NewSession(env types.Environment, creds types.Credentials) *Session {
	return &Session{env: env, creds: creds}
}

// RequireAuthenticated ensures a valid bearer is present, logging in again
// if the session has never logged in or the token is stale by more than
// five hours. Callers do not retry within the same tick on failure.
func (s *Session) RequireAuthenticated(ctx context.Context, httpClient *resty.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastLoginAt.IsZero() && time.Since(s.lastLoginAt) <= staleAfter {
		return nil
	}

	var result loginResponse
	resp, err := httpClient.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"email":    s.creds.Email,
			"password": s.creds.Password,
		}).
		SetResult(&result).
		Post("/v1/log_in")
	if err != nil {
		return &errs.TransportError{Status: 0, Reason: fmt.Sprintf("log_in: %v", err)}
	}
	if resp.StatusCode() != http.StatusOK {
		return &errs.TransportError{Status: resp.StatusCode(), Reason: resp.String()}
	}

	s.token = result.Token
	s.userID = result.UserID
	s.lastLoginAt = time.Now()
	return nil
}

// AuthHeader returns the "<user_id> <token>" value required on every
// authenticated request (spec §4.1).
func (s *Session) AuthHeader() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID + " " + s.token
}

// UserID returns the user_id assigned at the last successful login.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Invalidate forces the next RequireAuthenticated call to log in again,
// regardless of staleAfter, for when the exchange reports the bearer as
// expired before the local clock would have guessed it.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLoginAt = time.Time{}
}
