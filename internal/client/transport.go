package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/sync/singleflight"
	"quiz-room-service/internal/domain"
)

// ErrSessionEnded is returned once a refresh failed, for any reason, and the credential
// store has been cleared. Callers should send the user back to sign-in.
var ErrSessionEnded = errors.New("session ended")

// Refresher exchanges a refresh token for a new credential pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (domain.CredentialPair, error)
}

// exemptPaths issue credentials themselves and are never refreshed-and-retried.
var exemptPaths = []string{"/auth/login", "/auth/register", "/auth/refresh"}

// RefreshTransport attaches the stored access token to every request. When the server
// answers 401 it refreshes the pair once and replays the request once with the new token.
// Concurrent requests failing on the same pair share a single refresh call.
type RefreshTransport struct {
	Base      http.RoundTripper
	Store     *CredentialStore
	Refresher Refresher
	// OnSessionEnded runs once after the store was cleared because a refresh failed.
	OnSessionEnded func()

	group singleflight.Group
}

func (t *RefreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	pair, signedIn := t.Store.Get()
	first := withToken(req, pair.AccessToken)
	resp, err := t.base().RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || !signedIn || isExempt(req) {
		return resp, err
	}
	// a consumed body that cannot be rebuilt cannot be replayed
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	fresh, err := t.refresh(req.Context(), pair)
	if err != nil {
		return nil, err
	}
	retry := withToken(req, fresh.AccessToken)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	return t.base().RoundTrip(retry)
}

func (t *RefreshTransport) refresh(ctx context.Context, used domain.CredentialPair) (domain.CredentialPair, error) {
	current, ok := t.Store.Get()
	if !ok {
		return domain.CredentialPair{}, ErrSessionEnded
	}
	if current.AccessToken != used.AccessToken {
		// another request already rotated the pair
		return current, nil
	}
	v, err, _ := t.group.Do(current.RefreshToken, func() (interface{}, error) {
		// detached so one abandoned request cannot fail the refresh for the others
		fresh, err := t.Refresher.Refresh(context.WithoutCancel(ctx), current.RefreshToken)
		if err != nil {
			if latest, ok := t.endSession(current.RefreshToken); ok {
				return latest, nil
			}
			return nil, fmt.Errorf("%w: %v", ErrSessionEnded, err)
		}
		if !t.Store.Replace(current.RefreshToken, fresh) {
			// signed out or signed in again meanwhile; whatever is stored now wins
			if latest, ok := t.Store.Get(); ok {
				return latest, nil
			}
			return nil, ErrSessionEnded
		}
		return fresh, nil
	})
	if err != nil {
		return domain.CredentialPair{}, err
	}
	return v.(domain.CredentialPair), nil
}

// endSession clears the store if it still holds the failed refresh token and fires
// OnSessionEnded. A pair installed by a newer sign-in survives and is returned instead.
func (t *RefreshTransport) endSession(failed string) (domain.CredentialPair, bool) {
	if t.Store.ClearIf(failed) {
		if t.OnSessionEnded != nil {
			t.OnSessionEnded()
		}
		return domain.CredentialPair{}, false
	}
	return t.Store.Get()
}

func (t *RefreshTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func withToken(req *http.Request, token string) *http.Request {
	out := req.Clone(req.Context())
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return out
}

func isExempt(req *http.Request) bool {
	for _, p := range exemptPaths {
		if strings.HasSuffix(req.URL.Path, p) {
			return true
		}
	}
	return false
}
