// Package auth provides the credential cache used to authenticate calls to
// the tax-authority API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/etasync/internal/core/domain"
	"github.com/custodia-labs/etasync/internal/core/ports/driven"
	"github.com/custodia-labs/etasync/internal/logger"
)

const (
	// DefaultSkew is how long before expiry a credential stops being handed out.
	DefaultSkew = 5 * time.Minute

	// DefaultLifetime is assumed when the identity endpoint omits expires_in.
	DefaultLifetime = time.Hour

	// TokenPath is appended to the identity server URL.
	TokenPath = "/connect/token"

	refreshKey = "refresh"
)

// Ensure Cache implements the CredentialSource interface.
var _ driven.CredentialSource = (*Cache)(nil)

// TokenFunc performs one credential exchange against the identity endpoint.
type TokenFunc func(ctx context.Context) (*oauth2.Token, error)

// Cache holds the process-wide bearer credential and refreshes it before it
// expires. Concurrent callers that find the credential stale share a single
// in-flight refresh.
type Cache struct {
	fetch TokenFunc
	skew  time.Duration
	now   func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	current domain.Credential
}

// NewCache creates a cache that exchanges client credentials at
// {IdentityURL}/connect/token using HTTP Basic authentication.
func NewCache(settings domain.APISettings, httpClient *http.Client) *Cache {
	cfg := &clientcredentials.Config{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		TokenURL:     strings.TrimRight(settings.IdentityURL, "/") + TokenPath,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: settings.Timeout}
	}

	fetch := func(ctx context.Context) (*oauth2.Token, error) {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		return cfg.Token(ctx)
	}
	return NewCacheWithSource(fetch, time.Now)
}

// NewCacheWithSource creates a cache around an arbitrary token exchange.
// now may be nil, in which case time.Now is used.
func NewCacheWithSource(fetch TokenFunc, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		fetch: fetch,
		skew:  DefaultSkew,
		now:   now,
	}
}

// SetSkew overrides the refresh margin.
func (c *Cache) SetSkew(skew time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skew = skew
}

// GetValidCredential returns the cached credential if it is valid for at
// least the skew margin, otherwise refreshes it.
func (c *Cache) GetValidCredential(ctx context.Context) (domain.Credential, error) {
	if cred, ok := c.cached(); ok {
		return cred, nil
	}

	// The refresh outlives any single caller's cancellation so that waiters
	// sharing it are not failed by someone else's context.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		if cred, ok := c.cached(); ok {
			return cred, nil
		}
		return c.refresh(flightCtx)
	})

	select {
	case <-ctx.Done():
		return domain.Credential{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Credential{}, res.Err
		}
		return res.Val.(domain.Credential), nil
	}
}

// Invalidate discards the cached credential.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = domain.Credential{}
}

func (c *Cache) cached() (domain.Credential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current.ValidAt(c.now(), c.skew) {
		return c.current, true
	}
	return domain.Credential{}, false
}

func (c *Cache) refresh(ctx context.Context) (domain.Credential, error) {
	logger.Info("requesting new access token")

	tok, err := c.fetch(ctx)
	if err != nil {
		authErr := &domain.AuthError{Err: err}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			authErr.Status = retrieveErr.Response.StatusCode
		}
		logger.Error("token request failed", "status", authErr.Status, "err", err)
		return domain.Credential{}, authErr
	}
	if tok == nil || tok.AccessToken == "" {
		return domain.Credential{}, &domain.AuthError{Err: fmt.Errorf("identity endpoint returned no access token")}
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = c.now().Add(DefaultLifetime)
	}
	cred := domain.Credential{Token: tok.AccessToken, ExpiresAt: expiry}

	c.mu.Lock()
	c.current = cred
	c.mu.Unlock()

	logger.Info("access token issued", "expires_at", expiry.UTC().Format(time.RFC3339))
	return cred, nil
}
