// Package authclient lets services without the signing secret delegate token
// checks to the auth service over HTTP.
package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ats-auth/internal/domain"
)

// Any transport failure, non-2xx answer or unexpected body collapses into one
// of these. Callers cannot tell "auth service down" from "token invalid".
var (
	ErrTokenValidationFailed = errors.New("token validation failed")
	ErrTokenGenerationFailed = errors.New("service token generation failed")
)

const (
	defaultTimeout = 5 * time.Second

	validatePath        = "/api/auth/validate"
	validateServicePath = "/api/auth/validate-service"
	generatePath        = "/api/auth/generate"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// ServiceToken authenticates this service when requesting new service tokens.
	ServiceToken string
	// ServiceName is the name this service asks for when renewing its token.
	ServiceName string
}

// Client calls the auth service's validation endpoints.
type Client struct {
	http         *fiber.Client
	baseURL      string
	timeout      time.Duration
	serviceName  string

	mu           sync.RWMutex
	serviceToken string
}

// ValidationResult is the body returned by the validate endpoints.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	User    *domain.Principal `json:"user,omitempty"`
	Service string            `json:"service,omitempty"`
}

type generateRequest struct {
	ServiceName string `json:"serviceName"`
	UserID      string `json:"userId"`
	Role        string `json:"role"`
}

type generateResponse struct {
	ServiceToken string `json:"serviceToken"`
}

// New builds a Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:         &fiber.Client{},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		timeout:      timeout,
		serviceName:  cfg.ServiceName,
		serviceToken: cfg.ServiceToken,
	}
}

// ValidateToken asks the auth service to verify a user access token.
func (c *Client) ValidateToken(ctx context.Context, token string) (*ValidationResult, error) {
	agent := c.http.Post(c.baseURL + validatePath)
	agent.Set(fiber.HeaderAuthorization, "Bearer "+token)

	var res ValidationResult
	if err := c.do(ctx, agent, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenValidationFailed, err)
	}
	if !res.Valid || res.User == nil {
		return nil, ErrTokenValidationFailed
	}
	res.User.Kind = domain.PrincipalUser
	return &res, nil
}

// ValidateServiceToken asks the auth service to verify a service token.
func (c *Client) ValidateServiceToken(ctx context.Context, serviceToken string) (*ValidationResult, error) {
	agent := c.http.Post(c.baseURL + validateServicePath)
	agent.JSON(fiber.Map{"token": serviceToken})

	var res ValidationResult
	if err := c.do(ctx, agent, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenValidationFailed, err)
	}
	if !res.Valid || res.Service == "" {
		return nil, ErrTokenValidationFailed
	}
	return &res, nil
}

// GenerateServiceToken requests a fresh service token, authenticating with
// the client's current service token.
func (c *Client) GenerateServiceToken(ctx context.Context, serviceName, userID, role string) (string, error) {
	agent := c.http.Post(c.baseURL + generatePath)
	if token := c.ServiceToken(); token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	agent.JSON(generateRequest{ServiceName: serviceName, UserID: userID, Role: role})

	var res generateResponse
	if err := c.do(ctx, agent, &res); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenGenerationFailed, err)
	}
	if res.ServiceToken == "" {
		return "", ErrTokenGenerationFailed
	}
	return res.ServiceToken, nil
}

// ServiceToken returns the token the client currently authenticates with.
func (c *Client) ServiceToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serviceToken
}

// RenewServiceToken requests a new token for the configured service name and
// uses it for later requests. The old token stays in place on failure.
func (c *Client) RenewServiceToken(ctx context.Context, userID, role string) (string, error) {
	if c.serviceName == "" {
		return "", fmt.Errorf("%w: service name not configured", ErrTokenGenerationFailed)
	}
	token, err := c.GenerateServiceToken(ctx, c.serviceName, userID, role)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.serviceToken = token
	c.mu.Unlock()
	return token, nil
}

// VerifyUser implements auth.Verifier.
func (c *Client) VerifyUser(ctx context.Context, token string) (*domain.Principal, error) {
	res, err := c.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return res.User, nil
}

// VerifyService implements auth.Verifier.
func (c *Client) VerifyService(ctx context.Context, token string) (*domain.Principal, error) {
	res, err := c.ValidateServiceToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &domain.Principal{Kind: domain.PrincipalService, Service: res.Service}, nil
}

// do runs one bounded round trip. There is no retry; once started the call
// runs until it answers or the timeout fires.
func (c *Client) do(ctx context.Context, agent *fiber.Agent, out any) error {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		fiber.ReleaseAgent(agent)
		return context.DeadlineExceeded
	}
	agent.Timeout(timeout)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if code < 200 || code > 299 {
		return fmt.Errorf("unexpected status %d", code)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
