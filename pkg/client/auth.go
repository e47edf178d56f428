package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/realitylog/realitylog/pkg/models"
)

// Register creates a viewer account and signs it in.
func (c *Client) Register(ctx context.Context, email, password, displayName string) (*Session, error) {
	req := RegisterRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	}

	var result Session
	if err := c.call(ctx, http.MethodPost, "/api/auth/register", req, &result); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	// Automatically set the auth token for subsequent requests
	c.SetAuthToken(result.Token)

	return &result, nil
}

// Login authenticates an existing user
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	req := LoginRequest{
		Email:    email,
		Password: password,
	}

	var result Session
	if err := c.call(ctx, http.MethodPost, "/api/auth/login", req, &result); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	c.SetAuthToken(result.Token)

	return &result, nil
}

// Logout ends the current session and its console.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.call(ctx, http.MethodPost, "/api/auth/logout", nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	c.SetAuthToken("")

	return nil
}

// Me retrieves the currently authenticated user
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var result models.User
	if err := c.call(ctx, http.MethodGet, "/api/auth/me", nil, &result); err != nil {
		return nil, fmt.Errorf("me: %w", err)
	}
	return &result, nil
}

// Refresh swaps the session token for a new one. The console carries over.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	var result Session
	if err := c.call(ctx, http.MethodPost, "/api/auth/refresh", nil, &result); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	// Update the auth token
	c.SetAuthToken(result.Token)

	return &result, nil
}
