// Package auth stores the session's bearer credential and peeks at its
// claims for display purposes. The token is opaque to this core; the server
// is the only verifier.
//
// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the informational subset of claims carried by the credential.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

type identityClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Credentials holds the current bearer token, if any. Absence is legal:
// anonymous calls are allowed to fail server-side with an auth error.
type Credentials struct {
	mu       sync.RWMutex
	token    string
	identity Identity
}

func NewCredentials() *Credentials {
	return &Credentials{}
}

// SetToken installs a bearer token and extracts its informational claims.
// The claims are parsed without verification; a token that is not a JWT is
// still stored and attached verbatim.
func (c *Credentials) SetToken(token string) {
	var id Identity
	claims := &identityClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		id = Identity{
			Subject: claims.Subject,
			Email:   claims.Email,
			Name:    claims.Name,
		}
	}

	c.mu.Lock()
	c.token = token
	c.identity = id
	c.mu.Unlock()
}

// Clear drops the credential, returning the session to anonymous.
func (c *Credentials) Clear() {
	c.mu.Lock()
	c.token = ""
	c.identity = Identity{}
	c.mu.Unlock()
}

// Token implements transport.TokenFunc. An empty token means anonymous.
func (c *Credentials) Token(_ context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, nil
}

// Identity returns the informational claims of the current token.
func (c *Credentials) Identity() Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// Approver returns the best human-readable identity for approval payloads.
func (c *Credentials) Approver() string {
	id := c.Identity()
	switch {
	case id.Name != "":
		return id.Name
	case id.Email != "":
		return id.Email
	case id.Subject != "":
		return id.Subject
	default:
		return "admin"
	}
}
