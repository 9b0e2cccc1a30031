package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	pstrings "pubsubdesk/pkg/strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// maxUserInfoBytes caps the userinfo response body.
const maxUserInfoBytes = 1 << 20

// IdentityResolver resolves a display identity (an email address) for a
// freshly issued token.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, token *oauth2.Token) (string, error)
}

// UserInfoResolver calls the OpenID Connect userinfo endpoint with the token
// and falls back to the email claim of the ID token.
type UserInfoResolver struct {
	// Endpoint is the userinfo URL. When empty only the ID token is consulted.
	Endpoint string
}

// ResolveIdentity implements IdentityResolver. The ctx should carry the
// base HTTP client under oauth2.HTTPClient.
func (r *UserInfoResolver) ResolveIdentity(ctx context.Context, token *oauth2.Token) (string, error) {
	if token == nil || token.AccessToken == "" {
		return "", newAuthError(KindIdentityLookup, "resolve identity", errors.New("no access token"))
	}

	var lookupErr error
	if r.Endpoint != "" {
		email, err := r.fetchUserInfo(ctx, token)
		if err == nil && email != "" {
			return email, nil
		}
		lookupErr = err
	}

	if email, err := emailFromIDToken(token); err == nil {
		return email, nil
	} else if lookupErr == nil {
		lookupErr = err
	}

	return "", newAuthError(KindIdentityLookup, "resolve identity", lookupErr)
}

func (r *UserInfoResolver) fetchUserInfo(ctx context.Context, token *oauth2.Token) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.Endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	// A static source never refreshes behind the caller's back.
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read userinfo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, pstrings.SingleLine(string(body), pstrings.MaxProviderTextLen))
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", fmt.Errorf("failed to decode userinfo: %w", err)
	}
	if info.Email == "" {
		return "", errors.New("userinfo response has no email")
	}
	return info.Email, nil
}

// emailFromIDToken reads the email claim without verifying the signature.
// The ID token came straight from the token endpoint over TLS, and the value
// is only used for display.
func emailFromIDToken(token *oauth2.Token) (string, error) {
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return "", errors.New("no id_token in token response")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", fmt.Errorf("failed to parse id_token: %w", err)
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return "", errors.New("id_token has no email claim")
	}
	return email, nil
}
