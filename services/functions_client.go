package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"roundabout/models"
)

// FunctionsClient invokes the hosted serverless functions by name:
// POST {base}/{name} with a JSON body and the caller's bearer token.
type FunctionsClient struct {
	client *resty.Client
	apiKey string
	logger *zap.Logger
}

func NewFunctionsClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *FunctionsClient {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		c.SetHeader("apikey", apiKey)
	}
	return &FunctionsClient{client: c, apiKey: apiKey, logger: logger.Named("functions")}
}

type functionError struct {
	Error string `json:"error"`
}

// invoke calls a function. Without a user token the service key authenticates.
func (c *FunctionsClient) invoke(ctx context.Context, token, name string, body, out any) error {
	if token == "" {
		token = c.apiKey
	}
	var fnErr functionError
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(body).
		SetResult(out).
		SetError(&fnErr).
		Post("/" + name)
	if err != nil {
		return fmt.Errorf("invoke %s: %w", name, err)
	}
	if resp.IsError() {
		msg := fnErr.Error
		if msg == "" {
			msg = resp.Status()
		}
		c.logger.Warn("[FUNCTIONS] call failed",
			zap.String("function", name),
			zap.Int("status", resp.StatusCode()),
			zap.String("error", msg))
		return fmt.Errorf("invoke %s: %d %s", name, resp.StatusCode(), msg)
	}
	return nil
}

// ConnectSocialAccount returns the OAuth authorization URL for platform.
func (c *FunctionsClient) ConnectSocialAccount(ctx context.Context, token string, platform models.Platform) (string, error) {
	var out struct {
		URL     string `json:"url"`
		AuthURL string `json:"authUrl"`
	}
	if err := c.invoke(ctx, token, "connect-social-account", map[string]string{"platform": string(platform)}, &out); err != nil {
		return "", err
	}
	url := out.URL
	if url == "" {
		url = out.AuthURL
	}
	if url == "" {
		return "", fmt.Errorf("connect-social-account returned no url")
	}
	return url, nil
}

type SubscriptionStatus struct {
	Subscribed      bool       `json:"subscribed"`
	Tier            string     `json:"subscription_tier,omitempty"`
	SubscriptionEnd *time.Time `json:"subscription_end,omitempty"`
}

func (c *FunctionsClient) CheckSubscription(ctx context.Context, token string) (*SubscriptionStatus, error) {
	var out SubscriptionStatus
	if err := c.invoke(ctx, token, "check-subscription", map[string]string{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type checkoutRequest struct {
	PriceID string `json:"priceId"`
	Plan    string `json:"plan,omitempty"`
}

type redirect struct {
	URL string `json:"url"`
}

// CreateSubscription returns the checkout URL for a price.
func (c *FunctionsClient) CreateSubscription(ctx context.Context, token, priceID, plan string) (string, error) {
	var out redirect
	if err := c.invoke(ctx, token, "create-subscription", checkoutRequest{PriceID: priceID, Plan: plan}, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// CustomerPortal returns the billing portal URL.
func (c *FunctionsClient) CustomerPortal(ctx context.Context, token string) (string, error) {
	var out redirect
	if err := c.invoke(ctx, token, "customer-portal", map[string]string{}, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// PlatformProfile is the public profile data a sync refreshes.
type PlatformProfile struct {
	ExternalID     string `json:"external_id"`
	Username       string `json:"username"`
	FollowerCount  int64  `json:"follower_count"`
	FollowingCount int64  `json:"following_count"`
	Verified       bool   `json:"verified"`
}

// FetchSocialProfile looks up a linked account with the service key.
func (c *FunctionsClient) FetchSocialProfile(ctx context.Context, platform models.Platform, externalID, username string) (*PlatformProfile, error) {
	var out PlatformProfile
	body := map[string]string{
		"platform":    string(platform),
		"external_id": externalID,
		"username":    username,
	}
	if err := c.invoke(ctx, "", "sync-social-account", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
