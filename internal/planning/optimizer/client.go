// Package optimizer calls the external assignment optimizer and turns its
// untrusted answer into typed proposals.
package optimizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "audit-planner/internal/common/errors"
	commonhttp "audit-planner/internal/common/http"
	"audit-planner/internal/common/logger"
	"audit-planner/internal/common/metrics"
	"audit-planner/internal/common/validation"
)

const (
	ServiceName = "optimizer"

	DefaultPath = "/api/process-assignments"
	HealthPath  = "/api/health"
)

type Config struct {
	BaseURL string
	Path    string
	APIKey  string
	Timeout time.Duration
}

// Client is the HTTP implementation of Assigner.
type Client struct {
	http   *commonhttp.Client
	path   string
	logger logger.Logger
}

func NewClient(cfg Config, log logger.Logger, opts ...commonhttp.Option) *Client {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	opts = append([]commonhttp.Option{commonhttp.WithHeader("X-API-Key", cfg.APIKey)}, opts...)
	return &Client{
		http:   commonhttp.NewClient(strings.TrimRight(cfg.BaseURL, "/"), cfg.Timeout, opts...),
		path:   path,
		logger: logger.Component(log, "optimizer"),
	}
}

// Assign sends one request. Every failure is an ExternalServiceError; there
// is no retry.
func (c *Client) Assign(ctx context.Context, req *Request) (*Result, error) {
	purpose := req.Purpose
	if purpose == "" {
		purpose = PurposeBatch
	}
	start := time.Now()

	result, err := c.assign(ctx, req)

	metrics.OptimizerDuration.WithLabelValues(purpose).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.OptimizerCalls.WithLabelValues(purpose, status).Inc()

	fields := map[string]interface{}{
		"purpose":  purpose,
		"auditors": len(req.Auditors),
		"stores":   len(req.Stores),
		"duration": time.Since(start).String(),
	}
	if err != nil {
		fields["error"] = err
		c.logger.Warn("optimizer call failed", fields)
		return nil, err
	}
	fields["proposals"] = len(result.Proposals)
	fields["disruptions"] = result.Disruptions
	c.logger.Info("optimizer call completed", fields)
	return result, nil
}

func (c *Client) assign(ctx context.Context, req *Request) (*Result, error) {
	resp, err := c.http.PostJSON(ctx, c.path, req)
	if err != nil {
		return nil, apperrors.NewExternalServiceError(ServiceName, err)
	}
	if !resp.OK() {
		return nil, apperrors.NewExternalServiceError(ServiceName,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet(resp.Body)))
	}
	return parseResponse(resp.Body)
}

// parseResponse validates the envelope against its schema and decodes it.
func parseResponse(body []byte) (*Result, error) {
	check, err := validation.ValidateJSON(validation.SchemaOptimizerResponse, body)
	if err != nil {
		return nil, apperrors.NewExternalServiceError(ServiceName, fmt.Errorf("undecodable response: %w", err))
	}
	if !check.Valid {
		return nil, apperrors.NewExternalServiceError(ServiceName, fmt.Errorf("malformed response: %s", check.Summary()))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.NewExternalServiceError(ServiceName, fmt.Errorf("undecodable response: %w", err))
	}
	if strings.EqualFold(env.Status, "error") {
		return nil, apperrors.NewExternalServiceError(ServiceName, fmt.Errorf("optimizer error: %s", env.reason()))
	}

	result := &Result{Status: env.Status, Code: env.code(), Proposals: []Proposal{}}
	if env.Data != nil {
		result.Proposals = decodeProposals(env.Data.Stores)
		result.Disruptions = len(env.Data.Disruptions)
	}
	return result, nil
}

// Health probes the optimizer's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.Get(ctx, HealthPath)
	if err != nil {
		return apperrors.NewExternalServiceError(ServiceName, err)
	}
	if !resp.OK() {
		return apperrors.NewExternalServiceError(ServiceName, fmt.Errorf("health status %d", resp.StatusCode))
	}
	return nil
}

func snippet(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..." + strconv.Itoa(len(body)-max) + " more bytes"
	}
	return string(body)
}
