// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

package embedding

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Encoder turns text into a unit-normalized fixed-dimension vector.
// Implementations must be deterministic for identical input.
type Encoder interface {
	// Encode embeds a single text.
	Encode(ctx context.Context, text string) ([]float32, error)

	// EncodeBatch embeds texts in order. Used by the dense builder.
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dim returns the embedding dimension.
	Dim() int
}

// HTTPEncoderConfig configures the HTTP encoder client.
type HTTPEncoderConfig struct {
	// URL is the base URL of the sentence-embedding inference service.
	URL string

	// Model is the model name passed through to the service.
	Model string

	// Dimension is the expected embedding dimension; responses with a
	// different dimension are rejected.
	Dimension int

	// Timeout bounds a single HTTP call.
	Timeout time.Duration

	// MaxRetries caps backoff retries on transient failures.
	MaxRetries int
}

// HTTPEncoder calls a sentence-embedding inference service over HTTP.
// Transient failures are retried with exponential backoff up to the
// configured cap.
type HTTPEncoder struct {
	cfg    HTTPEncoderConfig
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPEncoder creates an encoder client.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHTTPEncoder(cfg HTTPEncoderConfig, logger zerolog.Logger) (*HTTPEncoder, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("encoder URL is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("encoder dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	return &HTTPEncoder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("component", "encoder").Logger(),
	}, nil
}

// Dim returns the configured embedding dimension.
func (e *HTTPEncoder) Dim() int {
	return e.cfg.Dimension
}

// Encode embeds a single text.
func (e *HTTPEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedRequest is the wire request to the inference service.
type embedRequest struct {
	Model  string   `json:"model"`
	Inputs []string `json:"inputs"`
}

// embedResponse is the wire response from the inference service.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EncodeBatch embeds texts in order, normalizing each returned vector.
func (e *HTTPEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Model: e.cfg.Model, Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal encode request: %w", err)
	}

	var vectors [][]float32
	operation := func() error {
		var opErr error
		vectors, opErr = e.post(ctx, body)
		return opErr
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(e.cfg.MaxRetries)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("encode %d texts: %w", len(texts), err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("encoder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != e.cfg.Dimension {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), e.cfg.Dimension)
		}
		Normalize(v)
	}
	return vectors, nil
}

// post performs one HTTP round trip. 4xx responses other than 429 are
// permanent failures and are not retried.
func (e *HTTPEncoder) post(ctx context.Context, body []byte) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call encoder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		err := fmt.Errorf("encoder returned status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode encoder response: %w", err)
	}
	return parsed.Embeddings, nil
}
