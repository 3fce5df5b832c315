// Package generate calls the remote image-synthesis service. One
// submission is one synchronous POST; there is no streaming and no
// client-side retry.
package generate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Request identifies the uploaded image and the chosen catalog entry.
type Request struct {
	// ImageURL is the durable public reference to the uploaded photo.
	ImageURL string
	// PokemonName and PokemonID identify the catalog entry to composite in.
	PokemonName string
	PokemonID   int
}

// Result is a successful generation: the decoded composite image.
type Result struct {
	ImageBytes []byte
}

// generateRequest is the service's JSON request body.
type generateRequest struct {
	ImageURL    string `json:"image_url"`
	PokemonName string `json:"pokemon_name"`
	PokemonID   int    `json:"pokemon_id"`
}

// generateResponse is the service's JSON response body. Exactly one of
// Image or Error is populated.
type generateResponse struct {
	Image string `json:"image"`
	Error string `json:"error"`
}

// Client calls the generation service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the generation service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // generation can take tens of seconds
		},
	}
}

// Generate sends one generation request and decodes the returned image.
// Service-reported errors surface with the upstream message.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	startTime := time.Now()
	log.Info().
		Str("imageUrl", req.ImageURL).
		Str("pokemon", req.PokemonName).
		Int("pokemonId", req.PokemonID).
		Msg("Requesting image generation")

	payload, err := json.Marshal(generateRequest{
		ImageURL:    req.ImageURL,
		PokemonName: req.PokemonName,
		PokemonID:   req.PokemonID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/generate-image/", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generation request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result generateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("generation failed (status %d): %s", resp.StatusCode, truncate(string(body), 300))
		}
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if result.Error != "" {
		return nil, fmt.Errorf("generation failed: %s", result.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation failed (status %d): %s", resp.StatusCode, truncate(string(body), 300))
	}
	if result.Image == "" {
		return nil, fmt.Errorf("no image in response: %s", truncate(string(body), 300))
	}

	imageBytes, err := base64.StdEncoding.DecodeString(result.Image)
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}

	log.Info().
		Int("imageBytes", len(imageBytes)).
		Dur("elapsed", time.Since(startTime)).
		Msg("Generation complete")

	return &Result{ImageBytes: imageBytes}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
