package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"trading-signal-engine/internal/market"
)

// ClientConfig holds inference runtime client configuration
type ClientConfig struct {
	BaseURL string        `json:"base_url"`
	APIKey  string        `json:"api_key"`
	Timeout time.Duration `json:"timeout"`
}

// DefaultClientConfig returns default configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL: "http://localhost:9000",
		Timeout: 5 * time.Second,
	}
}

// HTTPEngine talks to the model runtime over its JSON API. One runtime
// hosts one independently-trained model per timeframe.
type HTTPEngine struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewHTTPEngine creates a new runtime client
func NewHTTPEngine(config *ClientConfig) *HTTPEngine {
	if config == nil {
		config = DefaultClientConfig()
	}
	return &HTTPEngine{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

type inferRequest struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Candles   []market.Candle `json:"candles"`
}

type inferResponse struct {
	Signal     string  `json:"signal"`
	Confidence float64 `json:"confidence"`
	ModelID    string  `json:"model_id"`
}

// Infer requests a prediction from the timeframe-specific model
func (e *HTTPEngine) Infer(ctx context.Context, symbol string, tf market.Timeframe, candles []market.Candle) (RawPrediction, error) {
	var resp inferResponse
	path := fmt.Sprintf("/v1/models/%s/predict", tf)
	if err := e.postJSON(ctx, path, inferRequest{Symbol: symbol, Timeframe: string(tf), Candles: candles}, &resp); err != nil {
		return RawPrediction{}, err
	}

	sig := Signal(resp.Signal)
	if !sig.Valid() {
		return RawPrediction{}, fmt.Errorf("runtime returned unknown signal %q", resp.Signal)
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		return RawPrediction{}, fmt.Errorf("runtime returned out-of-range confidence %f", resp.Confidence)
	}

	return RawPrediction{
		Signal:     sig,
		Confidence: resp.Confidence,
		ModelID:    resp.ModelID,
		Timestamp:  time.Now(),
	}, nil
}

type candlesResponse struct {
	Candles []market.Candle `json:"candles"`
}

// Candles fetches the candle window the runtime maintains for a timeframe
func (e *HTTPEngine) Candles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	var resp candlesResponse
	path := fmt.Sprintf("/v1/candles/%s/%s?limit=%d", symbol, tf, limit)
	if err := e.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Candles, nil
}

func (e *HTTPEngine) postJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		req.Header.Set("X-API-Key", e.config.APIKey)
	}

	return e.do(req, dest)
}

func (e *HTTPEngine) getJSON(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if e.config.APIKey != "" {
		req.Header.Set("X-API-Key", e.config.APIKey)
	}

	return e.do(req, dest)
}

func (e *HTTPEngine) do(req *http.Request, dest interface{}) error {
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("runtime request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("runtime returned status %d: %s", resp.StatusCode, string(data))
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
