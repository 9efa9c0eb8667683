// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package embedding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient(&config.EmbeddingConfig{
		BaseURL: server.URL,
		APIKey:  "sk-test",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.EmbeddingConfig
		wantErr error
		wantAny bool
	}{
		{
			name:    "hosted openai without key",
			cfg:     config.EmbeddingConfig{BaseURL: "https://api.openai.com", Model: "m"},
			wantErr: ErrMissingAPIKey,
		},
		{
			name: "self-hosted without key",
			cfg:  config.EmbeddingConfig{BaseURL: "http://ollama:11434/v1/", Model: "m"},
		},
		{
			name:    "bad url",
			cfg:     config.EmbeddingConfig{BaseURL: "not a url", Model: "m", APIKey: "k"},
			wantAny: true,
		},
		{
			name:    "missing model",
			cfg:     config.EmbeddingConfig{BaseURL: "http://localhost", APIKey: "k"},
			wantAny: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(&tt.cfg)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewClient() error = %v, want %v", err, tt.wantErr)
				}
			case tt.wantAny:
				if err == nil {
					t.Error("NewClient() expected error")
				}
			default:
				if err != nil {
					t.Fatalf("NewClient() error = %v", err)
				}
				if c.baseURL != "http://ollama:11434" {
					t.Errorf("baseURL = %q, want /v1 suffix trimmed", c.baseURL)
				}
			}
		})
	}
}

func TestClient_Embed_OrdersByIndex(t *testing.T) {
	var gotReq embeddingsRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %s, want /v1/embeddings", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		// Reversed order; the client must place by index.
		_, _ = w.Write([]byte(`{"data":[
			{"index":1,"embedding":[0,1]},
			{"index":0,"embedding":[1,0]}
		],"model":"test-model"}`))
	})

	vecs, err := c.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if gotReq.Model != "test-model" || len(gotReq.Input) != 2 {
		t.Errorf("request = %+v", gotReq)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("Embed() = %v, want [[1 0] [0 1]]", vecs)
	}
}

func TestClient_Embed_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		retryAfter string
		check      func(t *testing.T, err error)
	}{
		{
			name:   "quota exhausted",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrQuotaExhausted) {
					t.Errorf("error = %v, want ErrQuotaExhausted", err)
				}
				if errors.Is(err, ErrRateLimited) {
					t.Error("quota error must not match ErrRateLimited")
				}
			},
		},
		{
			name:       "rate limited with retry-after",
			status:     http.StatusTooManyRequests,
			body:       `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`,
			retryAfter: "7",
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrRateLimited) {
					t.Fatalf("error = %v, want ErrRateLimited", err)
				}
				var rle *RateLimitError
				if !errors.As(err, &rle) {
					t.Fatalf("error %T is not *RateLimitError", err)
				}
				if rle.RetryAfter != 7*time.Second {
					t.Errorf("RetryAfter = %v, want 7s", rle.RetryAfter)
				}
			},
		},
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"Incorrect API key provided"}}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrUnauthorized) {
					t.Errorf("error = %v, want ErrUnauthorized", err)
				}
			},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			body:   "upstream down",
			check: func(t *testing.T, err error) {
				var he *HTTPError
				if !errors.As(err, &he) || he.StatusCode != http.StatusBadGateway {
					t.Errorf("error = %v, want *HTTPError 502", err)
				}
				if !strings.Contains(err.Error(), "upstream down") {
					t.Errorf("error = %v, want body in message", err)
				}
			},
		},
		{
			name:   "wrong vector count",
			status: http.StatusOK,
			body:   `{"data":[{"index":0,"embedding":[1]}]}`,
			check: func(t *testing.T, err error) {
				if err == nil {
					t.Error("expected error for missing vector")
				}
			},
		},
		{
			name:   "mixed dimensions",
			status: http.StatusOK,
			body:   `{"data":[{"index":0,"embedding":[1,2]},{"index":1,"embedding":[1]}]}`,
			check: func(t *testing.T, err error) {
				if err == nil {
					t.Error("expected error for dimension mismatch")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Embed(context.Background(), []string{"a", "b"})
			tt.check(t, err)
		})
	}
}

func TestClient_Embed_TooManyInputs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	texts := make([]string, MaxBatchSize+1)
	if _, err := c.Embed(context.Background(), texts); !errors.Is(err, ErrTooManyInputs) {
		t.Errorf("Embed() error = %v, want ErrTooManyInputs", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-1", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseRetryAfter(tt.in); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestClampBatchSize(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, MinBatchSize}, {10, MinBatchSize}, {50, 50}, {100, 100}, {500, MaxBatchSize},
	}
	for _, tt := range tests {
		if got := ClampBatchSize(tt.in); got != tt.want {
			t.Errorf("ClampBatchSize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
