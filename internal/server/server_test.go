package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pyramidtools/pyramid/internal/backend"
	"github.com/pyramidtools/pyramid/internal/pyramid"
	"github.com/pyramidtools/pyramid/pkg/tile"
)

// stubGenerator returns a canned result or error without doing any work.
type stubGenerator struct {
	result *pyramid.Result
	err    error

	lastRequest *pyramid.Request
}

func (s *stubGenerator) Generate(ctx context.Context, req pyramid.Request) (*pyramid.Result, error) {
	s.lastRequest = &req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// Test server setup
func setupTestServer(gen Generator) *httptest.Server {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(30 * time.Second))

	apiServer := NewServer(gen, "1.0.0-test")

	r.Route("/api/v1", func(r chi.Router) {
		apiServer.Routes(r)
	})

	return httptest.NewServer(r)
}

func TestHealthEndpoint(t *testing.T) {
	server := setupTestServer(&stubGenerator{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", contentType)
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if healthResp.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got %s", healthResp.Status)
	}
	if healthResp.Version != "1.0.0-test" {
		t.Errorf("Expected version '1.0.0-test', got %s", healthResp.Version)
	}
	if healthResp.Uptime < 0 {
		t.Errorf("Expected non-negative uptime, got %d", healthResp.Uptime)
	}
	if time.Since(healthResp.Timestamp) > time.Minute {
		t.Errorf("Timestamp seems too old: %v", healthResp.Timestamp)
	}
}

func TestCreatePyramid_Success(t *testing.T) {
	stub := &stubGenerator{
		result: &pyramid.Result{
			Target:        "/data/tiles/out_20260314-092653",
			MaxZoom:       2,
			TileSize:      256,
			LevelsCreated: 3,
			Format:        tile.FormatWebP,
			Lossless:      true,
		},
	}
	server := setupTestServer(stub)
	defer server.Close()

	body := `{
		"source": "/data/map.png",
		"target": "/data/tiles/out",
		"max_zoom": 2,
		"tile_size": 256,
		"format": "webp"
	}`

	resp, err := http.Post(server.URL+"/api/v1/pyramids", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header")
	}

	var result pyramid.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if result.LevelsCreated != 3 {
		t.Errorf("Expected levels_created 3, got %d", result.LevelsCreated)
	}
	if result.Format != tile.FormatWebP {
		t.Errorf("Expected format webp, got %s", result.Format)
	}
	if !result.Lossless {
		t.Error("Expected lossless true")
	}

	// The handler must pass the request through unchanged.
	if stub.lastRequest == nil {
		t.Fatal("Generator was never called")
	}
	if stub.lastRequest.Source != "/data/map.png" {
		t.Errorf("Expected source '/data/map.png', got %q", stub.lastRequest.Source)
	}
	if stub.lastRequest.Format != tile.FormatWebP {
		t.Errorf("Expected format webp, got %s", stub.lastRequest.Format)
	}
}

func TestCreatePyramid_InvalidJSON(t *testing.T) {
	server := setupTestServer(&stubGenerator{})
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/v1/pyramids", "application/json",
		bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if errResp.Error != "INVALID_JSON" {
		t.Errorf("Expected error INVALID_JSON, got %s", errResp.Error)
	}
}

func TestCreatePyramid_MissingFields(t *testing.T) {
	stub := &stubGenerator{}
	server := setupTestServer(stub)
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/v1/pyramids", "application/json",
		strings.NewReader(`{"max_zoom": 2}`))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
	if stub.lastRequest != nil {
		t.Error("Generator was called despite missing fields")
	}
}

func TestCreatePyramid_LevelFailure(t *testing.T) {
	stub := &stubGenerator{
		err: &pyramid.LevelError{
			Zoom: 3,
			Err:  context.DeadlineExceeded,
		},
	}
	server := setupTestServer(stub)
	defer server.Close()

	body := `{"source": "/data/map.png", "target": "/data/out", "max_zoom": 4, "tile_size": 256}`
	resp, err := http.Post(server.URL+"/api/v1/pyramids", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", resp.StatusCode)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if errResp.Error != "GENERATION_FAILED" {
		t.Errorf("Expected error GENERATION_FAILED, got %s", errResp.Error)
	}
	if errResp.Zoom == nil || *errResp.Zoom != 3 {
		t.Errorf("Expected zoom 3 in error, got %v", errResp.Zoom)
	}
	if !strings.Contains(errResp.Message, "zoom level 3") {
		t.Errorf("Expected message naming the failing level, got %q", errResp.Message)
	}
}

func TestCreatePyramid_BackendUnavailable(t *testing.T) {
	stub := &stubGenerator{err: backend.ErrUnavailable}
	server := setupTestServer(stub)
	defer server.Close()

	body := `{"source": "/data/map.png", "target": "/data/out", "max_zoom": 1, "tile_size": 256}`
	resp, err := http.Post(server.URL+"/api/v1/pyramids", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", resp.StatusCode)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if errResp.Error != "BACKEND_UNAVAILABLE" {
		t.Errorf("Expected error BACKEND_UNAVAILABLE, got %s", errResp.Error)
	}
}

func TestCreatePyramid_ValidationError(t *testing.T) {
	stub := &stubGenerator{err: tileValidationError()}
	server := setupTestServer(stub)
	defer server.Close()

	body := `{"source": "/data/map.png", "target": "/data/out", "max_zoom": 13, "tile_size": 256}`
	resp, err := http.Post(server.URL+"/api/v1/pyramids", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if errResp.Error != "VALIDATION_ERROR" {
		t.Errorf("Expected error VALIDATION_ERROR, got %s", errResp.Error)
	}
}

func tileValidationError() error {
	return tile.ValidateZoom(13)
}
