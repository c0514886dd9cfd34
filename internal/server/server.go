// Package server exposes pyramid generation over a small REST API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pyramidtools/pyramid/internal/backend"
	"github.com/pyramidtools/pyramid/internal/pyramid"
)

// Generator is the slice of the pyramid driver the server needs.
type Generator interface {
	Generate(ctx context.Context, req pyramid.Request) (*pyramid.Result, error)
}

// Server implements the HTTP handlers.
type Server struct {
	generator Generator
	startTime time.Time
	version   string
}

// NewServer creates a new server instance backed by the given generator.
func NewServer(generator Generator, version string) *Server {
	return &Server{
		generator: generator,
		startTime: time.Now(),
		version:   version,
	}
}

// Routes registers all API endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.GetHealth)
	r.Post("/pyramids", s.CreatePyramid)
}

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    int       `json:"uptime"`
	Version   string    `json:"version"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Zoom      *int   `json:"zoom,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// GetHealth implements the health check endpoint.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    int(time.Since(s.startTime).Seconds()),
		Version:   s.version,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding health response: %v", err)
	}
}

// CreatePyramid runs a generation synchronously and returns its summary.
func (s *Server) CreatePyramid(w http.ResponseWriter, r *http.Request) {
	requestID := generateRequestID()

	var req pyramid.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON",
			"Invalid JSON in request body", requestID, nil)
		return
	}

	if req.Source == "" || req.Target == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST",
			"source and target are required", requestID, nil)
		return
	}

	result, err := s.generator.Generate(r.Context(), req)
	if err != nil {
		s.handleGenerationError(w, err, requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(http.StatusCreated)

	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Printf("Error encoding result: %v", err)
	}
}

// handleGenerationError maps driver errors onto HTTP statuses. A level
// failure means the backend rejected the work mid-run; everything else
// failed validation before any work started.
func (s *Server) handleGenerationError(w http.ResponseWriter, err error, requestID string) {
	var lerr *pyramid.LevelError
	if errors.As(err, &lerr) {
		zoom := lerr.Zoom
		s.writeErrorResponse(w, http.StatusBadGateway, "GENERATION_FAILED",
			lerr.Error(), requestID, &zoom)
		return
	}

	if errors.Is(err, backend.ErrUnavailable) {
		s.writeErrorResponse(w, http.StatusServiceUnavailable, "BACKEND_UNAVAILABLE",
			err.Error(), requestID, nil)
		return
	}

	s.writeErrorResponse(w, http.StatusBadRequest, "VALIDATION_ERROR",
		err.Error(), requestID, nil)
}

// writeErrorResponse writes a standard error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID string, zoom *int) {
	response := ErrorResponse{
		Error:     errorCode,
		Message:   message,
		Zoom:      zoom,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// generateRequestID generates a unique request ID.
func generateRequestID() string {
	return fmt.Sprintf("req_%d", time.Now().UnixNano())
}
