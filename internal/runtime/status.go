package runtime

import (
	"net/http"
	"strings"
	"time"

	jsoncodecpkg "github.com/drblury/scriptflow/internal/runtime/jsoncodec"
)

// StreamSummary is the status API view of a processed stream.
type StreamSummary struct {
	Stream     string    `json:"stream"`
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Records    int       `json:"records"`
	Artifacts  []string  `json:"artifacts"`
	Warnings   int       `json:"warnings"`
	Failures   int       `json:"failures"`
	Error      string    `json:"error,omitempty"`
}

// ServiceStatus is the payload of the status API.
type ServiceStatus struct {
	OpenStreams []string          `json:"open_streams"`
	Streams     []StreamSummary   `json:"streams"`
	Metrics     *PipelineSnapshot `json:"metrics,omitempty"`
}

// Summarize converts a report into its status API view.
func Summarize(r StreamReport) StreamSummary {
	summary := StreamSummary{
		Stream:     r.Source,
		RunID:      r.RunID,
		Status:     string(r.Status()),
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
		Records:    r.Records,
		Artifacts:  make([]string, 0, len(r.Artifacts)),
		Warnings:   len(r.Warnings),
		Failures:   len(r.Failures),
	}
	for _, a := range r.Artifacts {
		summary.Artifacts = append(summary.Artifacts, a.ID)
	}
	if r.Err != nil {
		summary.Error = r.Err.Error()
	}
	return summary
}

// Status returns the current service status.
func (s *Service) Status() ServiceStatus {
	reports := s.Reports()
	status := ServiceStatus{
		OpenStreams: s.OpenStreams(),
		Streams:     make([]StreamSummary, 0, len(reports)),
	}
	for _, r := range reports {
		status.Streams = append(status.Streams, Summarize(r))
	}
	if s.metrics != nil {
		snapshot := s.metrics.GetSnapshot()
		status.Metrics = &snapshot
	}
	return status
}

func (s *Service) registerStatusAPI() {
	if s.Conf.StatusPort <= 0 {
		return
	}
	s.RegisterHTTPHandler(s.Conf.StatusPort, "/api/streams", http.HandlerFunc(s.handleGetStreams))
}

func (s *Service) handleGetStreams(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if len(s.Conf.StatusCORSAllowedOrigins) > 0 {
		if allowed := s.allowedCORSOrigin(r.Header.Get("Origin")); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := jsoncodecpkg.Encode(w, s.Status()); err != nil {
		s.Logger.Error("Failed to encode status", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *Service) allowedCORSOrigin(requestOrigin string) string {
	for _, allowed := range s.Conf.StatusCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
