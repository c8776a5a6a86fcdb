package models

import "time"

// StudioMetrics is a point-in-time summary of the studio's counters.
type StudioMetrics struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	BackendCalls             uint64    `json:"backendCalls"`
	BackendFailures          uint64    `json:"backendFailures"`
	Generations              uint64    `json:"generations"`
	Downloads                uint64    `json:"downloads"`
	GenerationInProgress     bool      `json:"generationInProgress"`
	WorkspaceHitRatio        float64   `json:"workspaceHitRatio"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
