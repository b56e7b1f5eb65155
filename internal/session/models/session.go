// Package models defines the voting session configuration: the single
// process-wide record that decides when votes and roster changes are
// allowed.
package models

import "time"

// Config is the singleton session configuration. At most one live instance
// exists, keyed by a fixed identifier at the storage layer.
type Config struct {
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	VotingEnabled   bool      `json:"voting_enabled"`
	ResultsDeclared bool      `json:"results_declared"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// UpdateRequest is the admin input for reconfiguring the session.
type UpdateRequest struct {
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	VotingEnabled   bool      `json:"voting_enabled"`
	ResultsDeclared bool      `json:"results_declared"`
}

// WindowStatus discriminates why the voting window is or is not open, so
// user messaging can distinguish a not-yet-started window from an ended or
// disabled one.
type WindowStatus string

const (
	WindowOpen       WindowStatus = "open"
	WindowNotStarted WindowStatus = "not_started"
	WindowEnded      WindowStatus = "ended"
	WindowDisabled   WindowStatus = "disabled"
)
