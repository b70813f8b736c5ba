package ui

import (
	"github.com/linuxmatters/peaqer/internal/processor"
)

// EventMsg carries a worker progress event into the UI
type EventMsg struct {
	Event processor.Event
}

// AllCompleteMsg indicates the run has finished, successfully or not
type AllCompleteMsg struct {
	Err error
}

// tickMsg is sent for spinner/timer animation
type tickMsg struct{}
