// Package ui provides the Bubbletea terminal user interface for peaqer
package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/linuxmatters/peaqer/internal/processor"
)

// Spinner frames for active files
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// FileStatus represents the measurement state of a single input
type FileStatus int

const (
	StatusQueued FileStatus = iota
	StatusMeasuring
	StatusComplete
	StatusFailed // finished, but some units failed
)

// FileProgress tracks progress for a single input file
type FileProgress struct {
	InputPath string
	Status    FileStatus
	Worker    int

	// Current unit
	Stage   processor.Stage
	Encoder string
	Metric  string
	Bitrate int
	KBPS    float64

	UnitsDone  int
	UnitsTotal int
	Failures   int
	LastError  error

	StartTime   time.Time
	ElapsedTime time.Duration
}

// Progress returns the finished fraction of the file's units
func (fp FileProgress) Progress() float64 {
	if fp.UnitsTotal == 0 {
		return 0
	}
	return float64(fp.UnitsDone) / float64(fp.UnitsTotal)
}

// Model is the Bubbletea model for the measurement UI. Workers run
// concurrently, so any number of files may be measuring at once.
type Model struct {
	Files          []FileProgress
	TotalFiles     int
	CompletedFiles int
	FailedFiles    int
	UnitsPerFile   int
	Workers        int

	StartTime time.Time
	Done      bool
	Aborting  bool
	Err       error

	cancel       context.CancelFunc
	bar          progress.Model
	spinnerIndex int

	// Terminal dimensions
	Width  int
	Height int
}

// NewModel creates a UI model for the given inputs. cancel is called when the
// user quits; the model keeps running until AllCompleteMsg arrives so the
// workers can clean up their scratch files.
func NewModel(inputFiles []string, unitsPerFile, workers int, cancel context.CancelFunc) Model {
	files := make([]FileProgress, len(inputFiles))
	for i, path := range inputFiles {
		files[i] = FileProgress{
			InputPath:  path,
			Status:     StatusQueued,
			UnitsTotal: unitsPerFile,
		}
	}

	return Model{
		Files:        files,
		TotalFiles:   len(inputFiles),
		UnitsPerFile: unitsPerFile,
		Workers:      workers,
		StartTime:    time.Now(),
		cancel:       cancel,
		bar: progress.New(
			progress.WithGradient("#A40000", "#FFA500"),
			progress.WithWidth(56),
		),
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// tickCmd returns a command that sends a tick message every 100ms
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.Aborting {
				// Second request: stop waiting for the workers
				return m, tea.Quit
			}
			m.Aborting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case tickMsg:
		if m.Done {
			return m, nil
		}
		m.spinnerIndex = (m.spinnerIndex + 1) % len(spinnerFrames)
		for i := range m.Files {
			if m.Files[i].Status == StatusMeasuring {
				m.Files[i].ElapsedTime = time.Since(m.Files[i].StartTime)
			}
		}
		return m, tickCmd()

	case EventMsg:
		m = m.applyEvent(msg.Event)
		return m, nil

	case AllCompleteMsg:
		m.Done = true
		m.Err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

// applyEvent folds a worker event into the file it concerns
func (m Model) applyEvent(e processor.Event) Model {
	if e.FileIndex < 0 || e.FileIndex >= len(m.Files) {
		return m
	}
	fp := &m.Files[e.FileIndex]
	fp.Worker = e.Worker
	fp.Stage = e.Stage
	if e.UnitsTotal > 0 {
		fp.UnitsTotal = e.UnitsTotal
	}
	if e.UnitsDone > fp.UnitsDone {
		fp.UnitsDone = e.UnitsDone
	}

	switch e.Stage {
	case processor.StageFileStart:
		fp.Status = StatusMeasuring
		fp.StartTime = time.Now()

	case processor.StageEncode, processor.StageDecode:
		fp.Encoder = e.Encoder
		fp.Bitrate = e.Bitrate
		fp.Metric = ""

	case processor.StageProbe:
		fp.KBPS = e.KBPS

	case processor.StageMetric:
		fp.Metric = e.Metric

	case processor.StageUnitFailed:
		fp.Failures++
		fp.LastError = e.Err

	case processor.StageFileDone:
		fp.ElapsedTime = time.Since(fp.StartTime)
		fp.UnitsDone = fp.UnitsTotal
		if fp.Failures > 0 {
			fp.Status = StatusFailed
			m.FailedFiles++
		} else {
			fp.Status = StatusComplete
			m.CompletedFiles++
		}
	}
	return m
}

// UnitsDone returns the number of finished units across all files
func (m Model) UnitsDone() int {
	done := 0
	for _, f := range m.Files {
		done += f.UnitsDone
	}
	return done
}

// Progress returns the finished fraction of the whole run
func (m Model) Progress() float64 {
	total := m.TotalFiles * m.UnitsPerFile
	if total == 0 {
		return 0
	}
	return float64(m.UnitsDone()) / float64(total)
}

// View renders the UI
func (m Model) View() string {
	if m.Width == 0 {
		return "Initializing..."
	}

	if m.Done {
		return renderCompletionSummary(m)
	}

	return renderProcessingView(m)
}
