package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/linuxmatters/peaqer/internal/processor"
)

// renderProcessingView renders the main measurement view
func renderProcessingView(m Model) string {
	var b strings.Builder

	b.WriteString(renderHeader(m))
	b.WriteString("\n\n")

	b.WriteString(renderFileQueue(m))
	b.WriteString("\n")

	b.WriteString(renderOverallProgress(m))

	return b.String()
}

// renderHeader renders the application header
func renderHeader(m Model) string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#A40000")).
		Render("Peaqer - Lossy Codec Benchmark")

	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Italic(true).
		Render(fmt.Sprintf("Measuring %d file(s) on %d worker(s)", m.TotalFiles, m.Workers))

	return title + "\n" + subtitle
}

// renderFileQueue renders the list of files with their status
func renderFileQueue(m Model) string {
	var b strings.Builder

	for _, file := range m.Files {
		b.WriteString(renderFileEntry(file, m.spinnerIndex))
		b.WriteString("\n")
	}

	return b.String()
}

// renderFileEntry renders a single file entry in the queue
func renderFileEntry(file FileProgress, spinnerIndex int) string {
	fileName := filepath.Base(file.InputPath)

	switch file.Status {
	case StatusComplete:
		icon := lipgloss.NewStyle().Foreground(lipgloss.Color("#00AA00")).Render("✓")
		return fmt.Sprintf(" %s %s\n   %d units in %s", icon, fileName, file.UnitsTotal, formatElapsed(file.ElapsedTime))

	case StatusFailed:
		icon := lipgloss.NewStyle().Foreground(lipgloss.Color("#A40000")).Render("✗")
		return fmt.Sprintf(" %s %s\n   %d of %d units failed, last: %v", icon, fileName, file.Failures, file.UnitsTotal, file.LastError)

	case StatusMeasuring:
		icon := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500")).Render(spinnerFrames[spinnerIndex%len(spinnerFrames)])
		return fmt.Sprintf(" %s %s [worker %d]\n   %s\n   %s",
			icon, fileName, file.Worker+1,
			renderProgressBar(file.Progress(), 30, file.ElapsedTime),
			describeStage(file))

	default:
		icon := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Render("○")
		return fmt.Sprintf(" %s %s\n   Queued...", icon, fileName)
	}
}

// describeStage says what the active file's worker is doing right now
func describeStage(file FileProgress) string {
	switch file.Stage {
	case processor.StageEncode:
		return fmt.Sprintf("Encoding %s @ %d kbps", file.Encoder, file.Bitrate)
	case processor.StageProbe:
		return fmt.Sprintf("Probed %s @ %d kbps: %.1f kbps achieved", file.Encoder, file.Bitrate, file.KBPS)
	case processor.StageDecode:
		return fmt.Sprintf("Decoding %s @ %d kbps", file.Encoder, file.Bitrate)
	case processor.StageMetric:
		return fmt.Sprintf("Scored %s @ %d kbps with %s", file.Encoder, file.Bitrate, file.Metric)
	case processor.StageUnitFailed:
		return fmt.Sprintf("Failed %s @ %d kbps", file.Encoder, file.Bitrate)
	default:
		return "Starting..."
	}
}

// renderProgressBar renders a per-file progress bar with elapsed time
func renderProgressBar(progress float64, width int, elapsed time.Duration) string {
	filled := int(progress * float64(width))
	if filled > width {
		filled = width
	}
	empty := width - filled

	filledStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#A40000"))
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))

	bar := filledStyle.Render(strings.Repeat("━", filled)) +
		emptyStyle.Render(strings.Repeat("━", empty))

	percentage := int(progress * 100)

	return fmt.Sprintf("%s %3d%% [%s]", bar, percentage, formatElapsed(elapsed))
}

// renderOverallProgress renders the overall progress footer
func renderOverallProgress(m Model) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#888888")).
		Padding(0, 1).
		Width(64)

	var content strings.Builder
	content.WriteString(m.bar.ViewAs(m.Progress()))
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("%d/%d files, %d/%d units [%s]",
		m.CompletedFiles+m.FailedFiles, m.TotalFiles,
		m.UnitsDone(), m.TotalFiles*m.UnitsPerFile,
		formatElapsed(time.Since(m.StartTime))))

	if m.Aborting {
		content.WriteString("\n")
		content.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("#A40000")).
			Render("Cancelling, waiting for workers (press q again to leave now)"))
	}

	return box.Render(content.String())
}

// renderCompletionSummary renders the final completion summary
func renderCompletionSummary(m Model) string {
	var b strings.Builder

	if m.Err != nil {
		header := lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#A40000")).
			Render("✗ Measurement aborted")
		b.WriteString(header)
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("   %v\n", m.Err))
		return b.String()
	}

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00AA00")).
		Render("✨ Measurement Complete!")
	b.WriteString(header)
	b.WriteString("\n\n")

	for _, file := range m.Files {
		b.WriteString(renderFileEntry(file, 0))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 64))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%d file(s) in %s, %d with failed units\n",
		m.TotalFiles, formatElapsed(time.Since(m.StartTime)), m.FailedFiles))

	return b.String()
}

// formatElapsed formats elapsed time as MM:SS or HH:MM:SS
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
