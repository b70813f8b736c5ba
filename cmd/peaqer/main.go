package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/linuxmatters/peaqer/internal/audio"
	"github.com/linuxmatters/peaqer/internal/cli"
	"github.com/linuxmatters/peaqer/internal/config"
	"github.com/linuxmatters/peaqer/internal/logging"
	"github.com/linuxmatters/peaqer/internal/ordered"
	"github.com/linuxmatters/peaqer/internal/plot"
	"github.com/linuxmatters/peaqer/internal/processor"
	"github.com/linuxmatters/peaqer/internal/report"
	"github.com/linuxmatters/peaqer/internal/store"
	"github.com/linuxmatters/peaqer/internal/ui"
	"github.com/mattn/go-isatty"
)

var (
	version = "0.0.1"
)

// Exit codes
const (
	exitOK      = 0
	exitFatal   = 1 // configuration, usage or run error
	exitPartial = 2 // run completed with failed units
)

// CLI defines the command-line interface
type CLI struct {
	Version bool `short:"v" help:"Show version information"`

	Config string   `short:"c" type:"path" default:"settings.json" group:"inputs" help:"Settings file (.json, .yaml or .yml)"`
	Dir    string   `short:"d" type:"existingdir" default:"." group:"inputs" help:"Directory searched for reference inputs"`
	Ext    string   `default:"${ext}" group:"inputs" help:"Extension of reference inputs found in --dir"`
	Files  []string `arg:"" name:"files" help:"Reference audio files (overrides --dir discovery)" type:"existingfile" optional:""`

	Workers  int    `short:"j" default:"0" group:"run" help:"Parallel workers (0 = half the logical CPUs)"`
	Scratch  string `type:"path" group:"run" help:"Directory for transient encoded and decoded files (default: system temp dir)"`
	FailFast bool   `group:"run" help:"Stop the whole run at the first failed unit"`

	Output   string `short:"o" type:"path" default:"${output}" group:"output" help:"JSON results file"`
	PlotsDir string `type:"path" default:"." group:"output" help:"Directory for SVG charts"`
	NoPlots  bool   `group:"output" help:"Do not render charts"`
	DB       string `name:"db" type:"path" group:"output" help:"SQLite database recording run history (optional)"`

	Plain    bool   `group:"logging" help:"Print progress lines instead of the interactive display"`
	Logs     bool   `group:"logging" help:"Save peaqer-debug.log and peaqer-report.txt"`
	LogLevel string `enum:"trace,debug,info,warn,error" default:"info" group:"logging" help:"Log level for plain output"`
}

var flagGroups = []kong.Group{
	{Key: "inputs", Title: "Inputs"},
	{Key: "run", Title: "Run"},
	{Key: "output", Title: "Output"},
	{Key: "logging", Title: "Logging"},
}

var settingsHelp = cli.HelpSection{
	Title: "Settings file",
	Rows: []cli.HelpRow{
		{Name: "bitrates", Help: "Requested bitrates in kbps, in report order"},
		{Name: "encoders.<name>", Help: "cmd ($INPUT $OUTPUT $BPS $KBPS), extension, decoder, label"},
		{Name: "decoders.<name>", Help: "cmd ($INPUT $OUTPUT)"},
		{Name: "metrics.<name>", Help: "cmd ($REFERENCE $TESTFILE), prefix, suffix, out (stdout|stderr), match (last|first), label"},
		{Name: "probe.cmd", Help: "Bitrate probe ($INPUT), default: " + config.DefaultProbeCommand},
	},
}

var exitCodeHelp = cli.HelpSection{
	Title: "Exit codes",
	Rows: []cli.HelpRow{
		{Name: strconv.Itoa(exitOK), Help: "Every unit measured"},
		{Name: strconv.Itoa(exitFatal), Help: "Settings, usage or run error; no results written"},
		{Name: strconv.Itoa(exitPartial), Help: "Results written, but some units failed"},
	},
}

const description = "Parallel quality benchmark for lossy audio codecs"

func main() {
	cliArgs := &CLI{}
	ctx := kong.Parse(cliArgs,
		kong.Name("peaqer"),
		kong.Description(description),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
			"ext":     processor.DefaultExtension,
			"output":  report.DefaultPath,
		},
		kong.ExplicitGroups(flagGroups),
		kong.Help(cli.StyledHelpPrinter(description, settingsHelp, exitCodeHelp)),
	)

	// Handle version flag
	if cliArgs.Version {
		cli.PrintVersion(version)
		os.Exit(exitOK)
	}

	os.Exit(run(ctx, cliArgs))
}

// run executes one benchmark and returns the process exit code
func run(ctx *kong.Context, cliArgs *CLI) int {
	cfg, err := config.Load(cliArgs.Config)
	if err != nil {
		cli.PrintError(err.Error())
		return exitFatal
	}

	var inputs []string
	if len(cliArgs.Files) > 0 {
		inputs = processor.Dedupe(cliArgs.Files)
	} else {
		inputs, err = processor.DiscoverInputs(cliArgs.Dir, cliArgs.Ext)
		if err != nil {
			cli.PrintError(err.Error())
			return exitFatal
		}
	}
	if len(inputs) == 0 {
		cli.PrintError(fmt.Sprintf("No %s input files found in %s", cliArgs.Ext, cliArgs.Dir))
		ctx.PrintUsage(false)
		return exitFatal
	}

	pipeline, err := processor.NewPipeline(cfg, processor.ExecRunner{})
	if err != nil {
		cli.PrintError(err.Error())
		return exitFatal
	}

	// Reference metadata is informational; non-WAV inputs are still measured
	var metadata ordered.Map[*audio.Metadata]
	for _, input := range inputs {
		meta, err := audio.ReadMetadata(input)
		if err != nil {
			cli.PrintWarning(fmt.Sprintf("%s: %v", input, err))
		}
		metadata.Set(input, meta)
	}

	workers := cliArgs.Workers
	if workers <= 0 {
		workers = processor.DefaultWorkers()
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	plain := cliArgs.Plain ||
		!(isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))

	logger, closeLog, err := openLogger(cliArgs, plain)
	if err != nil {
		cli.PrintError(err.Error())
		return exitFatal
	}
	defer closeLog()

	runID := uuid.NewString()
	logger.Info("run starting", "run", runID, "inputs", len(inputs), "workers", workers, "settings", cliArgs.Config)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := processor.Options{
		Workers:  workers,
		Scratch:  processor.Scratch{Dir: cliArgs.Scratch, Namespace: runID[:8]},
		FailFast: cliArgs.FailFast,
		Logger:   logger,
	}

	started := time.Now()
	var results processor.Results
	var runErr error
	if plain {
		opts.Observer = ui.ConsoleObserver(os.Stdout)
		results, runErr = processor.Run(sigCtx, pipeline, inputs, opts)
	} else {
		results, runErr = runWithUI(sigCtx, pipeline, inputs, opts)
	}
	finished := time.Now()

	if runErr != nil {
		logger.Error("run failed", "error", runErr)
		cli.PrintError(runErr.Error())
		return exitFatal
	}

	summary := processor.Aggregate(cfg, results)

	var plotFiles []string
	if !cliArgs.NoPlots {
		plotFiles, err = plot.WriteAll(cliArgs.PlotsDir, cfg, results, summary)
		if err != nil {
			logger.Warn("some charts were not written", "error", err)
			cli.PrintWarning(err.Error())
		}
	}

	rep := &report.Report{
		RunID:     runID,
		Started:   started,
		Finished:  finished,
		Timezone:  report.LocalTimezone(),
		Workers:   workers,
		PlotFiles: plotFiles,
		Settings:  cfg,
		Inputs:    metadata,
		Results:   results,
		Averages:  summary,
		Failures:  processor.CountFailures(results),
	}
	if err := report.Write(cliArgs.Output, rep); err != nil {
		cli.PrintError(err.Error())
		return exitFatal
	}
	logger.Info("results written", "path", cliArgs.Output)

	if cliArgs.DB != "" {
		if err := saveRun(cliArgs.DB, rep, logger); err != nil {
			logger.Warn("run history not saved", "error", err)
			cli.PrintWarning(err.Error())
		}
	}

	if cliArgs.Logs {
		err := logging.GenerateReport(logging.ReportFile, logging.ReportData{
			RunID:     runID,
			StartTime: started,
			EndTime:   finished,
			Timezone:  rep.Timezone,
			Workers:   workers,
			Settings:  cfg,
			Inputs:    metadata,
			Results:   results,
			Summary:   summary,
			PlotFiles: plotFiles,
			JSONPath:  cliArgs.Output,
		})
		if err != nil {
			cli.PrintWarning(err.Error())
		}
	}

	printSummary(os.Stdout, cfg, summary, len(results), cliArgs.Output)

	if rep.Failures > 0 {
		cli.PrintWarning(fmt.Sprintf("%d score records failed, see %s", rep.Failures, cliArgs.Output))
		return exitPartial
	}
	return exitOK
}

// openLogger picks the log destination: stderr in plain mode, the debug log
// file in TUI mode with --logs, nowhere otherwise.
func openLogger(cliArgs *CLI, plain bool) (hclog.Logger, func(), error) {
	if plain {
		logger, err := logging.NewLogger(os.Stderr, cliArgs.LogLevel)
		return logger, func() {}, err
	}
	if !cliArgs.Logs {
		return hclog.NewNullLogger(), func() {}, nil
	}
	logger, f, err := logging.OpenDebugLog(".")
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { f.Close() }, nil
}

// runWithUI runs the measurement in the background while the TUI renders
// worker events. Quitting the TUI cancels the run.
func runWithUI(ctx context.Context, pipeline *processor.Pipeline, inputs []string, opts processor.Options) (processor.Results, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(inputs, pipeline.UnitsPerFile(), opts.Workers, cancel)
	p := tea.NewProgram(model, tea.WithAltScreen())
	opts.Observer = func(e processor.Event) {
		p.Send(ui.EventMsg{Event: e})
	}

	var results processor.Results
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		results, runErr = processor.Run(ctx, pipeline, inputs, opts)
		p.Send(ui.AllCompleteMsg{Err: runErr})
	}()

	if _, err := p.Run(); err != nil {
		cli.PrintError(fmt.Sprintf("UI error: %v", err))
		cancel()
	}

	// Workers remove their scratch files before returning
	<-done
	return results, runErr
}

func saveRun(dsn string, rep *report.Report, logger hclog.Logger) error {
	s, err := store.Open(dsn, logger.Named("store"))
	if err != nil {
		return err
	}
	defer s.Close()
	return s.SaveRun(rep)
}

// printSummary prints the per-metric average tables to the console
func printSummary(w io.Writer, cfg *config.Config, summary processor.Summary, files int, jsonPath string) {
	for _, metric := range cfg.Metrics.Keys() {
		title := fmt.Sprintf("Average %s (%d files)", cfg.MetricLabel(metric), files)
		cli.PrintSection(w, title, logging.AverageScoreTable(cfg, summary, metric).String())
	}
	fmt.Fprintln(w)
	cli.PrintKeyValue(w, "Results", filepath.Clean(jsonPath))
}
