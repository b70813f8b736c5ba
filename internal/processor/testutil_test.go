package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linuxmatters/peaqer/internal/config"
)

// fakeTools stands in for real encoders, decoders, probes and metric tools.
//
//	enc <input> <output> <kbps>   writes "ENC|<kbps>|<input content>"
//	dec <input> <output>          writes "DEC|" + input content
//	probe <path>                  reports a 10 s duration and a size matching kbps
//	metric <ref> <test>           prints "ODG: <score> (ref 0.0)" where score is derived
//	                              from the reference content and the kbps found in test
//	metric2 <ref> <test>          prints "score=<score>" on stderr
//
// The metric reports -99 when the decoded file does not carry the reference
// content, which is what a worker reading another worker's artifact would see.
type fakeTools struct {
	delay time.Duration

	mu    sync.Mutex
	calls [][]string
	fail  map[string]error // tool name -> error returned
}

func (f *fakeTools) Run(ctx context.Context, argv []string) (Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, argv)
	failErr := f.fail[argv[0]]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	if failErr != nil {
		return Output{Stderr: "boom"}, &ToolExecutionError{Command: argv, ExitCode: 1, Stderr: "boom", Err: failErr}
	}

	switch argv[0] {
	case "enc":
		content, err := os.ReadFile(argv[1])
		if err != nil {
			return Output{}, err
		}
		f.sleep()
		return Output{}, os.WriteFile(argv[2], []byte("ENC|"+argv[3]+"|"+string(content)), 0o644)

	case "silentenc":
		// exits cleanly without writing anything
		return Output{}, nil

	case "dec":
		content, err := os.ReadFile(argv[1])
		if err != nil {
			return Output{}, err
		}
		f.sleep()
		return Output{}, os.WriteFile(argv[2], []byte("DEC|"+string(content)), 0o644)

	case "probe":
		content, err := os.ReadFile(argv[1])
		if err != nil {
			return Output{}, err
		}
		kbps, _ := strconv.Atoi(strings.Split(string(content), "|")[1])
		return Output{Stdout: fmt.Sprintf(`{"format": {"size": "%d", "duration": "10.000000"}}`, kbps*1250)}, nil

	case "metric", "metric2":
		ref, err := os.ReadFile(argv[1])
		if err != nil {
			return Output{}, err
		}
		f.sleep()
		test, err := os.ReadFile(argv[2])
		if err != nil {
			return Output{}, err
		}
		score := -99.0
		// DEC|ENC|<kbps>|<content>
		parts := strings.SplitN(strings.TrimPrefix(string(test), "DEC|"), "|", 3)
		if len(parts) == 3 && parts[2] == string(ref) {
			kbps, _ := strconv.Atoi(parts[1])
			score = expectedScore(string(ref), kbps)
		}
		if argv[0] == "metric2" {
			return Output{Stderr: "analysing\nscore=" + formatScore(score) + "\n"}, nil
		}
		return Output{Stdout: "progress 50%\nODG: " + formatScore(score) + " (ref 0.0)\n"}, nil

	case "silentmetric":
		return Output{Stdout: "nothing to see\n"}, nil
	}

	return Output{}, &ToolExecutionError{Command: argv, ExitCode: 127, Err: errors.New("unknown tool")}
}

func (f *fakeTools) sleep() {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
}

func (f *fakeTools) callsFor(tool string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, c := range f.calls {
		if c[0] == tool {
			out = append(out, c)
		}
	}
	return out
}

// expectedScore is what the fake metric reports for a clean measurement.
func expectedScore(reference string, kbps int) float64 {
	return float64(len(reference)) + float64(kbps)/1000
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

const fakeSettings = `{
	"bitrates": [32, 64, 128],
	"encoders": {
		"alpha": {"cmd": "enc $INPUT $OUTPUT $KBPS", "extension": "alp", "decoder": "plain", "label": "Alpha"},
		"beta": {"cmd": "enc $INPUT $OUTPUT $KBPS", "extension": "bet", "decoder": "plain", "label": "Beta"}
	},
	"decoders": {
		"plain": {"cmd": "dec $INPUT $OUTPUT"}
	},
	"metrics": {
		"odg": {"cmd": "metric $REFERENCE $TESTFILE", "prefix": "ODG: ", "suffix": " (", "label": "ODG"},
		"snr": {"cmd": "metric2 $REFERENCE $TESTFILE", "prefix": "score=", "out": "stderr", "label": "SNR"}
	},
	"probe": {"cmd": "probe $INPUT"}
}`

// newTestConfig parses fakeSettings, optionally adjusted by mutate.
func newTestConfig(t *testing.T, mutate func(*config.Config)) *config.Config {
	t.Helper()
	cfg, err := config.ParseJSON([]byte(fakeSettings))
	if err != nil {
		t.Fatalf("parsing test settings: %v", err)
	}
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test settings invalid: %v", err)
	}
	return cfg
}

// createInputs writes reference files with distinct content and returns their paths.
func createInputs(t *testing.T, dir string, n int) []string {
	t.Helper()
	files := make([]string, n)
	for i := range files {
		files[i] = filepath.Join(dir, fmt.Sprintf("ref %02d.wav", i))
		content := strings.Repeat("x", i+1)
		if err := os.WriteFile(files[i], []byte(content), 0o644); err != nil {
			t.Fatalf("writing input: %v", err)
		}
	}
	return files
}

func newTestPipeline(t *testing.T, cfg *config.Config, runner Runner) *Pipeline {
	t.Helper()
	p, err := NewPipeline(cfg, runner)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	return p
}
