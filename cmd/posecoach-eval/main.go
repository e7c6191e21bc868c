package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/meltforce/posecoach/internal/classifier"
	"github.com/meltforce/posecoach/internal/config"
	"github.com/meltforce/posecoach/internal/evaluate"
	"github.com/meltforce/posecoach/internal/extract"
	"github.com/meltforce/posecoach/internal/logging"
	"github.com/meltforce/posecoach/internal/models"
	"github.com/meltforce/posecoach/internal/sessionlog"
	"github.com/meltforce/posecoach/internal/source"
)

// Version is set at build time via -ldflags.
var Version = "dev"

type stats struct {
	frames, evaluated, lowConfidence, incomplete int
	correct, incorrect, unknown, logErrors      int
}

// frameOutput is one line of the JSON results stream.
type frameOutput struct {
	Frame int `json:"frame"`
	*models.EvaluationResult
}

func main() {
	configPath := flag.String("config", "", "path to config file (defaults and env only when empty)")
	input := flag.String("input", "-", "JSONL pose frames, one per line (- for stdin)")
	logPath := flag.String("log", "", "session CSV log (overrides session.log_path)")
	noLog := flag.Bool("no-log", false, "do not write a session log")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("posecoach-eval", Version)
		return
	}
	os.Exit(run(*configPath, *input, *logPath, *noLog))
}

func run(configPath, input, logPath string, noLog bool) int {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadEvaluator(configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		return 1
	}
	logger, closer, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		log.Error("failed to configure logging", "error", err)
		return 1
	}
	defer closer.Close()
	log = logger

	cls, err := evaluate.ClassifierFromConfig(cfg)
	if err != nil {
		log.Error("failed to set up classifier", "error", err)
		return 1
	}
	ext := extract.New(cfg.FeatureSet())

	var sink evaluate.Sink
	if !noLog {
		if logPath == "" {
			logPath = cfg.Session.LogPath
		}
		csvLog, err := sessionlog.Open(logPath, ext.Features().Names())
		if err != nil {
			log.Error("failed to open session log", "path", logPath, "error", err)
			return 1
		}
		sink = csvLog
		log.Info("logging session", "path", csvLog.Path())
	}

	ev, err := evaluate.New(ext, cls, sink, evaluate.OptionsFromConfig(cfg), log)
	if err != nil {
		log.Error("evaluator setup failed", "error", err)
		return 1
	}

	in := io.Reader(os.Stdin)
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			log.Error("failed to open input", "error", err)
			return 1
		}
		defer f.Close()
		in = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st stats
	code := loop(ctx, ev, source.NewReader(in), json.NewEncoder(os.Stdout), &st, log)
	printStats(st)
	return code
}

// loop evaluates frames until the source is drained or ctx is cancelled.
// Cancellation is only observed between frames; the frame in flight runs
// to completion, including its log append.
func loop(ctx context.Context, ev *evaluate.Evaluator, rd *source.Reader, out *json.Encoder, st *stats, log *slog.Logger) int {
	for {
		if ctx.Err() != nil {
			log.Info("interrupted, stopping")
			return 0
		}
		frame, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return 0
		}
		if err != nil {
			log.Error("reading pose source", "error", err)
			return 1
		}
		extract.FillConfidence(&frame)

		res, err := ev.Evaluate(context.WithoutCancel(ctx), frame)
		if err != nil {
			if errors.Is(err, classifier.ErrDimensionMismatch) {
				log.Error("classifier input contract broken", "frame", frame.Index, "error", err)
			} else {
				log.Error("evaluation failed", "frame", frame.Index, "error", err)
			}
			return 1
		}
		st.add(res)
		if err := out.Encode(frameOutput{Frame: frame.Index, EvaluationResult: res}); err != nil {
			log.Error("writing result", "error", err)
			return 1
		}
	}
}

func (s *stats) add(res *models.EvaluationResult) {
	s.frames++
	switch res.Outcome {
	case models.OutcomeLowConfidence:
		s.lowConfidence++
		return
	case models.OutcomeIncomplete:
		s.incomplete++
		return
	}
	s.evaluated++
	switch res.Label {
	case models.LabelCorrect:
		s.correct++
	case models.LabelIncorrect:
		s.incorrect++
	default:
		s.unknown++
	}
	if res.LogErr != nil {
		s.logErrors++
	}
}

func printStats(s stats) {
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "=== Session Summary ===")
	fmt.Fprintf(os.Stderr, "  Frames:          %d\n", s.frames)
	fmt.Fprintf(os.Stderr, "  Evaluated:       %d (correct %d, incorrect %d, unknown %d)\n", s.evaluated, s.correct, s.incorrect, s.unknown)
	fmt.Fprintf(os.Stderr, "  Low confidence:  %d\n", s.lowConfidence)
	fmt.Fprintf(os.Stderr, "  Incomplete:      %d\n", s.incomplete)
	if s.logErrors > 0 {
		fmt.Fprintf(os.Stderr, "  Log errors:      %d\n", s.logErrors)
	}
	fmt.Fprintln(os.Stderr)
}
