package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mchmarny/leadscore/pkg/config"
	"github.com/mchmarny/leadscore/pkg/errs"
	"github.com/mchmarny/leadscore/pkg/logging"
	"github.com/mchmarny/leadscore/pkg/pipeline"
	urfave "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName = "leadscore"

	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"

	defaultTrain  = "data/train.csv"
	defaultValid  = "data/valid.csv"
	defaultOutput = "outputs/weights"

	flagTrain  = "train"
	flagValid  = "valid"
	flagOutput = "output"
	flagConfig = "config"
	flagFormat = "format"
	flagDebug  = "debug"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	logLevel = &slog.LevelVar{}
)

// Execute creates and runs the CLI application.
func Execute() {
	initLogging(false)

	app := newApp(os.Stdout)
	if err := app.Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "class", errs.Class(err), "error", err)
		os.Exit(1)
	}
}

func newApp(w io.Writer) *urfave.Command {
	return &urfave.Command{
		Name:            appName,
		Version:         fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Usage:           "Trains the lead scoring model and exports normalized feature weights",
		HideHelpCommand: true,
		Writer:          w,
		Flags:           newFlags(),
		Before: func(ctx context.Context, cmd *urfave.Command) (context.Context, error) {
			if cmd.Bool(flagDebug) {
				initLogging(true)
			}
			if _, err := parseFormat(cmd.String(flagFormat)); err != nil {
				return ctx, err
			}
			return ctx, nil
		},
		Action: runPipeline,
	}
}

// newFlags returns fresh flag instances; urfave flags keep parse state.
func newFlags() []urfave.Flag {
	return []urfave.Flag{
		&urfave.StringFlag{
			Name:    flagTrain,
			Usage:   "Training split: CSV path, file://, sqlite:// or postgres:// URI",
			Value:   defaultTrain,
			Sources: urfave.EnvVars("LEADSCORE_TRAIN"),
		},
		&urfave.StringFlag{
			Name:    flagValid,
			Usage:   "Validation split: CSV path, file://, sqlite:// or postgres:// URI",
			Value:   defaultValid,
			Sources: urfave.EnvVars("LEADSCORE_VALID"),
		},
		&urfave.StringFlag{
			Name:    flagOutput,
			Usage:   "Directory the weights file is written to",
			Value:   defaultOutput,
			Sources: urfave.EnvVars("LEADSCORE_OUTPUT"),
		},
		&urfave.StringFlag{
			Name:      flagConfig,
			Usage:     "YAML file overriding the default pipeline settings (optional)",
			Sources:   urfave.EnvVars("LEADSCORE_CONFIG"),
			TakesFile: true,
		},
		&urfave.StringFlag{
			Name:  flagFormat,
			Usage: "Run summary format [text, json, yaml]",
			Value: formatText,
		},
		&urfave.BoolFlag{
			Name:  flagDebug,
			Usage: "Prints verbose logs (optional, default: false)",
		},
	}
}

func runPipeline(ctx context.Context, cmd *urfave.Command) error {
	cfg, err := config.Load(cmd.String(flagConfig))
	if err != nil {
		return err
	}

	format, err := parseFormat(cmd.String(flagFormat))
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		TrainURI:  cmd.String(flagTrain),
		ValidURI:  cmd.String(flagValid),
		OutputDir: cmd.String(flagOutput),
		Out:       cmd.Root().Writer,
	}

	res, err := pipeline.Run(ctx, cfg, opts)
	if err != nil {
		return err
	}

	if format == formatText {
		return nil
	}
	return encode(cmd.Root().Writer, format, res)
}

func parseFormat(v string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(v)); f {
	case "", formatText:
		return formatText, nil
	case formatJSON:
		return formatJSON, nil
	case formatYAML, "yml":
		return formatYAML, nil
	default:
		return "", fmt.Errorf("unsupported format %q, expected one of [text, json, yaml]", v)
	}
}

func initLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logLevel.Set(level)
	slog.SetDefault(slog.New(logging.NewCLIHandler(os.Stderr, logLevel)))
}

func encode(w io.Writer, format string, v any) error {
	if format == formatYAML {
		return yaml.NewEncoder(w).Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
