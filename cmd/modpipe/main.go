package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	_ "net/http/pprof"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/stride-social/modpipe/automod"
	"github.com/stride-social/modpipe/automod/classifier"
	"github.com/stride-social/modpipe/automod/content"
	"github.com/stride-social/modpipe/automod/engine"
	"github.com/stride-social/modpipe/automod/keyword"
	"github.com/stride-social/modpipe/automod/resultstore"
	"github.com/stride-social/modpipe/automod/source"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "modpipe",
		Usage:   "content moderation pipeline for posts and strides",
		Version: versioninfo.Short(),
	}

	app.Flags = appFlags()

	app.Commands = []*cli.Command{
		serveCmd,
		moderateCmd,
		fakeContentCmd,
	}

	return app.Run(args)
}

// flags shared by every subcommand
func appFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "provider-host",
			Usage:   "method, hostname, and port of the text moderation provider; fallback classifier only if empty",
			EnvVars: []string{"MODPIPE_PROVIDER_HOST", "MODERATION_PROVIDER_HOST"},
		},
		&cli.StringFlag{
			Name:    "provider-token",
			Usage:   "API token for the text moderation provider",
			EnvVars: []string{"MODPIPE_PROVIDER_TOKEN", "MODERATION_PROVIDER_TOKEN"},
		},
		&cli.DurationFlag{
			Name:    "provider-timeout",
			Usage:   "timeout for a single moderation provider call",
			Value:   10 * time.Second,
			EnvVars: []string{"MODPIPE_PROVIDER_TIMEOUT"},
		},
		&cli.Float64Flag{
			Name:    "provider-rate-limit",
			Usage:   "max number of requests per second to the moderation provider (0 for unlimited)",
			Value:   10,
			EnvVars: []string{"MODPIPE_PROVIDER_RATE_LIMIT"},
		},
		&cli.Float64Flag{
			Name:    "flag-threshold",
			Usage:   "default confidence above which a provider category counts as flagged",
			Value:   0.5,
			EnvVars: []string{"MODPIPE_FLAG_THRESHOLD"},
		},
		&cli.StringFlag{
			Name:    "category-thresholds",
			Usage:   "per-category threshold overrides, eg: hate=0.4,sexual=0.3",
			EnvVars: []string{"MODPIPE_CATEGORY_THRESHOLDS"},
		},
		&cli.StringFlag{
			Name:    "denylist-file",
			Usage:   "JSON file with fallback classifier terms (array, or object with a 'denylist' key)",
			EnvVars: []string{"MODPIPE_DENYLIST_FILE"},
		},
		&cli.BoolFlag{
			Name:    "fallback-fold-accents",
			Usage:   "fallback classifier also ignores accents when matching terms (eg 'KÍLL' matches 'kill')",
			EnvVars: []string{"MODPIPE_FALLBACK_FOLD_ACCENTS"},
		},
		&cli.StringFlag{
			Name:    "source-url",
			Usage:   "URL returning the content batch to moderate (JSON array or {\"posts\": [...]} envelope)",
			EnvVars: []string{"MODPIPE_SOURCE_URL"},
		},
		&cli.IntFlag{
			Name:    "concurrency",
			Usage:   "max in-flight classification calls per run",
			Value:   8,
			EnvVars: []string{"MODPIPE_CONCURRENCY"},
		},
		&cli.DurationFlag{
			Name:    "run-timeout",
			Usage:   "deadline for a whole moderation run; partial results are returned past it",
			Value:   60 * time.Second,
			EnvVars: []string{"MODPIPE_RUN_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"MODPIPE_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
		},
	}
}

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// parses "hate=0.4,sexual=0.3"
func parseThresholds(s string) (map[string]float64, error) {
	out := map[string]float64{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, val, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid category threshold (expected name=value): %q", part)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || f < 0 || f > 1 {
			return nil, fmt.Errorf("invalid category threshold value: %q", part)
		}
		out[strings.TrimSpace(name)] = f
	}
	return out, nil
}

func configEngine(cctx *cli.Context, logger *slog.Logger) (*automod.Engine, error) {
	dl := keyword.DefaultDenylist()
	if p := cctx.String("denylist-file"); p != "" {
		loaded, err := keyword.LoadDenylistJSON(p)
		if err != nil {
			return nil, fmt.Errorf("loading denylist: %w", err)
		}
		logger.Info("loaded fallback denylist from JSON", "path", p, "terms", loaded.Len())
		dl = loaded
	}
	if cctx.Bool("fallback-fold-accents") {
		dl = dl.WithAccentFolding()
	}

	eng := &automod.Engine{
		Logger:     logger,
		Normalizer: content.NewNormalizer(logger),
		Fallback:   classifier.NewKeywordClassifier(dl, logger),
		Config: automod.EngineConfig{
			Concurrency: cctx.Int("concurrency"),
		},
	}

	if host := cctx.String("provider-host"); host != "" {
		thresholds, err := parseThresholds(cctx.String("category-thresholds"))
		if err != nil {
			return nil, err
		}
		pc, err := classifier.NewProviderClassifier(automod.ProviderConfig{
			Host:             host,
			APIToken:         cctx.String("provider-token"),
			Timeout:          cctx.Duration("provider-timeout"),
			DefaultThreshold: cctx.Float64("flag-threshold"),
			Thresholds:       thresholds,
			RateLimit:        cctx.Float64("provider-rate-limit"),
		}, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("configuring moderation provider", "host", host)
		eng.Primary = pc
	} else {
		logger.Warn("no moderation provider configured, using fallback classifier only")
	}
	return eng, nil
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the moderation API daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3700",
			EnvVars: []string{"MODPIPE_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3701",
			EnvVars: []string{"MODPIPE_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for stored results (in-process memory if empty): redis://<user>:<pass>@<hostname>:6379/<db>",
			EnvVars: []string{"MODPIPE_REDIS_URL"},
		},
		&cli.DurationFlag{
			Name:    "result-ttl",
			Usage:   "how long moderation run results are kept for re-reading",
			Value:   30 * time.Minute,
			EnvVars: []string{"MODPIPE_RESULT_TTL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, os.Stdout)
		configOTEL("modpipe")

		eng, err := configEngine(cctx, logger)
		if err != nil {
			return err
		}

		var results resultstore.ResultStore
		if redisURL := cctx.String("redis-url"); redisURL != "" {
			rs, err := resultstore.NewRedisResultStore(redisURL, cctx.Duration("result-ttl"))
			if err != nil {
				return fmt.Errorf("initializing redis resultstore: %v", err)
			}
			results = rs
		} else {
			results = resultstore.NewMemResultStore(1_000, cctx.Duration("result-ttl"))
		}

		var src source.ContentSource
		if u := cctx.String("source-url"); u != "" {
			src = source.NewHTTPSource(u, logger)
		}

		srv, err := NewServer(
			Config{
				Logger:     logger,
				Engine:     eng,
				Source:     src,
				Results:    results,
				RunTimeout: cctx.Duration("run-timeout"),
				Bind:       cctx.String("bind"),
			},
		)
		if err != nil {
			return fmt.Errorf("failed to construct server: %v", err)
		}

		// prometheus HTTP endpoint: /metrics
		go func() {
			runtime.SetBlockProfileRate(10)
			runtime.SetMutexProfileFraction(10)
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		return srv.RunAPI()
	},
}

var moderateCmd = &cli.Command{
	Name:      "moderate",
	Usage:     "one-shot moderation run over a JSON file (or --source-url), printing the result envelope",
	ArgsUsage: "[<file.json>]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "filter",
			Usage: "which items to print: all, flagged, safe",
			Value: engine.FilterAll,
		},
		&cli.StringFlag{
			Name:  "sort",
			Usage: "item order: input, newest, oldest, severity",
			Value: engine.SortInput,
		},
	},
	Action: func(cctx *cli.Context) error {
		// stdout is for the result envelope
		logger := configLogger(cctx, os.Stderr)

		var src source.ContentSource
		switch {
		case cctx.Args().Len() > 0:
			src = &source.FileSource{Path: cctx.Args().First()}
		case cctx.String("source-url") != "":
			src = source.NewHTTPSource(cctx.String("source-url"), logger)
		default:
			return fmt.Errorf("need a JSON file argument or --source-url")
		}

		eng, err := configEngine(cctx, logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cctx.Duration("run-timeout"))
		defer cancel()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		res, err := eng.RunSource(ctx, src)
		if err != nil {
			if encErr := enc.Encode(engine.NewErrorResponse(err)); encErr != nil {
				return encErr
			}
			return err
		}
		resp, err := shapeResponse(engine.NewResponse(res), cctx.String("filter"), cctx.String("sort"))
		if err != nil {
			return err
		}
		return enc.Encode(resp)
	},
}

var fakeContentCmd = &cli.Command{
	Name:  "fake-content",
	Usage: "print a generated batch of raw content (mixed post and stride shapes) as JSON",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "count",
			Usage: "number of items to generate",
			Value: 100,
		},
		&cli.Float64Flag{
			Name:  "flagged-ratio",
			Usage: "fraction of items containing a denylisted term",
			Value: 0.1,
		},
		&cli.Int64Flag{
			Name:  "seed",
			Usage: "random seed (0 for a random batch)",
		},
	},
	Action: func(cctx *cli.Context) error {
		faker := gofakeit.New(cctx.Int64("seed"))
		batch := fakeContent(faker, cctx.Int("count"), cctx.Float64("flagged-ratio"))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(batch)
	},
}
