package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Reve1io/BomProcessorBackend/internal/catalog/nexar"
	"github.com/Reve1io/BomProcessorBackend/internal/config"
	"github.com/Reve1io/BomProcessorBackend/internal/fx"
	"github.com/Reve1io/BomProcessorBackend/internal/jobs"
	"github.com/Reve1io/BomProcessorBackend/internal/pipeline"
	"github.com/Reve1io/BomProcessorBackend/internal/pipeline/io/local"
	"github.com/Reve1io/BomProcessorBackend/internal/retry"
	"github.com/Reve1io/BomProcessorBackend/internal/util"
	"github.com/Reve1io/BomProcessorBackend/internal/version"
	"github.com/shopspring/decimal"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "version", "--version":
		fmt.Println(version.Current)
		return
	case "local":
		os.Exit(runLocal(ctx, os.Args[2:]))
	case "worker":
		os.Exit(runWorker(ctx, os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runLocal(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("local", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var configPath string
	var inputPath string
	var outputPath string
	var mode string
	fs.StringVar(&configPath, "config", "", "Optional YAML config file path")
	fs.StringVar(&inputPath, "input", "", "Input CSV file path (mpn[,quantity] rows)")
	fs.StringVar(&outputPath, "output", "-", "Output JSON file path, or - for stdout")
	fs.StringVar(&mode, "mode", "full", "Output projection: full or short")
	override := pipelineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if inputPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "local requires --input")
		return 2
	}

	logger := log.New(os.Stderr, "bomproc ", log.LstdFlags)
	p, _, err := buildPipeline(configPath, mode, logger, override)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	items, err := readItems(inputPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "input error: %s\n", err)
		return 2
	}

	out, err := p.Run(ctx, pipeline.Input{Items: items, Mode: pipeline.Mode(mode)})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "run failed: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}
	if err := writeOutput(outputPath, out); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "output error: %s\n", err)
		return 1
	}
	return 0
}

func runWorker(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var configPath string
	var inputPath string
	var outputPath string
	var mode string
	var pollInterval time.Duration
	fs.StringVar(&configPath, "config", "", "Optional YAML config file path")
	fs.StringVar(&inputPath, "input", "", "Input CSV file path (mpn[,quantity] rows)")
	fs.StringVar(&outputPath, "output", "-", "Output JSON file path, or - for stdout")
	fs.StringVar(&mode, "mode", "full", "Output projection: full or short")
	fs.DurationVar(&pollInterval, "poll-interval", 500*time.Millisecond, "Job status poll interval")
	override := pipelineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if inputPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "worker requires --input")
		return 2
	}

	logger := log.New(os.Stderr, "bomproc ", log.LstdFlags)
	p, cfg, err := buildPipeline(configPath, mode, logger, override)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	items, err := readItems(inputPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "input error: %s\n", err)
		return 2
	}

	manager := jobs.NewManager(p.Run, jobs.Options{
		Workers:    cfg.Jobs.Workers,
		QueueSize:  cfg.Jobs.QueueSize,
		JobTimeout: cfg.Jobs.JobTimeout.Std(),
		Logger:     logger,
	})
	manager.Start(ctx)
	defer manager.Stop()

	id, err := manager.Submit(pipeline.Input{Items: items, Mode: pipeline.Mode(mode)})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "submit failed: %s\n", err)
		return 1
	}
	logger.Printf("job submitted: job=%s items=%d", id, len(items))

	for {
		st, ok := manager.Status(id)
		if !ok {
			_, _ = fmt.Fprintf(os.Stderr, "job %s disappeared\n", id)
			return 1
		}
		if st.State.Terminal() {
			if st.State == jobs.StateFailed {
				_, _ = fmt.Fprintf(os.Stderr, "job failed: %s\n", util.RedactSecrets(st.Error))
				return 1
			}
			if err := writeOutput(outputPath, *st.Output); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "output error: %s\n", err)
				return 1
			}
			return 0
		}
		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintln(os.Stderr, "interrupted")
			return 1
		case <-time.After(pollInterval):
		}
	}
}

// pipelineFlags registers command-line overrides for config values and
// returns a function applying only the flags that were explicitly set.
func pipelineFlags(fs *flag.FlagSet) func(*config.Config) {
	chunkSize := fs.Int("chunk-size", 0, "Override bulk match chunk size (env: CHUNK_SIZE)")
	searchLimit := fs.Int("search-limit", 0, "Override variant search limit (env: SEARCH_LIMIT)")
	rateLimitRPS := fs.Float64("rate-limit-rps", 0, "Override global upstream RPS limit, 0 disables (env: RATE_LIMIT_RPS)")
	prefixFallback := fs.Bool("prefix-fallback", false, "Attribute unowned matches by identifier prefix (env: PREFIX_FALLBACK)")

	return func(cfg *config.Config) {
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "chunk-size":
				cfg.Pipeline.ChunkSize = *chunkSize
			case "search-limit":
				cfg.Pipeline.SearchLimit = *searchLimit
			case "rate-limit-rps":
				cfg.Pipeline.RateLimitRPS = *rateLimitRPS
			case "prefix-fallback":
				cfg.Pipeline.PrefixFallback = *prefixFallback
			}
		})
	}
}

// buildPipeline loads config and wires the catalog client, rate cache, and
// pipeline. The rate cache is only constructed for short mode.
func buildPipeline(configPath, mode string, logger *log.Logger, override func(*config.Config)) (*pipeline.Pipeline, config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, config.Config{}, err
	}
	if override != nil {
		override(&cfg)
	}

	client, err := nexar.New(nexar.Config{
		BaseURL:      cfg.Catalog.BaseURL,
		TokenURL:     cfg.Catalog.TokenURL,
		ClientID:     cfg.Catalog.ClientID,
		ClientSecret: cfg.Catalog.ClientSecret,
		Timeout:      cfg.Catalog.Timeout.Std(),
	})
	if err != nil {
		return nil, config.Config{}, err
	}

	var rateCache *fx.Cache
	if pipeline.Mode(mode) == pipeline.ModeShort {
		src, err := fx.NewHTTPSource(cfg.Rates.Endpoint, cfg.Rates.Base, cfg.Rates.Symbol, cfg.Rates.RefreshTimeout.Std())
		if err != nil {
			return nil, config.Config{}, err
		}
		opts := fx.Options{
			TTL:            cfg.Rates.TTL.Std(),
			RefreshTimeout: cfg.Rates.RefreshTimeout.Std(),
			Logger:         logger,
		}
		if cfg.Rates.Fallback > 0 {
			opts.Fallback = decimal.NewFromFloat(cfg.Rates.Fallback)
		}
		rateCache = fx.NewCache(src, opts)
	}

	p := pipeline.New(client, pipeline.Config{
		ChunkSize:   cfg.Pipeline.ChunkSize,
		SearchLimit: cfg.Pipeline.SearchLimit,
		Currency:    cfg.Pipeline.Currency,
		Retry: retry.Policy{
			MaxAttempts: cfg.Pipeline.MaxAttempts,
			Backoff:     cfg.Pipeline.Backoff.Std(),
			BackoffMax:  cfg.Pipeline.BackoffMax.Std(),
		},
		RateLimitRPS:   cfg.Pipeline.RateLimitRPS,
		AllowedSellers: cfg.Pipeline.AllowedSellers,
		PrefixFallback: cfg.Pipeline.PrefixFallback,
		FX:             rateCache,
		Logger:         logger,
	})
	return p, cfg, nil
}

func readItems(path string) ([]pipeline.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return local.ReadItemsCSV(f)
}

func writeOutput(path string, out pipeline.Output) error {
	if path == "-" || path == "" {
		return local.WriteOutputJSON(os.Stdout, out)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := local.WriteOutputJSON(f, out); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `bomproc: BOM enrichment pipeline over a parts catalog API

Usage:
  bomproc <command> [flags]

Commands:
  local    Run the pipeline synchronously over a local CSV
  worker   Submit the run through the async job queue and poll to completion
  version  Print the release version

Examples:
  bomproc local --input bom.csv --output enriched.json
  bomproc worker --input bom.csv --mode short

Environment:
  NEXAR_CLIENT_ID      Catalog API client id (required against the real API)
  NEXAR_CLIENT_SECRET  Catalog API client secret (required against the real API)
  CATALOG_BASE_URL     Catalog endpoint override (e.g. a local mock)
  CATALOG_TOKEN_URL    Token endpoint override; empty disables authentication
  ALLOWED_SELLERS      Comma-separated seller allow-list override
  RATES_ENDPOINT       Exchange-rate endpoint for short mode

Flags and remaining variables are documented per command: bomproc <command> -h

`)
}
