// Command sentinel is a small CLI front-end over the detection/redaction
// engine, grounded on cmd/vura's subcommand dispatch (detect/redact/
// serve-jsonrpc standing in for that CLI's scan/proxy/wrap commands) and
// cmd/vura/main.go's env-var-driven construction (logging.Setup, Redis
// client, signal-based shutdown).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vura/sentinel/internal/allowcache"
	"github.com/vura/sentinel/internal/allowdeny"
	"github.com/vura/sentinel/internal/config"
	"github.com/vura/sentinel/internal/jsonrpc"
	"github.com/vura/sentinel/internal/logging"
	"github.com/vura/sentinel/internal/metricsink"
	"github.com/vura/sentinel/internal/redact"
	"github.com/vura/sentinel/internal/registry"
	"github.com/vura/sentinel/internal/score"
	"github.com/vura/sentinel/internal/validate"
	"github.com/vura/sentinel/pkg/piitypes"
)

func main() {
	logger := logging.Setup(envOr("LOG_LEVEL", "info"), os.Stderr)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	reg, err := buildRegistry(logger)
	if err != nil {
		logger.Error("failed to build registry", "error", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "detect":
		handleDetect(reg, os.Args[2:])
	case "redact":
		handleRedact(reg, os.Args[2:])
	case "serve-jsonrpc":
		handleServeJSONRPC(reg, logger)
	case "version", "--version", "-v":
		fmt.Println("sentinel dev")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`sentinel — PII detection and redaction engine

Usage:
  sentinel <command> [arguments]

Commands:
  detect <text|->          Scan text for PII and print hits as JSON
  redact <text|->          Redact PII in text and print the result
  serve-jsonrpc             Redact a newline-delimited JSON-RPC stream on stdin/stdout
  version                   Show version

Environment:
  SENTINEL_CONFIG         Path to a YAML config file (default: unset, built-in defaults)
  SENTINEL_HMAC_KEY       HMAC key for tokenize actions (required if any rule tokenizes)
  SENTINEL_ENVIRONMENT    production | development | test (default: production)
  SENTINEL_REDIS_ADDR     Redis address for the metrics sink (optional)
  LOG_LEVEL               debug | info | warn | error (default: info)`)
}

func buildRegistry(logger *slog.Logger) (*registry.Registry, error) {
	cfg := registry.DefaultConfig()
	cfg.Logger = logger

	if env := envOr("SENTINEL_ENVIRONMENT", ""); env != "" {
		cfg.Environment = allowdeny.Environment(env)
	}
	if key := envOr("SENTINEL_HMAC_KEY", ""); key != "" {
		cfg.HMACKey = []byte(key)
	}

	if path := envOr("SENTINEL_CONFIG", ""); path != "" {
		file, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		applyFileConfig(&cfg, file)
	}

	if addr := envOr("SENTINEL_REDIS_ADDR", ""); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not available, running without a persistent metrics sink", "error", err)
		} else {
			cfg.MetricSink = metricsink.NewRedisSinkWithClient(client)
			cfg.AllowDeny.Cache = allowcache.NewWithClient(client)
		}
	}

	return registry.New(cfg)
}

func applyFileConfig(cfg *registry.Config, f *config.File) {
	if f.DefaultAction != "" {
		cfg.DefaultAction = redact.Action(f.DefaultAction)
	}
	if f.Environment != "" {
		cfg.Environment = allowdeny.Environment(f.Environment)
	}
	if f.Sensitivity != "" {
		cfg.Sensitivity = score.Sensitivity(f.Sensitivity)
	}
	if f.ConfidenceThreshold != nil {
		cfg.ConfidenceThreshold = f.ConfidenceThreshold
	}
	if f.EnableConfidenceScoring != nil {
		cfg.EnableConfidenceScoring = *f.EnableConfidenceScoring
	}
	if f.EnableContextualConfidence != nil {
		cfg.EnableContextualConfidence = *f.EnableContextualConfidence
	}
	if f.EnableJSONDetection != nil {
		cfg.EnableJSONDetection = *f.EnableJSONDetection
	}
	if f.ValidationStrictness != "" {
		cfg.ValidationStrictness = validate.Strictness(f.ValidationStrictness)
	}
	if f.ContextualSuppression != nil {
		cfg.ContextualSuppression = *f.ContextualSuppression
	}
	if f.ContextualBoost != nil {
		cfg.ContextualBoost = *f.ContextualBoost
	}
	if len(f.ContextHints) > 0 {
		cfg.ContextHints = make(map[string]struct{}, len(f.ContextHints))
		for _, h := range f.ContextHints {
			cfg.ContextHints[h] = struct{}{}
		}
	}
	if len(f.RuleCatalogOverrides) > 0 {
		overrides := f.RuleCatalogOverrides
		cfg.CatalogOverride = func(catalog []piitypes.Rule) []piitypes.Rule {
			return config.ApplyOverrides(catalog, overrides)
		}
	}
	typeRules := f.RuleTypeMap()
	if len(typeRules) > 0 {
		cfg.Rules = make(map[piitypes.PIIType]redact.TypeRule, len(typeRules))
		for t, r := range typeRules {
			cfg.Rules[t] = redact.TypeRule{Action: redact.Action(r.Action), PreserveLast4: r.PreserveLast4}
		}
	}
	cfg.AllowDeny.Allow = convertPatternMap(f.AllowDeny.Allow)
	cfg.AllowDeny.Deny = convertPatternMap(f.AllowDeny.Deny)
	cfg.AllowDeny.AllowPrivateIPs = f.AllowDeny.AllowPrivateIPs
	cfg.AllowDeny.AllowTestPatterns = f.AllowDeny.AllowTestPatterns
}

func handleDetect(reg *registry.Registry, args []string) {
	text := readTextArg(args, "detect")
	result, err := reg.Detect(context.Background(), text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "detect failed: %v\n", err)
		os.Exit(1)
	}
	out := map[string]any{"found": len(result.Hits) > 0, "count": len(result.Hits), "hits": result.Hits}
	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
}

func handleRedact(reg *registry.Registry, args []string) {
	text := readTextArg(args, "redact")
	redacted, err := reg.RedactText(context.Background(), text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redact failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(redacted)
}

func handleServeJSONRPC(reg *registry.Registry, logger *slog.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := jsonrpc.New(reg, jsonrpc.WithLogger(logger))
	logger.Info("serving jsonrpc redaction stream", "stream_id", t.StreamID())
	if err := t.Run(ctx, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "jsonrpc stream error: %v\n", err)
		os.Exit(1)
	}
}

func readTextArg(args []string, usage string) string {
	if len(args) == 0 {
		fmt.Printf("Usage: sentinel %s <text|->\n", usage)
		os.Exit(1)
	}
	if args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading stdin: %v\n", err)
			os.Exit(1)
		}
		return string(data)
	}
	return strings.Join(args, " ")
}

func convertPatternMap(in map[string][]string) map[piitypes.PIIType][]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[piitypes.PIIType][]string, len(in))
	for k, v := range in {
		out[piitypes.PIIType(k)] = v
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
