package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/forgebench/forgebench/internal/analysis"
	"github.com/forgebench/forgebench/internal/config"
	"github.com/forgebench/forgebench/internal/events"
	"github.com/forgebench/forgebench/internal/otel"
	"github.com/forgebench/forgebench/internal/runner"
	"github.com/forgebench/forgebench/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	profileName := flag.String("profile", "", "Built-in profile to run (see -list-profiles)")
	configPath := flag.String("config", "", "Stress test config file (.json, .yaml, .yml)")
	out := flag.String("out", "", "JSONL run record output path")
	resultsDir := flag.String("results-dir", "", "Directory for persisted test results")
	seed := flag.Int64("seed", 0, "Seed for reproducible runs (0 = time-based)")
	otelExporter := flag.String("otel-exporter", "none", "Telemetry exporter: none, stdout, otlp-grpc, otlp-http")
	otelEndpoint := flag.String("otel-endpoint", "", "OTLP endpoint (e.g. localhost:4317)")
	listProfiles := flag.Bool("list-profiles", false, "List built-in profiles and exit")
	compare := flag.String("compare", "", "Comma-separated test names to compare from -results-dir")
	flag.Parse()

	if *listProfiles {
		for _, name := range runner.ProfileNames() {
			fmt.Println(name)
		}
		return 0
	}

	if *compare != "" {
		return runCompare(*resultsDir, *compare)
	}

	cfg, err := loadConfig(*profileName, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := setupOTel(ctx, *otelExporter, *otelEndpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer shutdownOTel()

	events.SetGlobalEventLogger(events.NewEventLoggerWithWriter(cfg.Name, os.Stderr))

	var opts runner.Options
	if *resultsDir != "" {
		sink, err := telemetry.NewFileSink(*resultsDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		opts.Sink = sink
	}

	var recorder *telemetry.Recorder
	if *out != "" {
		emitter, err := telemetry.NewEmitter(&telemetry.EmitterConfig{
			OutputPath: *out,
			BufferSize: telemetry.DefaultEmitterConfig().BufferSize,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		recorder = telemetry.NewRecorder(nil, emitter)
		if err := recorder.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		opts.Recorder = recorder
	}

	r := runner.New(opts)
	result, err := r.Run(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if recorder != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := recorder.Stop(stopCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: record stream flush failed: %v\n", err)
		}
		cancel()
	}

	fmt.Print(formatResult(result))

	switch result.Status {
	case analysis.StatusFailed:
		return 1
	case analysis.StatusAborted:
		return 2
	}
	return 0
}

func loadConfig(profileName, configPath string) (*config.StressTestConfig, error) {
	switch {
	case profileName != "" && configPath != "":
		return nil, fmt.Errorf("use either -profile or -config, not both")
	case profileName != "":
		return runner.Profile(profileName)
	case configPath != "":
		return config.Load(configPath)
	default:
		return nil, fmt.Errorf("one of -profile or -config is required")
	}
}

func setupOTel(ctx context.Context, exporter, endpoint string) (func(), error) {
	if exporter == "" || exporter == string(otel.ExporterNone) {
		return func() {}, nil
	}

	tracer, err := otel.NewTracer(ctx, &otel.Config{
		Enabled:      true,
		ServiceName:  "forgebench",
		ExporterType: otel.ExporterType(exporter),
		OTLPEndpoint: endpoint,
		OTLPInsecure: true,
		SampleRate:   1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}
	otel.SetGlobalTracer(tracer)

	meters, err := otel.NewMetrics(ctx, &otel.MetricsConfig{
		Enabled:      true,
		ServiceName:  "forgebench",
		ExporterType: otel.ExporterType(exporter),
		OTLPEndpoint: endpoint,
		OTLPInsecure: true,
	})
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	otel.SetGlobalMetrics(meters)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tracer.Shutdown(shutdownCtx)
		meters.Shutdown(shutdownCtx)
	}, nil
}

func runCompare(resultsDir, names string) int {
	if resultsDir == "" {
		fmt.Fprintln(os.Stderr, "Error: -compare requires -results-dir")
		return 1
	}

	sink, err := telemetry.NewFileSink(resultsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	ids, err := sink.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Latest result per test name, by completion time.
	latest := make(map[string]*runner.TestResult)
	for _, id := range ids {
		data, err := sink.Load(ctx, id)
		if err != nil {
			continue
		}
		var result runner.TestResult
		if err := json.Unmarshal(data, &result); err != nil {
			continue
		}
		if prev, ok := latest[result.Name]; !ok || result.EndTime.After(prev.EndTime) {
			r := result
			latest[result.Name] = &r
		}
	}

	var summaries []analysis.RunSummary
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		result, ok := latest[name]
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: no stored result for test %q\n", name)
			return 1
		}
		summaries = append(summaries, result.Summary())
	}

	fmt.Print(analysis.FormatComparisonText(analysis.BuildComparison(summaries)))
	return 0
}

func formatResult(result *runner.TestResult) string {
	var b strings.Builder
	m := result.Metrics

	fmt.Fprintf(&b, "\n%s\n", result.Name)
	fmt.Fprintf(&b, "%s\n", strings.Repeat("=", len(result.Name)))
	fmt.Fprintf(&b, "Status:      %s\n", result.Status)
	fmt.Fprintf(&b, "Duration:    %s\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Fprintf(&b, "Test ID:     %s\n\n", result.ID)

	fmt.Fprintf(&b, "Requests:    %d total, %d ok, %d failed (error rate %.2f%%)\n",
		m.Requests.Total, m.Requests.Successful, m.Requests.Failed, m.Requests.ErrorRate*100)
	fmt.Fprintf(&b, "Latency ms:  avg %.1f  min %d  p50 %d  p95 %d  p99 %d  max %d\n",
		m.Requests.AvgResponseTimeMs, m.Requests.MinResponseTimeMs,
		m.Requests.P50ResponseTimeMs, m.Requests.P95ResponseTimeMs,
		m.Requests.P99ResponseTimeMs, m.Requests.MaxResponseTimeMs)
	fmt.Fprintf(&b, "Throughput:  %.2f req/s\n", m.Requests.Throughput)
	fmt.Fprintf(&b, "Users:       peak %d\n", m.Performance.PeakConcurrentUsers)
	fmt.Fprintf(&b, "Resources:   peak cpu %.1f%%, peak memory %.1f%%\n",
		m.Resources.PeakCPUPercent, m.Resources.PeakMemoryFraction*100)

	if len(result.Evaluation.Reasons) > 0 {
		b.WriteString("\nFailure reasons:\n")
		for _, reason := range result.Evaluation.Reasons {
			fmt.Fprintf(&b, "  - %s\n", reason)
		}
	}

	if len(result.Evaluation.Bottlenecks) > 0 {
		b.WriteString("\nBottlenecks:\n")
		for _, bn := range result.Evaluation.Bottlenecks {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", bn.Severity, bn.Type, bn.Description)
		}
	}

	if len(result.Evaluation.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range result.Evaluation.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", rec)
		}
	}

	if sigs := analysis.ExtractSignatures(result.Errors, 5); len(sigs) > 0 {
		b.WriteString("\nTop error signatures:\n")
		for _, sig := range sigs {
			scenarios := strings.Join(sig.AffectedScenarios, ", ")
			fmt.Fprintf(&b, "  %4dx %s", sig.Count, sig.Pattern)
			if scenarios != "" {
				fmt.Fprintf(&b, " (scenarios: %s)", scenarios)
			}
			b.WriteString("\n")
		}
	}

	if points := analysis.TrendFromTimeline(result.Timeline); len(points) > 0 {
		growth := analysis.NewTrendDetector().DetectMemoryGrowth(points)
		if growth.Growing {
			fmt.Fprintf(&b, "\nMemory trend: %s (slope %.4f per sample)\n", growth.Details, growth.Slope)
		}
	}

	appendFiredAlerts(&b, result)
	return b.String()
}

func appendFiredAlerts(b *strings.Builder, result *runner.TestResult) {
	var alerts []string
	for _, entry := range result.Timeline {
		if entry.Type != "alert" {
			continue
		}
		alerts = append(alerts, fmt.Sprintf("  %s %s (%.2f)",
			entry.Timestamp.Format(time.RFC3339), entry.Event, entry.Value))
	}
	if len(alerts) == 0 {
		return
	}
	sort.Strings(alerts)
	b.WriteString("\nAlerts fired:\n")
	for _, a := range alerts {
		fmt.Fprintln(b, a)
	}
}
