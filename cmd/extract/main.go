// Command extract reads Instagram usernames from a directory of cropped
// screenshot regions, reconciles the classical and vision-model engines,
// and appends accepted usernames to the markdown registry files.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/beyourahi/extract-usernames/infrastructure/consensus"
	"github.com/beyourahi/extract-usernames/infrastructure/middleware"
	"github.com/beyourahi/extract-usernames/infrastructure/ocr"
	"github.com/beyourahi/extract-usernames/infrastructure/profile"
	"github.com/beyourahi/extract-usernames/infrastructure/vlm"
	"github.com/beyourahi/extract-usernames/internal/application"
	"github.com/beyourahi/extract-usernames/internal/report"
)

func main() {
	var (
		inputDir   = flag.String("input", "images", "Directory of cropped username regions")
		configPath = flag.String("config", "", "YAML config file path (defaults apply when empty)")
		provider   = flag.String("provider", "", "Override vision provider: openai, anthropic, or google")
		model      = flag.String("model", "", "Override vision model name")
		workers    = flag.Int("workers", 0, "Override worker count (0 = auto)")
	)
	flag.Parse()

	config, err := application.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyOverrides(&config, *provider, *model, *workers)

	items, err := loadImages(*inputDir)
	if err != nil {
		log.Fatalf("Failed to read input directory: %v", err)
	}
	if len(items) == 0 {
		log.Fatalf("No images found in %s", *inputDir)
	}

	runner, store, modelName, err := buildRunner(config)
	if err != nil {
		log.Fatalf("Failed to assemble pipeline: %v", err)
	}

	fmt.Printf("Processing %d images with %d workers (%s / %s)\n\n",
		len(items), config.WorkerCount(), config.Provider.Name, modelName)

	start := time.Now()
	summary, _, err := runner.Run(context.Background(), items)
	if err != nil {
		log.Fatalf("Batch run failed: %v", err)
	}
	elapsed := time.Since(start)

	newVerified, newReview, err := store.Append(summary.Results)
	if err != nil {
		log.Fatalf("Failed to update registry files: %v", err)
	}

	stats := buildStats(config, summary, *inputDir, modelName, newVerified, newReview, elapsed)
	if err := store.WriteReport(stats); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}

	printSummary(summary, stats, config)
}

// applyOverrides layers command-line overrides onto the loaded config and
// revalidates the result.
func applyOverrides(config *application.Config, provider, model string, workers int) {
	if provider != "" {
		config.Provider.Name = provider
		config.Provider.APIKeyEnv = defaultKeyEnv(provider)
		config.Provider.Model = ""
	}
	if model != "" {
		config.Provider.Model = model
	}
	if workers > 0 {
		config.Batch.Workers = workers
	}
	if err := config.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
}

func defaultKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "google":
		return "GEMINI_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

func defaultModel(provider string) string {
	switch provider {
	case "anthropic":
		return vlm.AnthropicDefaultModel
	case "google":
		return vlm.GoogleDefaultModel
	default:
		return vlm.OpenAIDefaultModel
	}
}

// buildRunner assembles the full extraction stack from configuration.
func buildRunner(config application.Config) (*application.BatchRunner, *report.Store, string, error) {
	metrics := middleware.NewPrometheusMetrics()

	modelName := config.Provider.Model
	if modelName == "" {
		modelName = defaultModel(config.Provider.Name)
	}

	apiKey := os.Getenv(config.Provider.APIKeyEnv)
	if apiKey == "" {
		return nil, nil, "", fmt.Errorf("environment variable %s is not set", config.Provider.APIKeyEnv)
	}

	// Outermost first: metrics and tracing observe everything including
	// retries; the timeout bounds each individual provider call.
	client, err := vlm.NewClient(config.Provider.Name, vlm.ClientConfig{
		APIKey: apiKey,
		Model:  modelName,
		Middleware: []vlm.Middleware{
			vlm.MetricsMiddleware(metrics),
			vlm.TracingMiddleware("extract-usernames"),
			vlm.RetryMiddleware(config.Provider.MaxRetries, 500*time.Millisecond, 8*time.Second),
			vlm.RateLimitMiddleware(rate.Limit(config.Provider.RequestsPerSecond), config.Provider.Burst),
			vlm.CircuitBreakerMiddleware(config.Provider.BreakerFailures, config.Provider.BreakerCooldown),
			vlm.TimeoutMiddleware(config.Provider.Timeout),
		},
	})
	if err != nil {
		return nil, nil, "", fmt.Errorf("vision client: %w", err)
	}

	holistic, err := vlm.NewEngine("holistic", config.Engine, client)
	if err != nil {
		return nil, nil, "", fmt.Errorf("holistic engine: %w", err)
	}

	recognizer, err := ocr.NewClient(ocr.ClientConfig{
		BaseURL: config.Recognizer.BaseURL,
		Timeout: config.Recognizer.Timeout,
	})
	if err != nil {
		return nil, nil, "", fmt.Errorf("recognizer client: %w", err)
	}

	voter, err := consensus.NewVariantVoter("variant-voter", config.Voter)
	if err != nil {
		return nil, nil, "", fmt.Errorf("voter: %w", err)
	}
	correction, err := consensus.NewCorrectionLayer("correction", config.Correction)
	if err != nil {
		return nil, nil, "", fmt.Errorf("correction layer: %w", err)
	}
	merger, err := consensus.NewEngineMerger("engine-merger", config.Merger)
	if err != nil {
		return nil, nil, "", fmt.Errorf("merger: %w", err)
	}
	classifier, err := consensus.NewClassifier("classifier", config.Classifier)
	if err != nil {
		return nil, nil, "", fmt.Errorf("classifier: %w", err)
	}

	pipeline, err := application.NewPipeline(application.PipelineDeps{
		Recognizer: recognizer,
		Holistic:   holistic,
		Voter:      voter,
		Correction: correction,
		Merger:     merger,
		Classifier: classifier,
		Metrics:    metrics,
		Variants:   config.Batch.Variants,
	})
	if err != nil {
		return nil, nil, "", fmt.Errorf("pipeline: %w", err)
	}

	store := report.NewStore(
		config.Registry.VerifiedPath,
		config.Registry.ReviewPath,
		config.Registry.ReportPath,
	)

	deps := application.BatchRunnerDeps{
		Pipeline:    pipeline,
		Source:      store,
		Metrics:     metrics,
		Workers:     config.WorkerCount(),
		MaxDistance: config.Registry.NearDuplicateDistance,
	}
	if config.Existence.Enabled {
		checkerConfig := profile.DefaultCheckerConfig()
		checkerConfig.Timeout = config.Existence.Timeout
		checkerConfig.RequestsPerSecond = config.Existence.RequestsPerSecond
		checker, err := profile.NewChecker(checkerConfig)
		if err != nil {
			return nil, nil, "", fmt.Errorf("existence checker: %w", err)
		}
		deps.Checker = checker
	}

	runner, err := application.NewBatchRunner(deps)
	if err != nil {
		return nil, nil, "", fmt.Errorf("batch runner: %w", err)
	}
	return runner, store, modelName, nil
}

// loadImages collects the image files from the input directory in sorted
// order so repeated runs process the batch deterministically.
func loadImages(dir string) ([]application.BatchItem, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".webp":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	items := make([]application.BatchItem, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		items = append(items, application.BatchItem{Name: name, Image: data})
	}
	return items, nil
}

// buildStats derives the report figures from the batch summary.
func buildStats(
	config application.Config,
	summary application.BatchSummary,
	inputDir, modelName string,
	newVerified, newReview int,
	elapsed time.Duration,
) report.RunStats {
	methods := make(map[string]int)
	var confidenceSum float64
	var extracted int
	for _, r := range summary.Results {
		if r.Method != "" {
			methods[r.Method]++
		}
		if r.Extracted() {
			confidenceSum += r.Confidence
			extracted++
		}
	}

	avg := 0.0
	if extracted > 0 {
		avg = confidenceSum / float64(extracted)
	}

	return report.RunStats{
		Total:          len(summary.Results),
		Verified:       summary.Verified,
		Unverified:     summary.Unverified,
		Review:         summary.Review,
		Failed:         summary.Failed,
		Errors:         summary.Errors,
		Duplicates:     summary.Duplicates,
		NearDuplicates: summary.NearDuplicates,
		NewVerified:    newVerified,
		NewReview:      newReview,
		Methods:        methods,
		AvgConfidence:  avg,
		Elapsed:        elapsed,
		Workers:        config.WorkerCount(),
		InputDir:       inputDir,
		Provider:       config.Provider.Name,
		Model:          modelName,
		HighTierFloor:  config.Classifier.HighTier,
		ReviewFloor:    config.Classifier.ReviewFloor,
		MaxDistance:    config.Registry.NearDuplicateDistance,
	}
}

func printSummary(summary application.BatchSummary, stats report.RunStats, config application.Config) {
	fmt.Printf("Done in %.1fs\n\n", stats.Elapsed.Seconds())
	fmt.Printf("  Verified:        %d\n", summary.Verified)
	fmt.Printf("  Unverified:      %d\n", summary.Unverified)
	fmt.Printf("  Needs review:    %d\n", summary.Review)
	fmt.Printf("  Failed:          %d\n", summary.Failed+summary.Errors)
	fmt.Printf("  Duplicates:      %d\n", summary.Duplicates)
	fmt.Printf("  Near-duplicates: %d\n\n", summary.NearDuplicates)
	fmt.Printf("  New verified entries: %d\n", stats.NewVerified)
	fmt.Printf("  New review entries:   %d\n\n", stats.NewReview)
	fmt.Printf("Report written to %s\n", config.Registry.ReportPath)
}
