/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/gtrans/internal"
	"github.com/valpere/gtrans/internal/batch"
	"github.com/valpere/gtrans/internal/detector"
	"github.com/valpere/gtrans/internal/metrics"
	"github.com/valpere/gtrans/internal/orchestrator"
	"github.com/valpere/gtrans/internal/store"
	"github.com/valpere/gtrans/internal/validator"
)

var version = "0.3.0"

// errUsage means the usage text has already been printed.
var errUsage = errors.New("usage")

var (
	inputDir  string
	outputDir string
	extension string
	verbose   bool
	resumeID  string
)

var rootCmd = &cobra.Command{
	Use:   "gtrans <from_lang> <to_lang> -i <input dir> -o <output dir>",
	Short: "Translate a batch of files",
	Long: `Translate every file below an input directory and mirror the directory
tree under an output directory. Each output file is named after its source
file with the extension replaced by the target language code.

Use "auto" as from_lang to detect the source language of each file.

Example:
  gtrans de en -i ./docs -o ./docs-en -x txt
  gtrans auto uk -i ./notes -o ./notes-uk --services google,mymemory --workers 4`,
	Version:       version,
	Args:          cobra.MaximumNArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBatch,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	if len(args) < 2 || inputDir == "" || outputDir == "" {
		out := cmd.OutOrStdout()
		if len(args) < 2 {
			fmt.Fprintln(out, "Please indicate source and target languages.")
		} else {
			fmt.Fprintln(out, "Please indicate input and output directories.")
		}
		fmt.Fprint(out, cmd.UsageString())
		return errUsage
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	if verbose && logger.GetLevel() < logrus.InfoLevel {
		logger.SetLevel(logrus.InfoLevel)
	}

	srcRoot, err := filepath.Abs(inputDir)
	if err != nil {
		return fmt.Errorf("invalid input directory: %w", err)
	}
	outRoot, err := filepath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("invalid output directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := internal.TranslationRequest{
		ID:         uuid.NewString(),
		SourceLang: args[0],
		TargetLang: args[1],
		SourceRoot: srcRoot,
		OutputRoot: outRoot,
		Extension:  strings.TrimPrefix(extension, "."),
		Timestamp:  time.Now(),
	}

	var db *store.Store
	if cfg.DBPath != "" {
		db, err = store.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
	}

	services, closeServices, err := buildServices(cfg, logger)
	if err != nil {
		return err
	}
	defer closeServices()

	// One lingua detector serves both source detection and output checks.
	var det *detector.Detector
	if strings.EqualFold(req.SourceLang, "auto") || cfg.Validate {
		det = detector.New()
	}
	outputCheck := validator.New(nil)
	if cfg.Validate {
		outputCheck = validator.New(det)
	}

	orch := orchestrator.New(services, orchestrator.OrchestratorConfig{
		Timeout:     cfg.Timeout,
		MaxAttempts: cfg.MaxRetries,
		ChunkSize:   cfg.ChunkSize,
		Validator:   outputCheck,
	})

	if err := orch.IsAvailable(ctx); err != nil {
		return fmt.Errorf("no translation service is available: %w", err)
	}

	completed := make(map[string]bool)
	bcfg := batch.Config{
		Workers:   cfg.Workers,
		FailFast:  cfg.FailFast,
		Verbose:   verbose,
		Encoding:  cfg.Encoding,
		Completed: completed,
		Logger:    logger,
	}
	if strings.EqualFold(req.SourceLang, "auto") {
		bcfg.Detector = det
	}
	if db != nil && !cfg.NoCache {
		bcfg.Memory = db
	}
	if cfg.MetricsFile != "" {
		bcfg.Metrics = metrics.New()
	}
	if db != nil {
		// req.ID changes when a run is resumed.
		bcfg.OnResult = func(res batch.FileResult) {
			recordResult(ctx, db, req.ID, res, logger)
		}
	}

	tr, err := batch.New(afero.NewOsFs(), orch, bcfg)
	if err != nil {
		return err
	}

	if err := startRun(ctx, db, &req, completed, logger); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"run":      req.ID,
		"services": strings.Join(orch.Names(), ","),
		"workers":  cfg.Workers,
		"chunk":    orch.ChunkSize(),
	}).Debug("Starting batch")

	if !verbose {
		fmt.Printf("Translating files in %s from %s to %s... ", inputDir, req.SourceLang, req.TargetLang)
	}

	report, runErr := tr.TranslateTree(ctx, req)

	if db != nil {
		counts := store.RunCounts{
			Translated: report.Translated,
			Cached:     report.Cached,
			Skipped:    report.Skipped,
			Failed:     report.Failed,
		}
		if runErr != nil && counts.Failed == 0 {
			counts.Failed = 1
		}
		// The run context may already be cancelled.
		if err := db.FinishRun(context.Background(), req.ID, counts); err != nil {
			logger.WithError(err).Warn("Failed to finish run record")
		}
	}
	if bcfg.Metrics != nil {
		if err := bcfg.Metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.WithError(err).Warn("Failed to write metrics")
		}
	}

	if !verbose {
		fmt.Println("Done.")
	}
	printSummary(report, verbose)

	if runErr != nil {
		return runErr
	}
	if report.Failed > 0 {
		if db != nil {
			fmt.Fprintf(os.Stderr, "Retry the failed files with --resume %s\n", req.ID)
		}
		return fmt.Errorf("%d of %d files failed", report.Failed, report.Total())
	}
	return nil
}

// startRun creates or reopens the run record. For a resumed run, the source
// files it already completed are added to completed.
func startRun(ctx context.Context, db *store.Store, req *internal.TranslationRequest, completed map[string]bool, logger *logrus.Logger) error {
	if resumeID == "" {
		if db == nil {
			return nil
		}
		if err := db.CreateRun(ctx, *req); err != nil {
			return fmt.Errorf("failed to create run: %w", err)
		}
		logger.WithField("run", req.ID).Info("Run started")
		return nil
	}

	if db == nil {
		return fmt.Errorf("--resume requires --db to be set")
	}

	run, err := db.GetRun(ctx, resumeID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}
	if run.SourceRoot != req.SourceRoot || run.OutputRoot != req.OutputRoot || run.TargetLang != req.TargetLang {
		return fmt.Errorf("run %s translated %s to %s into %s, not this batch", run.ID, run.SourceRoot, run.TargetLang, run.OutputRoot)
	}
	if run.Extension != req.Extension {
		return fmt.Errorf("run %s used extension filter %q, not %q", run.ID, run.Extension, req.Extension)
	}

	done, err := db.CompletedFiles(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load completed files: %w", err)
	}
	if err := db.ReopenRun(ctx, run.ID); err != nil {
		return fmt.Errorf("failed to reopen run: %w", err)
	}
	for path := range done {
		completed[path] = true
	}

	req.ID = run.ID
	logger.WithFields(logrus.Fields{
		"run":       run.ID,
		"completed": len(done),
	}).Info("Resuming run")
	return nil
}

// recordResult stores a file outcome in the run history. Skips are not
// stored; the run that completed the file already recorded it.
func recordResult(ctx context.Context, db *store.Store, runID string, res batch.FileResult, logger *logrus.Logger) {
	if res.Status == batch.StatusSkipped {
		return
	}
	f := store.RunFile{
		SourcePath: res.SourcePath,
		OutputPath: res.OutputPath,
		Status:     string(res.Status),
		Stage:      string(res.Stage),
		Service:    res.Service,
		Latency:    res.Latency,
	}
	if res.Err != nil {
		f.Error = res.Err.Error()
	}
	if err := db.SaveRunFile(ctx, runID, f); err != nil {
		logger.WithError(err).WithField("file", res.SourcePath).Warn("Failed to record file result")
	}
}

func printSummary(report *batch.Report, verbose bool) {
	if verbose {
		fmt.Printf("Translated: %d, cached: %d, skipped: %d, failed: %d\n",
			report.Translated, report.Cached, report.Skipped, report.Failed)
	}

	failures := report.Failures()
	if len(failures) == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "%d file(s) failed:\n", len(failures))
	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "  %s [%s]: %v\n", f.SourcePath, f.Stage, f.Err)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default $HOME/.gtrans.yaml)")
	pf.String("db", "", "SQLite database for translation memory and run history (disabled when empty)")
	pf.String("log-level", "warn", "Log level: debug, info, warn, error")

	// Service selection and credentials are shared with the languages command.
	pf.StringSlice("services", []string{"google"}, "Translation services to try in order: "+strings.Join(serviceNames, ", "))
	pf.String("google-credentials", "", "Path to Google Cloud credentials JSON")
	pf.String("google-api-key", "", "Google Cloud Translation API key")
	pf.String("google-project", "", "Google Cloud project ID used for quota")
	pf.String("mymemory-email", "", "MyMemory email (for higher limits)")
	pf.String("libretranslate-url", "", "LibreTranslate base URL (default http://localhost:5000)")
	pf.String("libretranslate-key", "", "LibreTranslate API key")
	pf.String("openai-key", "", "OpenAI API key")
	pf.String("openai-model", "", "OpenAI model")
	pf.String("openrouter-key", "", "OpenRouter API key")
	pf.String("openrouter-model", "", "OpenRouter model")
	pf.String("ollama-url", "", "Ollama base URL (default http://localhost:11434)")
	pf.String("ollama-model", "", "Ollama model")

	f := rootCmd.Flags()
	f.StringVarP(&inputDir, "input", "i", "", "Input directory (required)")
	f.StringVarP(&outputDir, "output", "o", "", "Output directory (required)")
	f.StringVarP(&extension, "ext", "x", "", "File extension to translate, without the dot (default: all files)")
	f.BoolVarP(&verbose, "verbose", "v", false, "Show progress for every file")
	f.StringVar(&resumeID, "resume", "", "Resume a previous run by ID, skipping files it already translated")

	f.Int("workers", 1, "Number of files translated concurrently")
	f.Bool("fail-fast", false, "Stop at the first failed file")
	f.String("encoding", "utf-8", "Encoding of the input files (any WHATWG label, e.g. windows-1251)")
	f.Duration("timeout", 60*time.Second, "Timeout for a single translation request")
	f.Int("max-retries", 1, "Total attempts per service including the first (1 = no retries)")
	f.Int("chunk-size", orchestrator.DefaultChunkSize, "Maximum characters sent in one request")
	f.Int("breaker-failures", 5, "Consecutive failures that open a service's circuit breaker (0 disables)")
	f.Duration("breaker-cooldown", 30*time.Second, "How long an open circuit breaker rejects requests")
	f.Bool("validate", false, "Reject translations whose detected language is not the target language")
	f.Bool("protect-markup", false, "Hide code, HTML tags and URLs from LLM services")
	f.Bool("no-cache", false, "Do not use the translation memory")
	f.String("metrics-file", "", "Write Prometheus metrics to this file when done")


	for key, flag := range map[string]string{
		"db":                     "db",
		"log-level":              "log-level",
		"services":               "services",
		"google.credentials":     "google-credentials",
		"google.api-key":         "google-api-key",
		"google.project":         "google-project",
		"mymemory.email":         "mymemory-email",
		"libretranslate.url":     "libretranslate-url",
		"libretranslate.api-key": "libretranslate-key",
		"openai.api-key":         "openai-key",
		"openai.model":           "openai-model",
		"openrouter.api-key":     "openrouter-key",
		"openrouter.model":       "openrouter-model",
		"ollama.url":             "ollama-url",
		"ollama.model":           "ollama-model",
	} {
		viper.BindPFlag(key, pf.Lookup(flag))
	}
	for key, flag := range map[string]string{
		"workers":          "workers",
		"fail-fast":        "fail-fast",
		"encoding":         "encoding",
		"timeout":          "timeout",
		"max-retries":      "max-retries",
		"chunk-size":       "chunk-size",
		"breaker-failures": "breaker-failures",
		"breaker-cooldown": "breaker-cooldown",
		"validate":         "validate",
		"protect-markup":   "protect-markup",
		"no-cache":         "no-cache",
		"metrics-file":     "metrics-file",
	} {
		viper.BindPFlag(key, f.Lookup(flag))
	}
}
