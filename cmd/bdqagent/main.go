// Package main provides the bdqagent CLI: a local harness that exercises
// run_job end to end against files on disk, standing in for the mail
// ingress/egress adapters and task-queue adapter the core depends on in
// production (named-only external collaborators per spec.md's Non-goals).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gbif-norway/bdq-agent/internal/config"
	"github.com/gbif-norway/bdq-agent/internal/engine"
	"github.com/gbif-norway/bdq-agent/internal/provider"
	"github.com/gbif-norway/bdq-agent/internal/registry"
)

const (
	version = "0.1.0-dev"
	name    = "bdqagent"

	outFilePermissions = 0o644

	defaultMaxDatasetBytes int64 = 512 * 1024 * 1024
)

func main() {
	var (
		datasetPath  = flag.String("dataset", "", "path to the tabular dataset file (required)")
		registryPath = flag.String("registry", "", "path to the test-registry descriptor file (required)")
		outDir       = flag.String("out-dir", config.GetEnvStr("BDQ_OUT_DIR", "."), "directory to write raw_results.csv, amended_dataset.csv, and digest.json")
		configPath   = flag.String("config", config.GetEnvStr("BDQ_CONFIG_PATH", ""), "optional YAML overrides file")
		versionFlag  = flag.Bool("version", false, "show version information")
	)
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	overrides := engine.LoadConfig()

	logLevel := config.GetEnvLogLevel("BDQ_LOG_LEVEL", slog.LevelInfo)
	logSource := config.GetEnvBool("BDQ_LOG_SOURCE", false)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel, AddSource: logSource}))
	slog.SetDefault(logger)

	if *datasetPath == "" || *registryPath == "" {
		logger.Error("bdqagent: -dataset and -registry are required")
		flag.Usage()
		os.Exit(1)
	}

	overrides = mergeOverrides(overrides, loadFileOverrides(*configPath))

	registryBytes, err := os.ReadFile(*registryPath) //nolint:gosec // operator-supplied CLI flag
	if err != nil {
		logger.Error("bdqagent: failed to read registry file", slog.String("error", err.Error()))
		os.Exit(1)
	}

	reg, err := registry.Load(registryBytes)
	if err != nil {
		logger.Error("bdqagent: failed to load registry", slog.String("error", err.Error()))
		os.Exit(1)
	}

	datasetBytes, err := os.ReadFile(*datasetPath) //nolint:gosec // operator-supplied CLI flag
	if err != nil {
		logger.Error("bdqagent: failed to read dataset file", slog.String("error", err.Error()))
		os.Exit(1)
	}

	maxDatasetBytes := config.GetEnvInt64("BDQ_MAX_DATASET_BYTES", defaultMaxDatasetBytes)
	if int64(len(datasetBytes)) > maxDatasetBytes {
		logger.Error("bdqagent: dataset file exceeds configured size limit",
			slog.Int("size_bytes", len(datasetBytes)), slog.Int64("max_bytes", maxDatasetBytes))
		os.Exit(1)
	}

	eng := engine.New(reg, provider.NewReferenceProvider())

	result, err := eng.RunJob(context.Background(), datasetBytes, filepath.Base(*datasetPath), overrides)
	if err != nil {
		logger.Error("bdqagent: job failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := writeOutputs(*outDir, result); err != nil {
		logger.Error("bdqagent: failed to write outputs", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("bdqagent: job complete",
		slog.String("job_id", result.JobID),
		slog.Int("warnings", len(result.Warnings)),
		slog.String("out_dir", *outDir))
}

func writeOutputs(outDir string, result engine.JobResult) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil { //nolint:mnd // standard rwxr-xr-x directory permissions
		return err
	}

	if err := os.WriteFile(filepath.Join(outDir, "raw_results.csv"), result.RawResultsTable, outFilePermissions); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(outDir, "amended_dataset.csv"), result.AmendedDatasetTable, outFilePermissions); err != nil {
		return err
	}

	digestJSON, err := json.MarshalIndent(result.Digest, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(outDir, "digest.json"), digestJSON, outFilePermissions)
}
