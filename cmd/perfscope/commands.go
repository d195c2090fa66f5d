// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perfscope/perfscope/pkg/logging"
	fixengine "github.com/perfscope/perfscope/services/fix_engine"
	"github.com/perfscope/perfscope/services/fix_engine/detect"
	"github.com/perfscope/perfscope/services/fix_engine/events"
)

var (
	configPath  string
	jsonOutput  bool
	withFixes   bool
	minSeverity string
	noEvolution bool
	verbose     bool
	failOn      string

	rootCmd = &cobra.Command{
		Use:   "perfscope",
		Short: "Static performance analysis for JavaScript and TypeScript code",
		Long: `Perfscope scans ECMAScript source for performance anti-patterns:
N+1 data access, inefficient loop bodies, unbounded payloads, and memory
leaks. For every finding it can generate ranked fix candidates, optionally
refined by an evolutionary optimizer.`,
	}

	analyzeCmd = &cobra.Command{
		Use:   "analyze [file or directory...]",
		Short: "Analyze source files and report performance issues",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAnalyze,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the perfscope version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("perfscope %s\n", version)
		},
	}
)

// version is stamped by the build via -ldflags.
var version = "dev"

func init() {
	analyzeCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the report as JSON")
	analyzeCmd.Flags().BoolVarP(&withFixes, "fixes", "f", false, "Generate ranked fix candidates for every finding")
	analyzeCmd.Flags().StringVar(&minSeverity, "min-severity", "", "Drop findings below this severity (low, medium, high, critical)")
	analyzeCmd.Flags().BoolVar(&noEvolution, "no-evolution", false, "Skip the evolutionary optimizer; use templates as-is")
	analyzeCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging, including optimizer progress")
	analyzeCmd.Flags().StringVar(&failOn, "fail-on", "", "Exit non-zero when a finding at or above this severity exists")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(versionCmd)
}

// sourceExtensions are the file types the analyzer accepts.
var sourceExtensions = map[string]bool{
	".js":  true,
	".jsx": true,
	".mjs": true,
	".cjs": true,
	".ts":  true,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	level := logging.LevelWarn
	if verbose {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{Level: level, Service: "perfscope"})

	opts := []fixengine.EngineOption{fixengine.WithLogger(logger)}
	emitter := events.NewEmitter()
	if verbose && cfg.Evolution.Enabled {
		emitter.Subscribe(printProgress, events.TypeEvolutionProgress)
		opts = append(opts, fixengine.WithEmitter(emitter))
	}

	engine, err := fixengine.NewEngine(cfg, opts...)
	if err != nil {
		return err
	}

	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no source files found under %s", strings.Join(args, ", "))
	}

	results := engine.AnalyzeFiles(cmd.Context(), files, withFixes)

	if jsonOutput {
		if err := printJSON(os.Stdout, results); err != nil {
			return err
		}
	} else {
		printHuman(os.Stdout, results, withFixes)
	}

	if failOn != "" && hasSeverityAtLeast(results, detect.Severity(failOn)) {
		return fmt.Errorf("findings at or above severity %q", failOn)
	}
	return nil
}

// resolveConfig layers CLI flags over the file (or default) config.
func resolveConfig() (fixengine.Config, error) {
	cfg := fixengine.DefaultConfig()
	if configPath != "" {
		loaded, err := fixengine.LoadConfig(configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if minSeverity != "" {
		cfg.MinSeverity = detect.Severity(minSeverity)
	}
	if noEvolution {
		cfg.Evolution.Enabled = false
	}
	return cfg, cfg.Validate()
}

// collectFiles expands the argument list into analyzer inputs, walking
// directories and skipping node_modules.
func collectFiles(args []string) ([]fixengine.FileInput, error) {
	var out []fixengine.FileInput

	addFile := func(path string) error {
		source, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		out = append(out, fixengine.FileInput{ID: path, Source: source})
		return nil
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if err := addFile(arg); err != nil {
				return nil, err
			}
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == "node_modules" || (strings.HasPrefix(d.Name(), ".") && path != arg) {
					return filepath.SkipDir
				}
				return nil
			}
			if !sourceExtensions[filepath.Ext(path)] {
				return nil
			}
			return addFile(path)
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func hasSeverityAtLeast(results []fixengine.FileResult, floor detect.Severity) bool {
	for _, fr := range results {
		for _, r := range fr.Results {
			for _, issue := range r.Issues {
				if issue.Severity.AtLeast(floor) {
					return true
				}
			}
		}
	}
	return false
}

// printProgress streams optimizer generations to stderr in verbose mode.
func printProgress(e *events.Event) {
	if e.Progress == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "  evolving %s: generation %d/%d best=%.1f avg=%.1f\n",
		e.IssueType,
		e.Progress.Generation+1,
		e.Progress.MaxGenerations,
		e.Progress.BestFitness,
		e.Progress.AvgFitness,
	)
}
