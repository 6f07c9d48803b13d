package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/sigillum/core/pkg/ruleset"
)

func runRulesetCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "validate" {
		fmt.Fprintln(stderr, "Usage: sigillum ruleset validate [--file <bundle>] [--dir <dir>]")
		return 2
	}

	cmd := flag.NewFlagSet("ruleset validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		filePath   string
		dirPath    string
		jsonOutput bool
	)
	cmd.StringVar(&filePath, "file", "", "Path to a single rule bundle")
	cmd.StringVar(&dirPath, "dir", "", "Directory of rule bundles")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args[1:]); err != nil {
		return 2
	}
	if filePath == "" && dirPath == "" {
		fmt.Fprintln(stderr, "Error: one of --file or --dir is required")
		cmd.Usage()
		return 2
	}

	// Validation is loading: a bundle the registry accepts is a bundle the
	// server will accept.
	reg := ruleset.NewRegistry()
	var err error
	if filePath != "" {
		_, err = reg.LoadFile(filePath)
	} else {
		err = reg.LoadDir(dirPath)
	}

	if err != nil {
		if jsonOutput {
			data, _ := json.MarshalIndent(map[string]any{"valid": false, "error": err.Error()}, "", "  ")
			fmt.Fprintln(stdout, string(data))
		} else {
			fmt.Fprintf(stderr, "Validation failed: %v\n", err)
		}
		return 1
	}

	versions := reg.Versions()
	if jsonOutput {
		data, _ := json.MarshalIndent(map[string]any{"valid": true, "versions": versions}, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		fmt.Fprintf(stdout, "Valid. Loaded versions: %v\n", versions)
	}
	return 0
}
