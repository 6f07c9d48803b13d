package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/sigillum/core/pkg/config"
	"github.com/sigillum/core/pkg/keyring"
)

func runKeysCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: sigillum keys <rotate|list> [--keystore <path>]")
		return 2
	}

	sub := args[0]
	cmd := flag.NewFlagSet("keys "+sub, flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		keystorePath string
		jsonOutput   bool
	)
	cmd.StringVar(&keystorePath, "keystore", config.Load().KeystoreFile, "Path to the keystore file")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")
	if err := cmd.Parse(args[1:]); err != nil {
		return 2
	}

	ring, err := keyring.OpenFileKeyRing(keystorePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening keystore: %v\n", err)
		return 1
	}

	switch sub {
	case "rotate":
		version, err := ring.Rotate()
		if err != nil {
			fmt.Fprintf(stderr, "Rotation failed: %v\n", err)
			return 1
		}
		if jsonOutput {
			data, _ := json.MarshalIndent(map[string]any{
				"active_version": keyring.FormatVersion(version),
			}, "", "  ")
			fmt.Fprintln(stdout, string(data))
		} else {
			fmt.Fprintf(stdout, "Rotated. Active signing key: %s\n", keyring.FormatVersion(version))
		}
		return 0

	case "list":
		return listKeys(ring, stdout, stderr, jsonOutput)

	default:
		fmt.Fprintf(stderr, "Unknown keys subcommand: %s\n", sub)
		return 2
	}
}

func listKeys(ring *keyring.FileKeyRing, stdout, stderr io.Writer, jsonOutput bool) int {
	type keyInfo struct {
		Version   string `json:"version"`
		PublicKey string `json:"public_key"`
		Active    bool   `json:"active"`
	}

	active := ring.ActiveVersion()
	var keys []keyInfo
	for _, v := range ring.Versions() {
		tag := keyring.FormatVersion(v)
		signer, err := ring.Verifier(tag)
		if err != nil {
			fmt.Fprintf(stderr, "Error reading key %s: %v\n", tag, err)
			return 1
		}
		keys = append(keys, keyInfo{
			Version:   tag,
			PublicKey: signer.PublicKey(),
			Active:    v == active,
		})
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(keys, "", "  ")
		fmt.Fprintln(stdout, string(data))
		return 0
	}
	for _, k := range keys {
		marker := " "
		if k.Active {
			marker = "*"
		}
		fmt.Fprintf(stdout, "%s %-6s %s\n", marker, k.Version, k.PublicKey)
	}
	return 0
}
