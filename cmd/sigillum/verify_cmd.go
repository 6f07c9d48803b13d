package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sigillum/core/pkg/keyring"
	"github.com/sigillum/core/pkg/merkle"
	"github.com/sigillum/core/pkg/proof"
	"github.com/sigillum/core/pkg/verify"
)

// publishedKeys backs verification from a published public-key file, so an
// auditor never needs the private keystore.
type publishedKeys map[string]string // version tag -> ed25519 public key hex

func (pk publishedKeys) Verifier(versionTag string) (keyring.Signer, error) {
	pubHex, ok := pk[versionTag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", keyring.ErrUnknownKeyVersion, versionTag)
	}
	return keyring.NewEd25519Verifier(pubHex)
}

func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		proofPath     string
		inclusionPath string
		keysPath      string
		keystorePath  string
		batchRoot     string
		trustedRoot   string
		jsonOutput    bool
	)
	cmd.StringVar(&proofPath, "proof", "", "Path to the proof JSON file (REQUIRED)")
	cmd.StringVar(&inclusionPath, "inclusion", "", "Path to the inclusion proof JSON file")
	cmd.StringVar(&keysPath, "keys", "", "Path to a published public-key file (version tag -> hex)")
	cmd.StringVar(&keystorePath, "keystore", "", "Path to a local keystore file (alternative to --keys)")
	cmd.StringVar(&batchRoot, "root", "", "Root hash the batch record claims")
	cmd.StringVar(&trustedRoot, "trusted-root", "", "Root hash obtained out of band")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the report as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if proofPath == "" {
		fmt.Fprintln(stderr, "Error: --proof is required")
		cmd.Usage()
		return 2
	}
	if keysPath == "" && keystorePath == "" {
		fmt.Fprintln(stderr, "Error: one of --keys or --keystore is required")
		cmd.Usage()
		return 2
	}

	var p proof.Object
	if err := readJSONFile(proofPath, &p); err != nil {
		fmt.Fprintf(stderr, "Error reading proof: %v\n", err)
		return 2
	}

	in := verify.Input{Proof: &p, BatchRoot: batchRoot, TrustedRoot: trustedRoot}
	if inclusionPath != "" {
		var ip merkle.InclusionProof
		if err := readJSONFile(inclusionPath, &ip); err != nil {
			fmt.Fprintf(stderr, "Error reading inclusion proof: %v\n", err)
			return 2
		}
		in.Inclusion = &ip
	}

	keys, err := loadKeySource(keysPath, keystorePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading keys: %v\n", err)
		return 2
	}

	report := verify.New(keys).Verify(in)

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		printReport(stdout, report)
	}

	if !report.Verified {
		return 1
	}
	return 0
}

func loadKeySource(keysPath, keystorePath string) (verify.KeySource, error) {
	if keysPath != "" {
		var pk publishedKeys
		if err := readJSONFile(keysPath, &pk); err != nil {
			return nil, err
		}
		return pk, nil
	}
	ring, err := keyring.OpenFileKeyRing(keystorePath)
	if err != nil {
		return nil, err
	}
	return ring.KeyRing, nil
}

func printReport(w io.Writer, report *verify.Report) {
	fmt.Fprintf(w, "Proof:  %s\n", report.ProofID)
	fmt.Fprintf(w, "Status: %s\n", report.Status)
	for _, c := range report.Checks {
		mark := "ok"
		if !c.Pass {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "  [%-4s] %-14s %s%s\n", mark, c.Name, c.Detail, c.Reason)
	}
	fmt.Fprintln(w, report.Summary)
}

func readJSONFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
