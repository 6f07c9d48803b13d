package main

import (
	"fmt"
	"io"
	"os"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServe(stderr)
	}

	switch args[1] {
	case "server", "serve":
		return runServe(stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "ruleset":
		return runRulesetCmd(args[2:], stdout, stderr)
	case "keys":
		return runKeysCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			return runServe(stderr)
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Sigillum — compliance proofs and tamper-evident audit logging")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  sigillum <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintf(w, "  %-10s %s\n", "serve", "Run the compliance engine server (default)")
	fmt.Fprintf(w, "  %-10s %s\n", "verify", "Verify a proof offline (--proof, --inclusion, --root)")
	fmt.Fprintf(w, "  %-10s %s\n", "ruleset", "Validate rule bundles (validate --file|--dir)")
	fmt.Fprintf(w, "  %-10s %s\n", "keys", "Manage signing keys (rotate/list)")
	fmt.Fprintf(w, "  %-10s %s\n", "help", "Show this help")
	fmt.Fprintln(w, "")
}
