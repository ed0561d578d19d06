// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/minios/internal/persistence/sqlite"
	"github.com/ManuGH/minios/internal/state"
)

func runStorageCLI(args []string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printStorageUsage(stdout)
		return 0
	}

	switch args[0] {
	case "verify":
		return runStorageVerify(args[1:])
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printStorageUsage(stderr)
		return 2
	}
}

func printStorageUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  minios storage verify [--path PATH | --data-dir DIR] [--mode quick|full]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Flags:")
	_, _ = fmt.Fprintln(w, "  --path string      State file to check (.state.json or .state.db)")
	_, _ = fmt.Fprintln(w, "  --data-dir string  Check every state file in a sandbox root")
	_, _ = fmt.Fprintln(w, "  --mode string      SQLite verification mode: quick (default) or full")
}

func runStorageVerify(args []string) int {
	fs := flag.NewFlagSet("minios storage verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("path", "", "state file to verify")
	dataDir := fs.String("data-dir", "", "sandbox root holding the state files")
	mode := fs.String("mode", "quick", "verification mode: quick or full")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *path == "" && *dataDir == "" {
		fmt.Fprintln(stderr, "Error: --path or --data-dir is required")
		return 2
	}
	m := strings.ToLower(strings.TrimSpace(*mode))
	if m != "quick" && m != "full" {
		fmt.Fprintf(stderr, "Error: invalid mode %q. Use 'quick' or 'full'.\n", *mode)
		return 2
	}

	ctx := context.Background()
	if *path != "" {
		return doVerify(ctx, *path, m)
	}

	exitCode, checked := 0, 0
	for _, name := range []string{state.JSONFileName, state.SQLiteFileName} {
		p := filepath.Join(*dataDir, name)
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		checked++
		if code := doVerify(ctx, p, m); code != 0 {
			exitCode = code
		}
	}
	if checked == 0 {
		fmt.Fprintf(stderr, "Error: no state files found in %s\n", *dataDir)
		return 2
	}
	return exitCode
}

func doVerify(ctx context.Context, path, mode string) int {
	fmt.Fprintf(stderr, "Verifying %s (mode: %s)...\n", path, mode)

	issues, err := verifyStateFile(ctx, path, mode)
	if err != nil {
		fmt.Fprintf(stderr, "Verification failed: %v\n", err)
		return 1
	}
	if len(issues) > 0 {
		fmt.Fprintln(stderr, "CORRUPTION DETECTED:")
		for _, issue := range issues {
			fmt.Fprintf(stderr, "  - %s\n", issue)
		}
		return 1
	}
	fmt.Fprintf(stdout, "%s: ok\n", path)
	return 0
}

// verifyStateFile checks SQLite files with the integrity pragmas and JSON
// files by decoding the snapshot.
func verifyStateFile(ctx context.Context, path, mode string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".json") {
		if _, err := state.NewJSONStore(path).Load(ctx); err != nil {
			return []string{err.Error()}, nil
		}
		return nil, nil
	}
	return sqlite.VerifyIntegrity(ctx, path, mode)
}
