// Command turnstiled-rulepack merges rule fragments into the embedded rule pack
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"turnstiled/internal/core/rulepack"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("turnstiled-rulepack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		flagRoot = fs.String("root", "", "directory of .json/.yaml rule fragments; empty auto-discovers")
		out      = fs.String("out", "./internal/core/rulepack/rules.json", "output path or '-' for stdout")
		verbose  = fs.Bool("v", false, "verbose logging")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	root, attempts, err := resolveRoot(strings.TrimSpace(*flagRoot))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "failed to locate rules root (looked in):\n")
		for _, a := range attempts {
			_, _ = fmt.Fprintf(stderr, "  - %s\n", a)
		}
		_, _ = fmt.Fprintf(stderr, "hint: pass -root or set TURNSTILE_RULES_ROOT\n")
		return err
	}
	if *verbose {
		_, _ = fmt.Fprintf(stderr, "using rules root: %s\n", root)
	}

	enc, dups, err := rulepack.AssembleDir(root)
	for _, d := range dups {
		_, _ = fmt.Fprintf(stderr, "warning: duplicate rule id skipped: %s\n", d)
	}
	if err != nil {
		return err
	}
	enc = append(enc, '\n')

	if *out == "-" {
		_, err := stdout.Write(enc)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(*out, enc, 0o644); err != nil {
		return err
	}
	if *verbose {
		_, _ = fmt.Fprintf(stderr, "wrote %s (%d bytes)\n", *out, len(enc))
	}
	return nil
}

func isDir(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.IsDir()
}

// resolveRoot tries, in order: flag, TURNSTILE_RULES_ROOT, ./rules, /app/rules.
// It returns the chosen root and every path tried
func resolveRoot(flagRoot string) (string, []string, error) {
	candidates := []string{flagRoot, strings.TrimSpace(os.Getenv("TURNSTILE_RULES_ROOT")), "./rules", "/app/rules"}
	var attempts []string
	for _, c := range candidates {
		if c == "" {
			continue
		}
		attempts = append(attempts, c)
		if isDir(c) {
			return c, attempts, nil
		}
	}
	return "", attempts, errors.New("rules directory not found in any known location")
}
