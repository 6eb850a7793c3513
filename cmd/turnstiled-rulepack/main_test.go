package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"turnstiled/internal/core/rulepack"
	"turnstiled/internal/platform/testkit"
)

const fragment = `rules:
  - id: api
    category: turnstile_api
    tier: medium
    matchers:
      - {id: src, kind: literal, value: turnstile/v0/api.js}
`

func TestRun_WritesPack(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "api.yaml"), []byte(fragment), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "dup.yml"), []byte(fragment), 0o600); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "nested", "rules.json")

	var stdout, stderr bytes.Buffer
	if err := run([]string{"-root", dir, "-out", out}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v (%s)", err, stderr.String())
	}
	testkit.MustContain(t, stderr.String(), "duplicate rule id skipped")

	p, err := rulepack.LoadFile(out)
	if err != nil {
		t.Fatalf("written pack: %v", err)
	}
	if len(p.Rules) != 1 || p.Rules[0].ID != "api" {
		t.Fatalf("rules = %+v", p.Rules)
	}
}

func TestRun_Stdout(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "api.yaml"), []byte(fragment), 0o600); err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	if err := run([]string{"-root", dir, "-out", "-"}, &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	if _, err := rulepack.Parse(stdout.Bytes(), "json"); err != nil {
		t.Fatalf("stdout pack: %v", err)
	}
}

func TestRun_MissingRoot(t *testing.T) {
	testkit.Serial(t)
	t.Setenv("TURNSTILE_RULES_ROOT", filepath.Join(t.TempDir(), "nope"))
	t.Chdir(t.TempDir())

	var stderr bytes.Buffer
	err := run([]string{"-root", "/definitely/not/here"}, &bytes.Buffer{}, &stderr)
	if err == nil {
		t.Fatal("expected error")
	}
	testkit.MustContain(t, stderr.String(), "/definitely/not/here")
	testkit.MustContain(t, stderr.String(), "TURNSTILE_RULES_ROOT")
}
