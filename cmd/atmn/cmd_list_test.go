package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newListCmd()
	cmd.Flags().String("settings", "", "")
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestListCommand(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{
		filepath.Join(root, "Toy", "leaks"),
		filepath.Join(root, "Toy", "sensors"),
		filepath.Join(root, "Toy", "measurements", "L1"),
	} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range []string{
		filepath.Join(root, "Toy", "leaks", "L1.xml"),
		filepath.Join(root, "Toy", "sensors", "S1.xml"),
	} {
		if err := os.WriteFile(f, []byte("<x/>"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out, err := runCommand(t, root)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "Toy") {
		t.Errorf("output missing scenario: %q", out)
	}
	if !strings.Contains(out, "L1") || !strings.Contains(out, "S1") {
		t.Errorf("output missing configs: %q", out)
	}
}

func TestListCommandMissingDir(t *testing.T) {
	_, err := runCommand(t, filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("missing collection dir should be an error")
	}
}

func TestResolveServeAddr(t *testing.T) {
	if got := resolveServeAddr(""); got != defaultServeAddr {
		t.Errorf("resolveServeAddr(\"\") = %q, want %q", got, defaultServeAddr)
	}
	if got := resolveServeAddr(":9090"); got != ":9090" {
		t.Errorf("resolveServeAddr(\":9090\") = %q, want %q", got, ":9090")
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newVersionCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(buf.String()) != version {
		t.Errorf("output = %q, want %q", buf.String(), version)
	}
}
