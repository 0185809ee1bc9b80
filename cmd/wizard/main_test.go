package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GoCodeAlone/workflow-wizard/ai"
	"github.com/GoCodeAlone/workflow-wizard/ai/persona"
	"github.com/GoCodeAlone/workflow-wizard/graph"
	"github.com/GoCodeAlone/workflow-wizard/orchestrator"
	"github.com/GoCodeAlone/workflow-wizard/store"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "")
	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestParseCommand(t *testing.T) {
	out, _, err := execute(t, "parse", "Have", "57", "chefs", "rate", "a", "recipe")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var parsed ai.ParseResponse
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if parsed.Intent.AgentCount != 57 || parsed.EstimatedBatches != 3 {
		t.Errorf("unexpected parse result: %+v", parsed)
	}
}

func TestRunCommandLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	_, stderr, err := execute(t, "run", "-o", path, "Have 57 chefs rate a recipe")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stderr, "batch 3/3: 57/57 actors") {
		t.Errorf("expected final progress line, got:\n%s", stderr)
	}
	if !strings.Contains(stderr, "wrote "+path) {
		t.Errorf("expected write notice, got:\n%s", stderr)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var sug graph.WizardSuggestion
	if err := json.Unmarshal(data, &sug); err != nil {
		t.Fatal(err)
	}
	if len(sug.Nodes) != 60 || len(sug.Connections) != 115 {
		t.Errorf("expected 60 nodes and 115 connections, got %d and %d", len(sug.Nodes), len(sug.Connections))
	}
}

func TestRunCommandQuietToStdout(t *testing.T) {
	out, stderr, err := execute(t, "run", "-q", "--batch-size", "10", "Have 12 chefs rate a recipe")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stderr != "" {
		t.Errorf("expected no progress output, got %q", stderr)
	}
	var sug graph.WizardSuggestion
	if err := json.Unmarshal([]byte(out), &sug); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(sug.Nodes) != 15 {
		t.Errorf("expected 15 nodes, got %d", len(sug.Nodes))
	}
}

func TestAnthropicProviderNeedsKey(t *testing.T) {
	_, _, err := execute(t, "--provider", "anthropic", "parse", "Have 3 chefs rate a recipe")
	if err == nil || !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestRunsNeedsServer(t *testing.T) {
	_, _, err := execute(t, "runs")
	if err == nil || !strings.Contains(err.Error(), "--server") {
		t.Fatalf("expected --server error, got %v", err)
	}
}

func TestRemoteCommands(t *testing.T) {
	runs := store.NewInMemoryRunStore()
	service := ai.NewService(persona.New())
	mux := http.NewServeMux()
	ai.NewHandler(service, ai.WithRunStore(runs)).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	o := orchestrator.New(service, service, orchestrator.WithRunStore(runs))
	if _, err := o.Run(context.Background(), "Have 30 chefs rate a recipe"); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	o.Close()

	out, _, err := execute(t, "--server", srv.URL, "runs")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, "completed") || !strings.Contains(out, "30/30") {
		t.Errorf("unexpected runs listing:\n%s", out)
	}

	out, stderr, err := execute(t, "--server", srv.URL, "run", "Have 5 chefs rate a recipe")
	if err != nil {
		t.Fatalf("remote run: %v\n%s", err, stderr)
	}
	var sug graph.WizardSuggestion
	if err := json.Unmarshal([]byte(out), &sug); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(sug.Nodes) != 8 {
		t.Errorf("expected 8 nodes, got %d", len(sug.Nodes))
	}
}
