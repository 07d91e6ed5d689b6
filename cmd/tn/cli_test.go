package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/steveyegge/tenet/internal/config"
	"github.com/steveyegge/tenet/internal/types"
)

// runTN executes the root command with args and returns what it wrote to
// stdout. Only use it for invocations that succeed; failures exit the
// process.
func runTN(t *testing.T, args ...string) []byte {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.Bytes()
	}()

	rootCmd.SetArgs(args)
	execErr := rootCmd.Execute()
	_ = w.Close()
	out := <-done
	if execErr != nil {
		t.Fatalf("tn %v: %v", args, execErr)
	}
	return out
}

func setupCLI(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("TENET_OTEL_ENABLED", "")
	config.ResetForTesting()
	return []string{"--db", filepath.Join(dir, "tenet.db"), "--org", "org-cli", "--actor", "alice", "--json"}
}

func TestCLIDecisionLifecycle(t *testing.T) {
	base := setupCLI(t)
	lead := append(append([]string{}, base...), "--lead")

	var d types.Decision
	out := runTN(t, append(lead, "decision", "create", "Adopt Go", "--param", "lang=go")...)
	if err := json.Unmarshal(out, &d); err != nil {
		t.Fatalf("decode create output %q: %v", out, err)
	}
	if d.Title != "Adopt Go" || d.Version != 1 || d.Lifecycle != types.LifecycleStable {
		t.Fatalf("created decision = %+v", d)
	}

	var a types.Assumption
	out = runTN(t, append(lead, "assumption", "create", "The team knows Go", "--decision", d.ID)...)
	if err := json.Unmarshal(out, &a); err != nil {
		t.Fatalf("decode assumption: %v", err)
	}

	out = runTN(t, append(lead, "assumption", "status", a.ID, "broken")...)
	if err := json.Unmarshal(out, &a); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if a.Status != types.StatusBroken {
		t.Fatalf("status = %s", a.Status)
	}

	var listed []*types.Decision
	out = runTN(t, append(lead, "decision", "list")...)
	if err := json.Unmarshal(out, &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].HealthSignal != 0 || listed[0].Lifecycle != types.LifecycleInvalidated {
		t.Fatalf("listed = %+v", listed)
	}

	var verify map[string]interface{}
	out = runTN(t, append(lead, "history", "replay", d.ID, "--verify")...)
	if err := json.Unmarshal(out, &verify); err != nil {
		t.Fatalf("decode verify: %v", err)
	}
	if verify["consistent"] != true {
		t.Errorf("verify = %v", verify)
	}
}

func TestCLIMemberEditFilesRequest(t *testing.T) {
	base := setupCLI(t)

	var d types.Decision
	out := runTN(t, append(append([]string{}, base...), "--lead", "decision", "create", "Ship weekly")...)
	if err := json.Unmarshal(out, &d); err != nil {
		t.Fatal(err)
	}

	var res struct {
		Decision *types.Decision    `json:"decision"`
		Request  *types.EditRequest `json:"edit_request"`
	}
	// --lead stays set from the previous run unless turned off
	out = runTN(t, append(append([]string{}, base...), "--lead=false",
		"decision", "update", d.ID, "--title", "Ship daily", "-j", "customers asked for it")...)
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if res.Request == nil || res.Decision != nil {
		t.Fatalf("member update should file a request, got %+v", res)
	}
	if res.Request.Status != types.EditStatusPending || res.Request.Requester != "alice" {
		t.Errorf("request = %+v", res.Request)
	}
}
