package tenet_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/steveyegge/tenet"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "tenet.db")

	eng, store, err := tenet.Open(ctx, dbPath, "org-facade", tenet.WithConfig(tenet.DefaultConfig()))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	if eng.OrgID() != "org-facade" {
		t.Errorf("OrgID = %q", eng.OrgID())
	}

	lead := tenet.Actor{Name: "lead", Lead: true}
	d, err := eng.CreateDecision(ctx, lead, tenet.NewDecision{Title: "Adopt tenet"})
	if err != nil {
		t.Fatalf("CreateDecision: %v", err)
	}
	if d.Lifecycle != tenet.LifecycleStable {
		t.Errorf("lifecycle = %s", d.Lifecycle)
	}

	if _, err := eng.GetDecision(ctx, "dec-missing"); !errors.Is(err, tenet.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenRequiresOrg(t *testing.T) {
	_, _, err := tenet.Open(context.Background(), filepath.Join(t.TempDir(), "x.db"), "")
	if err == nil {
		t.Fatal("expected error without an organization")
	}
}
