package migrations

import (
	"sort"
	"strings"
	"testing"
)

func TestListMigrations(t *testing.T) {
	files, err := listMigrations()
	if err != nil {
		t.Fatalf("listMigrations failed: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("Expected at least the initial schema migration")
	}

	if files[0].Version != "001" {
		t.Errorf("Expected first version 001, got %s", files[0].Version)
	}
	if !strings.Contains(files[0].SQL, "analysis_runs") {
		t.Error("Initial schema should create analysis_runs")
	}

	versions := make([]string, len(files))
	for i, f := range files {
		versions[i] = f.Version
		if len(f.Checksum) != 64 {
			t.Errorf("Migration %s has a malformed checksum: %q", f.Version, f.Checksum)
		}
	}
	if !sort.StringsAreSorted(versions) {
		t.Errorf("Migrations must apply in version order, got %v", versions)
	}
}
