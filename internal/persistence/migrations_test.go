package persistence

import (
	"context"
	"sort"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestMigrationFilesEmbeddedAndOrdered(t *testing.T) {
	names, err := MigrationFiles()
	if err != nil {
		t.Fatalf("MigrationFiles: %v", err)
	}
	if len(names) == 0 {
		t.Fatal("no migrations embedded")
	}
	if !sort.StringsAreSorted(names) {
		t.Errorf("migrations not in apply order: %v", names)
	}
	for _, name := range names {
		if !strings.HasSuffix(name, ".sql") {
			t.Errorf("unexpected embedded file %s", name)
		}
	}
}

func TestRunMigrationsWithoutPoolIsNoOp(t *testing.T) {
	if err := RunMigrations(context.Background(), nil, zap.NewNop()); err != nil {
		t.Errorf("RunMigrations without a pool = %v, want nil", err)
	}
}
