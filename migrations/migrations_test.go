package migrations

import (
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func TestEmbeddedMigrationsAreWellFormed(t *testing.T) {
	source, err := iofs.New(files, ".")
	if err != nil {
		t.Fatalf("load embedded migrations: %v", err)
	}
	defer source.Close()

	version, err := source.First()
	if err != nil {
		t.Fatalf("first migration: %v", err)
	}
	if version != 1 {
		t.Fatalf("first version = %d, want 1", version)
	}

	// Every up migration needs a matching down migration.
	if _, _, err := source.ReadUp(version); err != nil {
		t.Fatalf("read up %d: %v", version, err)
	}
	if _, _, err := source.ReadDown(version); err != nil {
		t.Fatalf("read down %d: %v", version, err)
	}
}
