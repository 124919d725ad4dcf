package migrate_test

import (
	"testing"

	"onboardline/internal/db"
	"onboardline/internal/migrate"
)

func TestMigrateIsRepeatable(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	before, err := migrate.Current(conn)
	if err != nil || before != 0 {
		t.Fatalf("fresh db version = %d, %v", before, err)
	}
	n, err := migrate.Migrate(conn)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	latest, err := migrate.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if n != 2 || latest != 2 {
		t.Fatalf("applied %d migrations, latest %d", n, latest)
	}
	again, err := migrate.Migrate(conn)
	if err != nil || again != 0 {
		t.Fatalf("second migrate applied %d, %v", again, err)
	}
	cur, err := migrate.Current(conn)
	if err != nil || cur != latest {
		t.Fatalf("current = %d, %v", cur, err)
	}
}
