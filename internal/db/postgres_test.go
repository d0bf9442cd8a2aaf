package db

import "testing"

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@db:5432/broadcast?sslmode=disable": "pgx5://u:p@db:5432/broadcast?sslmode=disable",
		"postgresql://u:p@db/broadcast":                    "pgx5://u:p@db/broadcast",
		"pgx5://already-rewritten":                         "pgx5://already-rewritten",
	}
	for in, want := range cases {
		if got := migrateURL(in); got != want {
			t.Errorf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}
