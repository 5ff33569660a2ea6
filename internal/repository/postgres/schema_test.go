package postgres

import (
	"strings"
	"testing"
)

func TestSchemaSQL_AppliesPrefix(t *testing.T) {
	ddl := SchemaSQL("test_")

	if strings.Contains(ddl, "{prefix}") {
		t.Fatal("schema still contains unreplaced {prefix} placeholders")
	}

	tables := NewTableNames("test_")
	for _, name := range tables.ChildFirst() {
		if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS "+name+" (") {
			t.Errorf("schema does not create table %s", name)
		}
	}
}

func TestSchemaSQL_GrantUniqueness(t *testing.T) {
	ddl := SchemaSQL("")
	for _, want := range []string{"UNIQUE (file_id, shared_with)", "UNIQUE (folder_id, shared_with)"} {
		if !strings.Contains(ddl, want) {
			t.Errorf("schema missing %q", want)
		}
	}
}
