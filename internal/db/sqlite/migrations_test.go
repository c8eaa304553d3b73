package sqlite

import (
	"context"
	"testing"
)

func newTestClient(t *testing.T) *sqliteClient {
	t.Helper()
	client, err := NewSQLiteClient(context.Background(), t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIndexesExistAfterMigrations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	tests := []struct {
		table    string
		required []string
	}{
		{table: "moderation_records", required: []string{"idx_moderation_records_user_kind", "idx_moderation_records_global"}},
		{table: "reports", required: []string{"idx_reports_chat_status"}},
		{table: "pending_captchas", required: []string{"idx_pending_captchas_expires_at"}},
	}

	for _, tt := range tests {
		rows, err := client.db.QueryContext(ctx, "PRAGMA index_list('"+tt.table+"')")
		if err != nil {
			t.Fatalf("query index_list for %s: %v", tt.table, err)
		}

		indexes := make(map[string]struct{})
		for rows.Next() {
			var (
				seq     int
				name    string
				unique  int
				origin  string
				partial int
			)
			if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
				_ = rows.Close()
				t.Fatalf("scan index row: %v", err)
			}
			indexes[name] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			t.Fatalf("iterate index rows: %v", err)
		}
		_ = rows.Close()

		for _, name := range tt.required {
			if _, ok := indexes[name]; !ok {
				t.Fatalf("required index %q not found on %s", name, tt.table)
			}
		}
	}
}

func TestGetSettingsMissingChat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	missing, err := client.GetSettings(ctx, 42)
	if err != nil {
		t.Fatalf("get missing settings: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil settings for unknown chat, got %+v", missing)
	}
}
