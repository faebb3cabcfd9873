package migrate

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "test.db")+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMigrateIsRepeatable(t *testing.T) {
	conn := openTestDB(t)
	v, err := Version(conn)
	require.NoError(t, err)
	require.Zero(t, v)

	require.NoError(t, Migrate(conn))
	require.NoError(t, Migrate(conn))

	latest, err := Latest()
	require.NoError(t, err)
	require.Equal(t, 1, latest)
	v, err = Version(conn)
	require.NoError(t, err)
	require.Equal(t, latest, v)
}

func TestCardHistoryIsAppendOnly(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, Migrate(conn))

	stmts := []string{
		`INSERT INTO units(id,name,created_at) VALUES ('u1','','2026-01-01T00:00:00Z')`,
		`INSERT INTO alerts(id,unit_id,student_ref,origin_category,reported_by,occurred_on,status,created_at,updated_at)
		 VALUES ('a1','u1','s1','other','r1','2026-01-01','pending','2026-01-01T00:00:00Z','2026-01-01T00:00:00Z')`,
		`INSERT INTO kanban_cards(id,alert_id,unit_id,column_name,priority,created_at,updated_at)
		 VALUES ('c1','a1','u1','todo','medium','2026-01-01T00:00:00Z','2026-01-01T00:00:00Z')`,
		`INSERT INTO card_history(card_id,ts,actor_id,line) VALUES ('c1','2026-01-01T00:00:00Z','r1','created')`,
	}
	for _, s := range stmts {
		_, err := conn.Exec(s)
		require.NoError(t, err)
	}

	_, err := conn.Exec(`UPDATE card_history SET line='changed'`)
	require.Error(t, err)
	_, err = conn.Exec(`DELETE FROM card_history`)
	require.Error(t, err)

	_, err = conn.Exec(`UPDATE kanban_cards SET result_outcome='retained' WHERE id='c1'`)
	require.NoError(t, err)
	_, err = conn.Exec(`UPDATE kanban_cards SET result_outcome='evaded' WHERE id='c1'`)
	require.Error(t, err)
}
