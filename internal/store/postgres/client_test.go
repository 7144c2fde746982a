package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	assert.Equal(t,
		"postgres://bot:pw@db:5432/momobot?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "momobot", User: "bot", Password: "pw"}),
	)
	assert.Equal(t,
		"postgres://bot:pw@db:6543/momobot?sslmode=require",
		DSN(ClientConfig{Host: "db", Port: 6543, Database: "momobot", User: "bot", Password: "pw", SSLMode: "require"}),
	)
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestMigrationsAreEmbeddedInOrder(t *testing.T) {
	names, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_positions.sql", names[0])

	data, err := migrationsFS.ReadFile("migrations/" + names[0])
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS positions"))
	assert.True(t, strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS audit_log"))
}
