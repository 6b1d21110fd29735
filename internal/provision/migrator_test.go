package provision

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/repo"
)

func testMigrations() []repo.Migration {
	return []repo.Migration{
		{Name: "001_a", SQL: "CREATE TABLE a ()"},
		{Name: "002_b", SQL: "CREATE TABLE b ()"},
		{Name: "003_c", SQL: "CREATE TABLE c ()"},
	}
}

func TestMigrator_Apply_SkipsApplied(t *testing.T) {
	logs := &fakeLogs{}
	db := &fakeDB{applied: []string{"001_a"}}
	m := newMigrator(testMigrations(), logs, nil)

	require.NoError(t, m.Apply(context.Background(), db, uuid.New()))

	require.Len(t, logs.migrations, 2)
	assert.Equal(t, "002_b", logs.migrations[0].name)
	assert.Equal(t, "003_c", logs.migrations[1].name)
	for _, e := range logs.migrations {
		assert.Equal(t, domain.MigrationStatusSuccess, e.status)
	}

	// Каждая миграция — своя транзакция с отметкой в schema_migrations
	require.Len(t, db.txs, 2)
	for _, tx := range db.txs {
		assert.True(t, tx.committed)
		assert.True(t, tx.executed("INSERT INTO schema_migrations"))
	}
}

func TestMigrator_Apply_StopsOnFailure(t *testing.T) {
	logs := &fakeLogs{}
	boom := errors.New("syntax error")
	db := &fakeDB{newTx: func() *fakeTx {
		return &fakeTx{failOn: map[string]error{"CREATE TABLE b": boom}}
	}}
	m := newMigrator(testMigrations(), logs, nil)

	err := m.Apply(context.Background(), db, uuid.New())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "002_b")

	require.Len(t, logs.migrations, 2)
	assert.Equal(t, domain.MigrationStatusSuccess, logs.migrations[0].status)
	assert.Equal(t, domain.MigrationStatusFailed, logs.migrations[1].status)
	assert.Equal(t, "syntax error", logs.migrations[1].errMsg)
	assert.True(t, db.txs[1].rolledBack)
}

func TestNewMigrator_EmbeddedSchema(t *testing.T) {
	m, err := NewMigrator(&fakeLogs{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "004_attachments", m.Latest())
}
