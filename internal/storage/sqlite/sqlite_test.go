package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xprobe/internal/storage"
	"xprobe/internal/storage/models"
	pkgerrors "xprobe/pkg/errors"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func intPtr(v int) *int { return &v }

func TestSettings(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.GetSetting(ctx, storage.SettingRawConfig)
	assert.ErrorIs(t, err, pkgerrors.ErrSettingNotFound)

	require.NoError(t, db.SetSetting(ctx, storage.SettingRawConfig, "vless://a"))
	require.NoError(t, db.SetSetting(ctx, storage.SettingRawConfig, "vless://b"))

	value, err := db.GetSetting(ctx, storage.SettingRawConfig)
	require.NoError(t, err)
	assert.Equal(t, "vless://b", value)

	all, err := db.GetAllSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "vless://b", all[storage.SettingRawConfig])
	assert.Equal(t, "xray", all["active_core"])

	require.NoError(t, db.DeleteSetting(ctx, storage.SettingRawConfig))
	_, err = db.GetSetting(ctx, storage.SettingRawConfig)
	assert.ErrorIs(t, err, pkgerrors.ErrSettingNotFound)
}

func TestRawConfigSource(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	source := storage.NewRawConfigSource(db)

	raw, err := source.RawConfiguration(ctx)
	require.NoError(t, err)
	assert.Empty(t, raw)

	require.NoError(t, db.SetSetting(ctx, storage.SettingRawConfig, `{"outbounds":[]}`))
	raw, err = source.RawConfiguration(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"outbounds":[]}`, raw)
}

func TestProbeHistory(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	latest, err := db.GetLatestProbe(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	base := time.Now().Add(-time.Hour).UTC()
	for i := 0; i < 5; i++ {
		result := &models.ProbeResult{
			LatencyMS:  intPtr(100 * (i + 1)),
			Success:    true,
			Strategy:   "http",
			DurationMS: int64(150 * (i + 1)),
			TestedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.RecordProbe(ctx, result))
		assert.NotZero(t, result.ID)
	}
	failed := &models.ProbeResult{
		Success:      false,
		ErrorMessage: "probe unsuccessful: timeout",
		Strategy:     "tcp",
		TestedAt:     base.Add(10 * time.Minute),
	}
	require.NoError(t, db.RecordProbe(ctx, failed))

	latest, err = db.GetLatestProbe(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.False(t, latest.Success)
	assert.Nil(t, latest.LatencyMS)
	assert.Equal(t, "probe unsuccessful: timeout", latest.ErrorMessage)
	assert.Equal(t, "tcp", latest.Strategy)

	history, err := db.GetProbeHistory(ctx, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, failed.ID, history[0].ID)
	require.NotNil(t, history[1].LatencyMS)
	assert.Equal(t, 500, *history[1].LatencyMS)
	assert.Equal(t, int64(750), history[1].DurationMS)

	all, err := db.GetProbeHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	pruned, err := db.PruneProbeHistory(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pruned)

	all, err = db.GetProbeHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, failed.ID, all[0].ID)
}

func TestActiveConnection(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	conn, err := db.GetActiveConnection(ctx)
	require.NoError(t, err)
	assert.Nil(t, conn)

	require.NoError(t, db.SetActiveConnection(ctx, &models.ActiveConnection{
		CoreType: "xray", Name: "first", SOCKSPort: 1080, APIPort: 10085,
	}))
	require.NoError(t, db.SetActiveConnection(ctx, &models.ActiveConnection{
		CoreType: "xray", Name: "second", SOCKSPort: 2080, APIPort: 20085,
	}))

	conn, err = db.GetActiveConnection(ctx)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, int64(1), conn.ID)
	assert.Equal(t, "second", conn.Name)
	assert.Equal(t, 2080, conn.SOCKSPort)
	assert.Equal(t, 20085, conn.APIPort)

	require.NoError(t, db.ClearActiveConnection(ctx))
	conn, err = db.GetActiveConnection(ctx)
	require.NoError(t, err)
	assert.Nil(t, conn)
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	tx, err := db.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SetSetting(ctx, storage.SettingRawConfig, "trojan://x"))
	require.NoError(t, tx.Rollback())

	_, err = db.GetSetting(ctx, storage.SettingRawConfig)
	assert.ErrorIs(t, err, pkgerrors.ErrSettingNotFound)

	tx, err = db.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SetSetting(ctx, storage.SettingRawConfig, "trojan://y"))
	require.NoError(t, tx.Commit())

	value, err := db.GetSetting(ctx, storage.SettingRawConfig)
	require.NoError(t, err)
	assert.Equal(t, "trojan://y", value)
}
