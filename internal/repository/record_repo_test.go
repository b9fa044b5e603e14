package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JackeyWin/stock_go_server/internal/testutil"
)

func TestRecordRepository_FindByStockBetween(t *testing.T) {
	repo := NewRecordRepository(testutil.SetupTestDB(t))

	now := time.Now()
	require.NoError(t, repo.Create(testutil.TestRecord(
		testutil.WithRecordContent("早上的记录"),
		testutil.WithRecordCreatedAt(now.Add(-2*time.Hour)),
	)))
	require.NoError(t, repo.Create(testutil.TestRecord(
		testutil.WithRecordContent("刚才的记录"),
		testutil.WithRecordCreatedAt(now.Add(-10*time.Minute)),
	)))
	require.NoError(t, repo.Create(testutil.TestRecord(
		testutil.WithRecordStock("000001"),
		testutil.WithRecordContent("别的股票"),
		testutil.WithRecordCreatedAt(now.Add(-10*time.Minute)),
	)))
	require.NoError(t, repo.Create(testutil.TestRecord(
		testutil.WithRecordContent("范围之外"),
		testutil.WithRecordCreatedAt(now.Add(-48*time.Hour)),
	)))

	records, err := repo.FindByStockBetween("600519", now.Add(-3*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// 新的在前
	assert.Equal(t, "刚才的记录", records[0].Content)
	assert.Equal(t, "早上的记录", records[1].Content)
}

func TestRecordRepository_DeleteBefore(t *testing.T) {
	repo := NewRecordRepository(testutil.SetupTestDB(t))

	now := time.Now()
	require.NoError(t, repo.Create(testutil.TestRecord(
		testutil.WithRecordCreatedAt(now.AddDate(0, 0, -10)),
	)))
	require.NoError(t, repo.Create(testutil.TestRecord(
		testutil.WithRecordCreatedAt(now.Add(-time.Hour)),
	)))

	deleted, err := repo.DeleteBefore(now.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	records, err := repo.FindByStockBetween("600519", now.AddDate(0, 0, -30), now)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
