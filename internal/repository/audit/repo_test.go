package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kailas-cloud/docreview/internal/db/sqldb"
	"github.com/kailas-cloud/docreview/internal/domain"
	domaudit "github.com/kailas-cloud/docreview/internal/domain/audit"
)

func newRepo(t *testing.T) *Repo {
	t.Helper()
	ctx := context.Background()
	gdb, err := sqldb.OpenMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close(gdb) })
	r := New(gdb)
	require.NoError(t, r.Migrate(ctx))
	return r
}

func TestAppend_AssignsSeqAndDefaultsReviewer(t *testing.T) {
	r := newRepo(t)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	e, err := r.Append(context.Background(), domaudit.Entry{
		DocumentID: "doc-1", FieldName: "vendor", OldValue: "a", NewValue: "b", Timestamp: ts,
	})
	require.NoError(t, err)
	require.Positive(t, e.Seq)
	require.Equal(t, domaudit.SystemReviewer, e.ReviewerID)
}

func TestAppend_Validation(t *testing.T) {
	r := newRepo(t)
	_, err := r.Append(context.Background(), domaudit.Entry{FieldName: "vendor", Timestamp: time.Now()})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = r.Append(context.Background(), domaudit.Entry{DocumentID: "d", Timestamp: time.Now()})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestHistory_OrderedByTimestampThenSeq(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := r.Append(ctx, domaudit.Entry{DocumentID: "d", FieldName: "late", Timestamp: t0.Add(time.Minute)})
	require.NoError(t, err)
	_, err = r.Append(ctx, domaudit.Entry{DocumentID: "d", FieldName: "first", Timestamp: t0})
	require.NoError(t, err)
	_, err = r.Append(ctx, domaudit.Entry{DocumentID: "d", FieldName: "second", Timestamp: t0})
	require.NoError(t, err)
	_, err = r.Append(ctx, domaudit.Entry{DocumentID: "other", FieldName: "x", Timestamp: t0})
	require.NoError(t, err)

	got, err := r.History(ctx, "d")
	require.NoError(t, err)
	require.Len(t, got, 3)
	names := []string{got[0].FieldName, got[1].FieldName, got[2].FieldName}
	require.Equal(t, []string{"first", "second", "late"}, names)
	require.True(t, got[0].Before(got[1]))
}

func TestAppendTx_RollsBackWithCaller(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.AppendTx(tx, []domaudit.Entry{
			{DocumentID: "d", FieldName: "status", Timestamp: time.Now()},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := r.History(ctx, "d")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestAppendTx_Empty(t *testing.T) {
	r := newRepo(t)
	require.NoError(t, r.AppendTx(r.db, nil))
}
