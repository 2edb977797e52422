package audit

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var base = time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err, "failed to open store")
	t.Cleanup(func() { s.Close() })
	return s
}

func ts(d time.Duration) string {
	return base.Add(d).Format(TimestampFormat)
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	flagged := true
	records := []Record{
		{Timestamp: ts(0), WorkspaceID: "main", SessionID: "s1", Capability: "calendar", Operation: "read", Kind: "allow", Decision: "allow", Reason: "read from calendar allowed"},
		{Timestamp: ts(time.Minute), WorkspaceID: "main", SessionID: "s1", Capability: "inbox", Operation: "read", Kind: "allow", Decision: "allow"},
		{Timestamp: ts(2 * time.Minute), WorkspaceID: "main", SessionID: "s1", Capability: "bash", Operation: "write", Kind: "cop_review", Decision: "allow", ReviewerFlagged: new(bool)},
		{Timestamp: ts(3 * time.Minute), WorkspaceID: "ops", SessionID: "s2", Capability: "vault", Operation: "write", Kind: "blocked", Decision: "blocked", Reason: "blocked: vault dangerous_writes is forbidden"},
		{Timestamp: ts(4 * time.Minute), WorkspaceID: "main", SessionID: "s1", Capability: "shared-channel", Operation: "write", Kind: "human_approval", Decision: "human_approval", ApprovalCode: "k7m2xp", ReviewerFlagged: &flagged, ReviewerReason: "posts secrets"},
		{Timestamp: ts(5 * time.Minute), WorkspaceID: "ops", SessionID: "s2", Capability: "calendar", Operation: "read", Kind: "rate_limited"},
	}
	for _, r := range records {
		require.NoError(t, s.Record(context.Background(), r))
	}
}

func TestRecordFillsIdentityAndChain(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Record(context.Background(), Record{Kind: "allow", Capability: "calendar"}))
	require.NoError(t, s.Record(context.Background(), Record{Kind: "allow", Capability: "inbox"}))

	got, err := s.Query(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.NotEmpty(t, got[0].ID)
	assert.NotEmpty(t, got[0].Timestamp)
	assert.Equal(t, GenesisHash, got[0].PrevHash)
	assert.Equal(t, got[0].Hash, got[1].PrevHash)
	assert.True(t, strings.HasPrefix(got[1].Hash, "sha256:"))
}

func TestQueryFilters(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	byWs, err := s.Query(ctx, Filter{WorkspaceID: "ops"})
	require.NoError(t, err)
	assert.Len(t, byWs, 2)

	byCap, err := s.Query(ctx, Filter{Capability: "calendar"})
	require.NoError(t, err)
	assert.Len(t, byCap, 2)

	byKind, err := s.Query(ctx, Filter{Kind: "blocked"})
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	assert.Equal(t, "vault", byKind[0].Capability)

	byRange, err := s.Query(ctx, Filter{From: base.Add(time.Minute), To: base.Add(3 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, byRange, 3)

	limited, err := s.Query(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestReviewerFlagRoundTrip(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	got, err := s.Query(context.Background(), Filter{Capability: "shared-channel"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].ReviewerFlagged)
	assert.True(t, *got[0].ReviewerFlagged)
	assert.Equal(t, "k7m2xp", got[0].ApprovalCode)

	unreviewed, err := s.Query(context.Background(), Filter{Capability: "vault"})
	require.NoError(t, err)
	assert.Nil(t, unreviewed[0].ReviewerFlagged)
}

func TestVerifyIntactChain(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	res := s.Verify(context.Background())
	assert.True(t, res.Valid, res.Error)
	assert.Equal(t, 6, res.Records)
	assert.Equal(t, GenesisHash, res.Anchor)
}

func TestVerifyDetectsTampering(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	_, err := s.db.Exec(`UPDATE audit_records SET decision = 'allow' WHERE capability = 'vault'`)
	require.NoError(t, err)

	res := s.Verify(context.Background())
	assert.False(t, res.Valid)
	assert.Contains(t, res.Error, "hash mismatch")
	assert.Equal(t, int64(4), res.ErrorSeq)
}

func TestVerifyDetectsDeletedRow(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	_, err := s.db.Exec(`DELETE FROM audit_records WHERE seq = 3`)
	require.NoError(t, err)

	res := s.Verify(context.Background())
	assert.False(t, res.Valid)
	assert.Contains(t, res.Error, "chain broken")
}

func TestPruneKeepsChainVerifiable(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	n, err := s.Prune(ctx, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, left, 4)

	res := s.Verify(ctx)
	assert.True(t, res.Valid, res.Error)
	assert.NotEqual(t, GenesisHash, res.Anchor)

	require.NoError(t, s.Record(ctx, Record{Kind: "allow"}))
	assert.True(t, s.Verify(ctx).Valid)
}

func TestReopenContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), Record{Kind: "allow"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Record(context.Background(), Record{Kind: "blocked"}))

	res := s.Verify(context.Background())
	assert.True(t, res.Valid, res.Error)
	assert.Equal(t, 2, res.Records)
}

func TestTwoWritersShareOneChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, a.Record(ctx, Record{Kind: "allow", WorkspaceID: "serve"}))
		require.NoError(t, b.Record(ctx, Record{Kind: "allow", WorkspaceID: "mcp"}))
	}

	res := a.Verify(ctx)
	assert.True(t, res.Valid, res.Error)
	assert.Equal(t, 6, res.Records)

	got, err := b.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 6)
	for i := 1; i < len(got); i++ {
		assert.Equal(t, got[i-1].Hash, got[i].PrevHash, "seq %d", got[i].Seq)
	}
}

func TestConcurrentWritersShareOneChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	var stores []*Store
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err)
		defer s.Close()
		stores = append(stores, s)
	}

	ctx := context.Background()
	var g errgroup.Group
	for _, s := range stores {
		g.Go(func() error {
			for i := 0; i < 10; i++ {
				if err := s.Record(ctx, Record{Kind: "allow"}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	res := stores[0].Verify(ctx)
	assert.True(t, res.Valid, res.Error)
	assert.Equal(t, 30, res.Records)
}

func TestSummarize(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	sum, err := s.Summarize(context.Background(), Filter{WorkspaceID: "main"})
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 2, sum.ByKind["allow"])
	assert.Equal(t, 1, sum.ByKind["human_approval"])
	assert.Equal(t, 1, sum.Approvals)
	assert.Equal(t, 1, sum.ReviewerFlags)
	assert.Equal(t, ts(0), sum.FirstTimestamp)
	assert.Equal(t, ts(4*time.Minute), sum.LastTimestamp)
}

func TestFormatTimeline(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	records, err := s.Query(context.Background(), Filter{})
	require.NoError(t, err)

	out := FormatTimeline(records)
	assert.Contains(t, out, "BLOCKED")
	assert.Contains(t, out, "[k7m2xp]")
	assert.Contains(t, out, "Summary: 6 records")
	assert.Equal(t, "No audit records found.\n", FormatTimeline(nil))
}

type failingSink struct{ calls int }

func (f *failingSink) Record(context.Context, Record) error {
	f.calls++
	return errors.New("disk full")
}

func TestBestEffortSwallowsErrors(t *testing.T) {
	sink := &failingSink{}
	b := Best(sink, nil)
	b.Record(context.Background(), Record{Kind: "allow"})
	assert.Equal(t, 1, sink.calls)

	var nilBest *BestEffort
	nilBest.Record(context.Background(), Record{})
	Best(nil, nil).Record(context.Background(), Record{})
}

func TestBestEffortRecordsAfterCancel(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	Best(s, nil).Record(ctx, Record{Kind: "human_approval", Reason: "cancelled"})

	got, err := s.Query(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestPrunerPruneOnce(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	p, err := NewPruner(s, time.Hour, "@daily", nil)
	require.NoError(t, err)
	p.now = func() time.Time { return base.Add(time.Hour + 150*time.Second) }

	n, err := p.PruneOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestPrunerSchedule(t *testing.T) {
	s := newTestStore(t)
	p, err := NewPruner(s, 24*time.Hour, "0 3 * * *", nil)
	require.NoError(t, err)
	want := time.Date(2026, 1, 16, 3, 0, 0, 0, time.UTC)
	assert.True(t, want.Equal(p.Next(base)), "next run %s", p.Next(base))

	_, err = NewPruner(s, time.Hour, "not a schedule", nil)
	assert.Error(t, err)
	_, err = NewPruner(s, 0, "", nil)
	assert.Error(t, err)
}

func TestPrunerRunStops(t *testing.T) {
	s := newTestStore(t)
	p, err := NewPruner(s, time.Hour, "", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.NoError(t, p.Run(ctx))
}
