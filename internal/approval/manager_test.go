package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypdick/pynchy-gate/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPrompter struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (p *recordingPrompter) SendPrompt(_ context.Context, workspaceID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.prompts = append(p.prompts, workspaceID+": "+text)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *fakeClock, *recordingPrompter) {
	t.Helper()
	clock := newFakeClock()
	prompter := &recordingPrompter{}
	m := NewManager(Options{Clock: clock, Prompter: prompter})
	return m, clock, prompter
}

func sampleRequest() Request {
	return Request{
		WorkspaceID: "main",
		SessionID:   "s1",
		Capability:  "shared-channel",
		Summary:     "write shared-channel (workspace main): quarterly numbers",
		Reason:      "approval required: session holds untrusted input and secret data",
	}
}

func TestRequestIssuesCodeAndPrompts(t *testing.T) {
	m, _, prompter := newTestManager(t)

	code, err := m.Request(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Len(t, code, CodeLength)
	for _, r := range code {
		assert.Contains(t, codeAlphabet, string(r))
	}

	require.Len(t, prompter.prompts, 1)
	assert.Contains(t, prompter.prompts[0], "main: ")
	assert.Contains(t, prompter.prompts[0], "approve "+code)
	assert.Contains(t, prompter.prompts[0], "5m0s")

	pending := m.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, StatusPending, pending[0].Status)
}

func TestApproveResolvesWaiter(t *testing.T) {
	m, _, _ := newTestManager(t)
	code, err := m.Request(context.Background(), sampleRequest())
	require.NoError(t, err)

	done := make(chan Outcome, 1)
	go func() {
		out, err := m.Wait(context.Background(), code)
		if err == nil {
			done <- out
		}
		close(done)
	}()

	out := m.Resolve(code, true)
	require.NotNil(t, out)
	assert.True(t, out.Approved())

	got, ok := <-done
	require.True(t, ok, "waiter returned an error")
	assert.Equal(t, StatusApproved, got.Status)
	assert.Empty(t, m.Pending())
}

func TestDenyResolvesWaiter(t *testing.T) {
	m, _, _ := newTestManager(t)
	code, _ := m.Request(context.Background(), sampleRequest())

	require.NotNil(t, m.Resolve(code, false))
	out, err := m.Wait(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, StatusDenied, out.Status)
	assert.Equal(t, ReasonDenied, out.Reason)
}

func TestResolveUnknownOrDuplicate(t *testing.T) {
	m, _, _ := newTestManager(t)
	assert.Nil(t, m.Resolve("nosuch", true))

	code, _ := m.Request(context.Background(), sampleRequest())
	require.NotNil(t, m.Resolve(code, false))
	assert.Nil(t, m.Resolve(code, true), "second reply must be ignored")
}

func TestTimeoutDeniesExactlyOnce(t *testing.T) {
	m, clock, _ := newTestManager(t)
	code, _ := m.Request(context.Background(), sampleRequest())

	clock.Advance(4 * time.Minute)
	assert.Equal(t, 0, m.Sweep(clock.Now()))

	clock.Advance(time.Minute)
	assert.Equal(t, 1, m.Sweep(clock.Now()))
	assert.Equal(t, 0, m.Sweep(clock.Now()), "sweep must not expire a code twice")

	out, err := m.Wait(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, out.Status)
	assert.Equal(t, ReasonTimedOut, out.Reason)
	assert.False(t, out.Approved())

	assert.Nil(t, m.Resolve(code, true), "expired code must be unusable")
}

func TestLateReplyResolvesExpired(t *testing.T) {
	m, clock, _ := newTestManager(t)
	code, _ := m.Request(context.Background(), sampleRequest())

	clock.Advance(6 * time.Minute)
	out := m.Resolve(code, true)
	require.NotNil(t, out)
	assert.Equal(t, StatusExpired, out.Status)
	assert.Equal(t, ReasonExpired, out.Reason)
}

func TestWaitContextCancelLeavesCodeForSweep(t *testing.T) {
	m, clock, _ := newTestManager(t)
	code, _ := m.Request(context.Background(), sampleRequest())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Wait(ctx, code)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, m.Pending(), 1)

	clock.Advance(DefaultTimeout)
	assert.Equal(t, 1, m.Sweep(clock.Now()))
	assert.Empty(t, m.Pending())
}

func TestWaitUnknownCode(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Wait(context.Background(), "abcdef")
	assert.ErrorIs(t, err, ErrUnknownCode)
}

func TestPromptFailureDenies(t *testing.T) {
	m, _, prompter := newTestManager(t)
	prompter.err = errors.New("broker down")

	code, err := m.Request(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrAdapterUnavailable)
	assert.NotEmpty(t, code)

	out, err := m.Wait(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, StatusDenied, out.Status)
	assert.Equal(t, ReasonUnavailable, out.Reason)
}

func TestNilPrompterIsUnavailable(t *testing.T) {
	m := NewManager(Options{Clock: newFakeClock()})
	_, err := m.Request(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, model.ErrAdapterUnavailable)
}

func TestCodeCollisionRetries(t *testing.T) {
	m, _, _ := newTestManager(t)
	codes := []string{"aaaaaa", "aaaaaa", "bbbbbb"}
	i := 0
	m.newCode = func() (string, error) {
		c := codes[i]
		i++
		return c, nil
	}

	first, err := m.Request(context.Background(), sampleRequest())
	require.NoError(t, err)
	second, err := m.Request(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, "aaaaaa", first)
	assert.Equal(t, "bbbbbb", second)
}

func TestCodeAllocationGivesUp(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.newCode = func() (string, error) { return "aaaaaa", nil }

	_, err := m.Request(context.Background(), sampleRequest())
	require.NoError(t, err)
	_, err = m.Request(context.Background(), sampleRequest())
	assert.Error(t, err)
}

func TestHandleReply(t *testing.T) {
	m, _, _ := newTestManager(t)
	code, _ := m.Request(context.Background(), sampleRequest())

	res := m.HandleReply("main", "hello there")
	assert.False(t, res.Matched)

	res = m.HandleReply("other", "approve "+code)
	assert.True(t, res.Matched)
	assert.Nil(t, res.Outcome, "reply from another workspace must not resolve")

	res = m.HandleReply("main", "  APPROVE "+strings.ToUpper(code)+"  ")
	require.NotNil(t, res.Outcome)
	assert.Equal(t, StatusApproved, res.Outcome.Status)
}

func TestConcurrentRepliesResolveOnce(t *testing.T) {
	m, _, _ := newTestManager(t)
	code, _ := m.Request(context.Background(), sampleRequest())

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(approve bool) {
			defer wg.Done()
			if m.Resolve(code, approve) != nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i%2 == 0)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Sweep(time.Now().Add(time.Hour))
	}()
	wg.Wait()

	assert.LessOrEqual(t, wins, 1)
}

func TestStaleResolvedEntriesDropped(t *testing.T) {
	m, clock, _ := newTestManager(t)
	code, _ := m.Request(context.Background(), sampleRequest())
	m.Resolve(code, true)

	clock.Advance(2 * DefaultTimeout)
	m.Sweep(clock.Now())

	_, err := m.Wait(context.Background(), code)
	assert.ErrorIs(t, err, ErrUnknownCode)
}

func TestRunStopsOnCancel(t *testing.T) {
	m := NewManager(Options{SweepInterval: time.Millisecond, Prompter: &recordingPrompter{}})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, m.Run(ctx))
}

func TestJournalRecoverOrphans(t *testing.T) {
	dir := t.TempDir()
	j, err := NewFileJournal(dir)
	require.NoError(t, err)

	clock := newFakeClock()
	old := NewManager(Options{Clock: clock, Prompter: &recordingPrompter{}, Journal: j})
	code, err := old.Request(context.Background(), sampleRequest())
	require.NoError(t, err)

	journaled, err := j.List()
	require.NoError(t, err)
	require.Len(t, journaled, 1)

	fresh := NewManager(Options{Clock: clock, Prompter: &recordingPrompter{}, Journal: j})
	orphans, err := fresh.Recover()
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, code, orphans[0].Code)
	assert.Equal(t, StatusDenied, orphans[0].Status)
	assert.Equal(t, ReasonRestarted, orphans[0].Resolution)

	left, err := j.List()
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestJournalRecoverSkipsLiveOwner(t *testing.T) {
	j, err := NewFileJournal(t.TempDir())
	require.NoError(t, err)

	clock := newFakeClock()
	server := NewManager(Options{Clock: clock, Prompter: &recordingPrompter{}, Journal: j})
	server.pid = 4242
	code, err := server.Request(context.Background(), sampleRequest())
	require.NoError(t, err)

	other := NewManager(Options{Clock: clock, Prompter: &recordingPrompter{}, Journal: j})
	other.alive = func(pid int) bool { return pid == 4242 }
	orphans, err := other.Recover()
	require.NoError(t, err)
	assert.Empty(t, orphans)

	left, err := j.List()
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, code, left[0].Code)
	assert.Equal(t, 4242, left[0].OwnerPID)

	// once the owner exits the entry is an orphan
	other.alive = func(int) bool { return false }
	orphans, err = other.Recover()
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, code, orphans[0].Code)
}

func TestJournalClearedOnResolve(t *testing.T) {
	j, err := NewFileJournal(t.TempDir())
	require.NoError(t, err)
	m := NewManager(Options{Clock: newFakeClock(), Prompter: &recordingPrompter{}, Journal: j})

	code, _ := m.Request(context.Background(), sampleRequest())
	m.Resolve(code, false)

	left, err := j.List()
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestJournalRejectsTraversal(t *testing.T) {
	j, err := NewFileJournal(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, j.Save(Approval{Code: "../etc"}))
	assert.Error(t, j.Remove(""))
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		in      string
		code    string
		approve bool
		ok      bool
	}{
		{"approve k7m2xp", "k7m2xp", true, true},
		{"Deny K7M2XP", "k7m2xp", false, true},
		{"  approve   abc234 \n", "abc234", true, true},
		{"approve", "", false, false},
		{"please approve k7m2xp", "", false, false},
		{"approve k7m2xp now", "", false, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			code, approve, ok := ParseReply(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.approve, approve)
		})
	}
}
