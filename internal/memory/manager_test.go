package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/save-go/internal/config"
	"github.com/comigor/save-go/internal/conversation"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// lenCounter counts one token per byte.
type lenCounter struct{}

func (lenCounter) Count(text string) (int, error) { return len(text), nil }

type failingCounter struct{}

func (failingCounter) Count(string) (int, error) { return 0, fmt.Errorf("no encoding") }

func newTestManager(l Limits, opts ...Option) (*Manager, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clk.Now), WithTokenCounter(CharCounter{})}, opts...)
	return NewManager(l, opts...), clk
}

func countRoles(msgs []conversation.Message) (system, summary, other int) {
	for _, m := range msgs {
		switch {
		case m.Summary:
			summary++
		case m.Role == conversation.RoleSystem:
			system++
		default:
			other++
		}
	}
	return
}

func TestManager_EvictsByCountAndKeepsSystem(t *testing.T) {
	m, _ := newTestManager(DefaultLimits)
	m.Append("s", conversation.System("you are a product assistant"))

	for i := 0; i < 40; i++ {
		m.Append("s", conversation.User(fmt.Sprintf("message %d", i)))
		msgs := m.Snapshot("s")
		sys, _, other := countRoles(msgs)
		require.Equal(t, 1, sys, "system message must survive eviction")
		require.LessOrEqual(t, other, DefaultLimits.MaxMessages)
	}

	msgs := m.Snapshot("s")
	require.Equal(t, conversation.RoleSystem, msgs[0].Role)
	require.Equal(t, "message 39", msgs[len(msgs)-1].Content)
}

func TestManager_EvictionKeepsLastTen(t *testing.T) {
	m, _ := newTestManager(DefaultLimits)
	for i := 0; i < 16; i++ {
		m.Append("s", conversation.User(fmt.Sprintf("u%d", i)))
	}
	msgs := m.Snapshot("s")
	require.Len(t, msgs, 10)
	require.Equal(t, "u6", msgs[0].Content)
	require.Equal(t, "u15", msgs[9].Content)
}

func TestManager_TokenBudgetSummarizes(t *testing.T) {
	l := DefaultLimits
	l.MaxMessages = 100
	l.MaxTokens = 100
	m, _ := newTestManager(l, WithTokenCounter(lenCounter{}))

	m.Append("s", conversation.System("sys"))
	m.RecordValidation("s", Validation{UPC: "028400596008", Name: "Lay's Classic", Status: "valid"})
	for i := 0; i < 12; i++ {
		m.Append("s", conversation.User(fmt.Sprintf("%02d-%s", i, strings.Repeat("x", 47))))
	}

	msgs := m.Snapshot("s")
	sys, summary, other := countRoles(msgs)
	require.Equal(t, 1, sys)
	require.Equal(t, 1, summary, "a new summary replaces the previous one")
	require.Equal(t, l.SummaryKeep, other)
	require.Equal(t, "sys", msgs[0].Content)
	require.True(t, msgs[1].Summary)
	require.Contains(t, msgs[1].Content, "Validated 1 products including Lay's Classic")
	require.True(t, strings.HasPrefix(msgs[len(msgs)-1].Content, "11-"))
}

func TestManager_TokenBudgetKeepsShortHistory(t *testing.T) {
	l := DefaultLimits
	l.MaxTokens = 10
	m, _ := newTestManager(l, WithTokenCounter(lenCounter{}))
	for i := 0; i < 3; i++ {
		m.Append("s", conversation.User(strings.Repeat("y", 40)))
	}
	msgs := m.Snapshot("s")
	require.Len(t, msgs, 3)
	_, summary, _ := countRoles(msgs)
	require.Zero(t, summary)
}

func TestEstimateTokens_FallsBackOnCounterError(t *testing.T) {
	msgs := []conversation.Message{conversation.User("12345678"), conversation.User("1234")}
	require.Equal(t, 3, estimateTokens(failingCounter{}, msgs))
}

func TestSession_SummaryWithoutValidations(t *testing.T) {
	s := newSession("s", time.Now())
	require.Equal(t, "Previous conversation: User has validated 0 products with UPC codes and requested nutritional/ingredient information.", s.summary())
}

func TestManager_ExpireIfIdle(t *testing.T) {
	m, clk := newTestManager(DefaultLimits)
	m.Append("s", conversation.User("hello"))

	clk.Advance(29 * time.Minute)
	require.False(t, m.ExpireIfIdle("s"))
	require.Len(t, m.Snapshot("s"), 1)

	clk.Advance(31 * time.Minute)
	require.True(t, m.ExpireIfIdle("s"))
	require.Empty(t, m.Snapshot("s"))

	// the id remains usable
	m.Append("s", conversation.User("again"))
	require.Len(t, m.Snapshot("s"), 1)
	require.False(t, m.ExpireIfIdle("unknown"))
}

func TestManager_SweepAndStats(t *testing.T) {
	m, clk := newTestManager(DefaultLimits)
	m.Append("a", conversation.User("one"))
	clk.Advance(20 * time.Minute)
	m.Append("b", conversation.User("two"))
	m.Append("b", conversation.User("three"))
	clk.Advance(15 * time.Minute)

	st := m.Stats("b")
	require.Equal(t, 2, st.TotalSessions)
	require.Equal(t, 1, st.ActiveSessions)
	require.Equal(t, 1, st.ExpiredSessions)
	require.Equal(t, "b", st.SessionID)
	require.Equal(t, 2, st.MessageCount)

	require.Equal(t, 1, m.Sweep())
	require.Empty(t, m.Snapshot("a"))
	require.Len(t, m.Snapshot("b"), 2)
}

func TestManager_ResetAndDefaultID(t *testing.T) {
	m, _ := newTestManager(DefaultLimits)
	m.Append("", conversation.User("hi"))
	require.Len(t, m.Snapshot(DefaultSessionID), 1)
	m.RecordValidation("", Validation{UPC: "1", Name: "x"})

	m.Reset(DefaultSessionID)
	require.Empty(t, m.Snapshot(""))
	require.Empty(t, m.GetOrCreate("").Validations())
	require.Equal(t, ProductContext{}, m.GetOrCreate("").Product())
}

func TestManager_ValidationRing(t *testing.T) {
	m, _ := newTestManager(DefaultLimits)
	for i := 0; i < 13; i++ {
		m.RecordValidation("s", Validation{UPC: fmt.Sprintf("%012d", i), Name: fmt.Sprintf("p%d", i), Status: "valid"})
	}
	vs := m.GetOrCreate("s").Validations()
	require.Len(t, vs, 10)
	require.Equal(t, "p3", vs[0].Name)

	p := m.GetOrCreate("s").Product()
	require.Equal(t, "p12", p.Name)
	require.Len(t, p.Corrections, 12)
}

func TestManager_CommitIsAtomicAcrossWriters(t *testing.T) {
	m, _ := newTestManager(Limits{MaxMessages: 1000, KeepRecent: 1000, MaxTokens: 1 << 20, SummaryWindow: 8, SummaryKeep: 6, SessionTimeout: time.Hour})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				m.Commit("s",
					conversation.User(fmt.Sprintf("q%d-%d", w, i)),
					conversation.Assistant(fmt.Sprintf("a%d-%d", w, i)))
			}
		}(w)
	}
	wg.Wait()

	msgs := m.Snapshot("s")
	require.Len(t, msgs, 320)
	for i := 0; i < len(msgs); i += 2 {
		require.Equal(t, conversation.RoleUser, msgs[i].Role)
		require.Equal(t, "a"+msgs[i].Content[1:], msgs[i+1].Content)
	}
}

type memArchive struct {
	mu     sync.Mutex
	saved  map[string][]conversation.Message
	forgot []string
}

func (a *memArchive) Save(_ context.Context, id string, msg conversation.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.saved == nil {
		a.saved = map[string][]conversation.Message{}
	}
	a.saved[id] = append(a.saved[id], msg)
	return nil
}

func (a *memArchive) Since(_ context.Context, id string, t time.Time) ([]conversation.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []conversation.Message
	for _, m := range a.saved[id] {
		if !m.CreatedAt.Before(t) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (a *memArchive) Forget(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.saved, id)
	a.forgot = append(a.forgot, id)
	return nil
}

func TestManager_ArchiveRestoreAndForget(t *testing.T) {
	arc := &memArchive{}
	recent := conversation.User("recent")
	recent.CreatedAt = time.Now()
	old := conversation.User("old")
	old.CreatedAt = time.Now().Add(-2 * time.Hour)
	arc.saved = map[string][]conversation.Message{"s": {old, recent}}

	m := NewManager(DefaultLimits, WithArchive(arc), WithTokenCounter(CharCounter{}))
	msgs := m.Snapshot("s")
	require.Len(t, msgs, 1)
	require.Equal(t, "recent", msgs[0].Content)

	m.Commit("s", conversation.Assistant("answer"))
	require.Len(t, arc.saved["s"], 3)

	m.Reset("s")
	require.Equal(t, []string{"s"}, arc.forgot)
}

func TestLimitsFromConfig_KeepsDefaults(t *testing.T) {
	l := LimitsFromConfig(config.MemoryConfig{MaxMessages: 20})
	require.Equal(t, 20, l.MaxMessages)
	require.Equal(t, DefaultLimits.KeepRecent, l.KeepRecent)
	require.Equal(t, DefaultLimits.SessionTimeout, l.SessionTimeout)
}
