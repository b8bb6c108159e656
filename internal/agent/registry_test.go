package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nidhogg/jarvis/internal/generator"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestRegistry(t *testing.T, opts ...RegistryOption) (*Registry, *fakeClock) {
	t.Helper()
	return newTestRegistryWith(t, newTestPipeline(t), opts...)
}

func newTestRegistryWith(t *testing.T, p *Pipeline, opts ...RegistryOption) (*Registry, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	factory := func(sessionID string) *Agent {
		return New(sessionID, p, WithClock(clock.Now))
	}
	opts = append([]RegistryOption{WithRegistryClock(clock.Now)}, opts...)
	return NewRegistry(factory, zap.NewNop(), opts...), clock
}

func TestSessionIsolation(t *testing.T) {
	r, _ := newTestRegistry(t)
	a := r.GetOrCreate("alpha")
	b := r.GetOrCreate("beta")
	if a == b {
		t.Fatal("distinct sessions share an agent")
	}
	if r.GetOrCreate("alpha") != a {
		t.Error("same session returned a different agent")
	}

	a.ProcessMessage(context.Background(), "hello")
	if b.Status().ConversationCount != 0 || b.Status().MemoryCount != 0 {
		t.Error("state leaked across sessions")
	}
	if r.Len() != 2 {
		t.Errorf("got %d sessions, want 2", r.Len())
	}
}

func TestDefaultAgent(t *testing.T) {
	r, _ := newTestRegistry(t)
	if r.GetOrCreate("") != r.Default() || r.GetOrCreate(DefaultSessionID) != r.Default() {
		t.Error("empty session did not resolve to the default agent")
	}
	if r.Len() != 0 {
		t.Errorf("default agent was bound as a session")
	}
}

func TestEvictIdle(t *testing.T) {
	r, clock := newTestRegistry(t)
	r.GetOrCreate("old")
	clock.Advance(2 * time.Hour)
	r.GetOrCreate("fresh")
	r.ProcessMessage(context.Background(), "hello", "")

	evicted := r.EvictIdle(time.Hour)
	if len(evicted) != 1 || evicted[0] != "old" {
		t.Fatalf("got evicted %v, want [old]", evicted)
	}
	if _, ok := r.Lookup("old"); ok {
		t.Error("evicted session still bound")
	}
	if _, ok := r.Lookup("fresh"); !ok {
		t.Error("active session was evicted")
	}

	clock.Advance(100 * 24 * time.Hour)
	r.EvictIdle(time.Minute)
	if r.Len() != 0 {
		t.Errorf("got %d sessions after full sweep", r.Len())
	}
	if r.Default() == nil || r.Default().Status().ConversationCount != 2 {
		t.Error("default agent was evicted or reset")
	}
}

func TestEvictIdleDefaultAge(t *testing.T) {
	r, clock := newTestRegistry(t)
	r.GetOrCreate("s")
	clock.Advance(23 * time.Hour)
	if got := r.EvictIdle(0); len(got) != 0 {
		t.Errorf("evicted %v before 24h", got)
	}
	clock.Advance(2 * time.Hour)
	if got := r.EvictIdle(-1); len(got) != 1 {
		t.Errorf("got %v, want one eviction after 25h", got)
	}
}

func TestActivityRefreshedByUse(t *testing.T) {
	r, clock := newTestRegistry(t)
	r.GetOrCreate("s")
	clock.Advance(50 * time.Minute)
	r.ProcessMessage(context.Background(), "hello", "s")
	clock.Advance(50 * time.Minute)
	if got := r.EvictIdle(time.Hour); len(got) != 0 {
		t.Errorf("recently used session evicted: %v", got)
	}
}

func TestStatusCreatesSession(t *testing.T) {
	r, clock := newTestRegistry(t)
	st := r.Status("new")
	if st.SessionID != "new" || st.State != StateIdle {
		t.Errorf("got %+v", st)
	}
	if !st.LastActivity.Equal(clock.Now()) {
		t.Errorf("got last activity %v", st.LastActivity)
	}
	if r.Len() != 1 {
		t.Error("status did not bind the session")
	}
}

func TestStatusAll(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.GetOrCreate("b")
	r.GetOrCreate("a")
	all := r.StatusAll()
	if len(all) != 3 {
		t.Fatalf("got %d statuses, want 3", len(all))
	}
	if all[0].SessionID != DefaultSessionID || all[1].SessionID != "a" || all[2].SessionID != "b" {
		t.Errorf("unexpected order: %s %s %s", all[0].SessionID, all[1].SessionID, all[2].SessionID)
	}
}

func TestClearSession(t *testing.T) {
	r, _ := newTestRegistry(t)
	first := r.GetOrCreate("s")
	if !r.ClearSession("s") {
		t.Error("clear reported no session")
	}
	if r.ClearSession("s") {
		t.Error("second clear reported a session")
	}
	if r.GetOrCreate("s") == first {
		t.Error("cleared session kept its agent")
	}

	r.ProcessMessage(context.Background(), "hello", "")
	if !r.ClearSession("") {
		t.Error("clearing default reported false")
	}
	if r.Default().Status().ConversationCount != 0 {
		t.Error("default agent not reset")
	}
}

func TestObserverNotified(t *testing.T) {
	var got []*Exchange
	r, _ := newTestRegistry(t, WithObserver(ObserverFunc(func(_ context.Context, ex *Exchange) {
		got = append(got, ex)
	})))
	r.ProcessMessage(context.Background(), "hello", "s")
	if len(got) != 1 {
		t.Fatalf("observer called %d times", len(got))
	}
	if got[0].SessionID != "s" || got[0].Message != "hello" || got[0].Chain == nil {
		t.Errorf("got %+v", got[0])
	}
}

func TestConcurrentSessions(t *testing.T) {
	r, _ := newTestRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := []string{"a", "b", "c", "d"}[i%4]
			for j := 0; j < 10; j++ {
				r.ProcessMessage(context.Background(), "hello", id)
				r.StatusAll()
			}
		}(i)
	}
	wg.Wait()
	for _, id := range []string{"a", "b", "c", "d"} {
		if got := r.Status(id).ConversationCount; got != 40 {
			t.Errorf("session %s: got %d turns, want 40", id, got)
		}
	}
}

// gateGenerator holds every reply until release is closed.
type gateGenerator struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gateGenerator) Name() string { return "gate" }

func (g *gateGenerator) GenerateReply(ctx context.Context, _ string, _ generator.ReplyContext) (*generator.Reply, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return &generator.Reply{Text: "done", Category: "general", Confidence: 0.8}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gateGenerator) GenerateCode(context.Context, string, string) (*generator.Code, error) {
	return nil, generator.ErrNoReply
}

func TestEvictIdleSkipsInFlightSession(t *testing.T) {
	gen := &gateGenerator{started: make(chan struct{}), release: make(chan struct{})}
	r, clock := newTestRegistryWith(t, newTestPipeline(t, WithGenerator(gen)))

	done := make(chan *Exchange, 1)
	go func() { done <- r.ProcessMessage(context.Background(), "hello there", "s1") }()
	<-gen.started

	clock.Advance(time.Hour)
	if evicted := r.EvictIdle(time.Minute); len(evicted) != 0 {
		t.Fatalf("evicted busy session: %v", evicted)
	}

	close(gen.release)
	<-done

	a, ok := r.Lookup("s1")
	if !ok {
		t.Fatal("session lost while its message was in flight")
	}
	if got := a.Status().ConversationCount; got != 2 {
		t.Errorf("conversation_count = %d, want 2", got)
	}

	clock.Advance(time.Hour)
	if evicted := r.EvictIdle(time.Minute); len(evicted) != 1 || evicted[0] != "s1" {
		t.Errorf("evicted = %v, want [s1] once idle", evicted)
	}
}
