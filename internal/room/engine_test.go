package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/livechat/internal/model"
	"github.com/johndosdos/livechat/internal/store"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	events []model.Event
}

func newConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Emit(e model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *fakeConn) Events() []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Event(nil), c.events...)
}

func (c *fakeConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

func eventsOf[T model.Event](c *fakeConn) []T {
	var out []T
	for _, e := range c.Events() {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// flakyMessages fails on demand and otherwise delegates to a real service.
type flakyMessages struct {
	*store.Service
	failCreate bool
	failRecent bool
}

func (m *flakyMessages) CreateMessage(ctx context.Context, username, content string) (model.Message, error) {
	if m.failCreate {
		return model.Message{}, &store.PersistenceError{Op: "create", Err: errors.New("connection refused")}
	}
	return m.Service.CreateMessage(ctx, username, content)
}

func (m *flakyMessages) RecentMessages(ctx context.Context, limit int) ([]model.Message, error) {
	if m.failRecent {
		return nil, &store.PersistenceError{Op: "recent", Err: errors.New("connection refused")}
	}
	return m.Service.RecentMessages(ctx, limit)
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []model.Message
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, msg model.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return p.err
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	return NewEngine(store.NewService(mem, nil), opts...), mem
}

func TestEngine_Join(t *testing.T) {
	ctx := context.Background()
	e, mem := newTestEngine(t)
	for i := range 25 {
		_, err := mem.Create(ctx, "Bob", fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	alice := newConn("a")
	e.Join(ctx, alice, "  Alice ")

	events := alice.Events()
	require.Len(t, events, 2)
	assert.Equal(t, model.JoinConfirmed{Username: "Alice", Message: "Successfully joined the chat"}, events[0])

	history, ok := events[1].(model.ChatHistory)
	require.True(t, ok)
	assert.Equal(t, 20, history.Count)
	require.Len(t, history.Messages, 20)
	assert.Equal(t, "message 5", history.Messages[0].Content)
	assert.Equal(t, "message 24", history.Messages[19].Content)

	assert.Equal(t, 1, e.ConnectedCount())
	s, ok := e.Session("a")
	require.True(t, ok)
	assert.Equal(t, "Alice", s.Username)
}

func TestEngine_JoinEmptyHistory(t *testing.T) {
	e, _ := newTestEngine(t)
	alice := newConn("a")

	e.Join(context.Background(), alice, "Alice")

	history := eventsOf[model.ChatHistory](alice)
	require.Len(t, history, 1)
	assert.Equal(t, 0, history[0].Count)
	assert.NotNil(t, history[0].Messages)
}

func TestEngine_JoinRejected(t *testing.T) {
	tests := []struct {
		name     string
		username string
		want     string
	}{
		{"empty", "", ErrMsgUsernameRequired},
		{"blank", "   ", ErrMsgUsernameRequired},
		{"bad charset", "Alice!", "Username can only contain letters, numbers, and spaces"},
		{"too long", strings.Repeat("a", 51), "Username cannot exceed 50 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			bob := newConn("b")
			e.Join(context.Background(), bob, "Bob")
			bob.Reset()

			c := newConn("a")
			e.Join(context.Background(), c, tt.username)

			errs := eventsOf[model.Error](c)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.want, errs[0].Message)
			assert.Len(t, c.Events(), 1)
			assert.Equal(t, 1, e.ConnectedCount())
			assert.Empty(t, bob.Events())
		})
	}
}

func TestEngine_JoinHistoryFailure(t *testing.T) {
	msgs := &flakyMessages{Service: store.NewService(store.NewMemoryStore(), nil), failRecent: true}
	e := NewEngine(msgs)

	bob := newConn("b")
	e.Join(context.Background(), bob, "Bob")
	bob.Reset()

	alice := newConn("a")
	e.Join(context.Background(), alice, "Alice")

	events := alice.Events()
	require.Len(t, events, 2)
	assert.IsType(t, model.JoinConfirmed{}, events[0])
	assert.Equal(t, model.Error{Message: ErrMsgHistory}, events[1])

	// The join itself stands.
	assert.Equal(t, 2, e.ConnectedCount())
	assert.Len(t, eventsOf[model.UserJoined](bob), 1)
}

func TestEngine_UserJoinedGoesToOthersOnly(t *testing.T) {
	e, _ := newTestEngine(t)
	alice, bob := newConn("a"), newConn("b")

	e.Join(context.Background(), alice, "Alice")
	e.Join(context.Background(), bob, "Bob")

	joined := eventsOf[model.UserJoined](alice)
	require.Len(t, joined, 1)
	assert.Equal(t, "Bob", joined[0].Username)
	assert.False(t, joined[0].Timestamp.IsZero())

	assert.Empty(t, eventsOf[model.UserJoined](bob))
}

func TestEngine_Rejoin(t *testing.T) {
	e, _ := newTestEngine(t)
	alice, bob := newConn("a"), newConn("b")
	e.Join(context.Background(), alice, "Alice")
	e.Join(context.Background(), bob, "Bob")
	alice.Reset()
	bob.Reset()

	t.Run("same name is confirmed again", func(t *testing.T) {
		e.Join(context.Background(), alice, "Alice")

		assert.Equal(t, []model.Event{
			model.JoinConfirmed{Username: "Alice", Message: "Successfully joined the chat"},
		}, alice.Events())
		assert.Empty(t, bob.Events())
		assert.Equal(t, 2, e.ConnectedCount())
	})

	alice.Reset()

	t.Run("different name is rejected", func(t *testing.T) {
		e.Join(context.Background(), alice, "Mallory")

		assert.Equal(t, []model.Event{model.Error{Message: ErrMsgAlreadyJoined}}, alice.Events())
		s, _ := e.Session("a")
		assert.Equal(t, "Alice", s.Username)
		assert.Empty(t, bob.Events())
	})
}

func TestEngine_SameNameOnTwoConnections(t *testing.T) {
	e, _ := newTestEngine(t)
	c1, c2 := newConn("1"), newConn("2")

	e.Join(context.Background(), c1, "Alice")
	e.Join(context.Background(), c2, "Alice")

	assert.Equal(t, 2, e.ConnectedCount())
}

func TestEngine_Send(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	e, mem := newTestEngine(t, WithPublisher(pub))
	alice, bob, outsider := newConn("a"), newConn("b"), newConn("x")

	e.Join(ctx, alice, "Alice")
	e.Join(ctx, bob, "Bob")
	alice.Reset()
	bob.Reset()

	e.Send(ctx, alice, "Alice", "Hello")

	for _, c := range []*fakeConn{alice, bob} {
		received := eventsOf[model.MessageReceived](c)
		require.Len(t, received, 1, "connection %s", c.ID())
		assert.Equal(t, "Alice", received[0].Username)
		assert.Equal(t, "Hello", received[0].Content)
	}
	assert.Empty(t, outsider.Events())

	received := eventsOf[model.MessageReceived](alice)[0]
	stored, err := mem.ByID(ctx, received.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Hello", stored.Content)
	assert.Equal(t, stored.Timestamp, received.Timestamp)
	assert.Equal(t, stored.CreatedAt, received.CreatedAt)

	require.Len(t, pub.messages, 1)
	assert.Equal(t, stored.ID, pub.messages[0].ID)
}

func TestEngine_SendRejected(t *testing.T) {
	tests := []struct {
		name     string
		join     string
		username string
		content  string
		want     string
		details  []string
	}{
		{"not joined", "", "Alice", "Hi", ErrMsgNotJoined, nil},
		{"username mismatch", "Alice", "Bob", "Hi", ErrMsgNotJoined, nil},
		{"missing content", "Alice", "Alice", "", ErrMsgFieldsRequired, nil},
		{"missing username", "Alice", "", "Hi", ErrMsgFieldsRequired, nil},
		{"content too long", "Alice", "Alice", strings.Repeat("a", 501), ErrMsgInvalidMessage,
			[]string{"Message cannot exceed 500 characters"}},
		{"blank content", "Alice", "Alice", "   ", ErrMsgInvalidMessage,
			[]string{"Message cannot be empty"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e, mem := newTestEngine(t)
			sender, other := newConn("s"), newConn("o")
			e.Join(ctx, other, "Other")
			if tt.join != "" {
				e.Join(ctx, sender, tt.join)
			}
			sender.Reset()
			other.Reset()

			e.Send(ctx, sender, tt.username, tt.content)

			assert.Equal(t, []model.Event{model.Error{Message: tt.want, Details: tt.details}}, sender.Events())
			assert.Empty(t, other.Events())

			stats, err := mem.Stats(ctx)
			require.NoError(t, err)
			assert.Zero(t, stats.TotalMessages)
		})
	}
}

func TestEngine_SendTrimmedUsernameMatches(t *testing.T) {
	e, _ := newTestEngine(t)
	alice := newConn("a")
	e.Join(context.Background(), alice, "Alice")
	alice.Reset()

	e.Send(context.Background(), alice, " Alice ", "Hi")

	received := eventsOf[model.MessageReceived](alice)
	require.Len(t, received, 1)
	assert.Equal(t, "Alice", received[0].Username)
}

func TestEngine_SendPersistenceFailure(t *testing.T) {
	msgs := &flakyMessages{Service: store.NewService(store.NewMemoryStore(), nil)}
	e := NewEngine(msgs)
	alice, bob := newConn("a"), newConn("b")
	e.Join(context.Background(), alice, "Alice")
	e.Join(context.Background(), bob, "Bob")
	alice.Reset()
	bob.Reset()

	msgs.failCreate = true
	e.Send(context.Background(), alice, "Alice", "Hello")

	assert.Equal(t, []model.Event{model.Error{
		Message: ErrMsgSendFailed,
		Details: []string{"store: create failed: connection refused"},
	}}, alice.Events())
	assert.Empty(t, bob.Events())
}

func TestEngine_PublishFailureDoesNotAffectSender(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("no responders")}
	e, _ := newTestEngine(t, WithPublisher(pub))
	alice := newConn("a")
	e.Join(context.Background(), alice, "Alice")
	alice.Reset()

	e.Send(context.Background(), alice, "Alice", "Hello")

	assert.Len(t, eventsOf[model.MessageReceived](alice), 1)
	assert.Empty(t, eventsOf[model.Error](alice))
}

func TestEngine_Typing(t *testing.T) {
	e, _ := newTestEngine(t)
	alice, bob, stranger := newConn("a"), newConn("b"), newConn("s")
	e.Join(context.Background(), alice, "Alice")
	e.Join(context.Background(), bob, "Bob")
	alice.Reset()
	bob.Reset()

	e.Typing(context.Background(), alice, true)

	assert.Empty(t, alice.Events())
	assert.Equal(t, []model.Event{model.UserTyping{Username: "Alice", IsTyping: true}}, bob.Events())

	bob.Reset()
	e.Typing(context.Background(), stranger, true)

	assert.Empty(t, stranger.Events())
	assert.Empty(t, alice.Events())
	assert.Empty(t, bob.Events())
}

func TestEngine_Disconnect(t *testing.T) {
	e, _ := newTestEngine(t)
	alice, bob, carol := newConn("a"), newConn("b"), newConn("c")
	e.Join(context.Background(), alice, "Alice")
	e.Join(context.Background(), bob, "Bob")
	e.Join(context.Background(), carol, "Carol")
	alice.Reset()
	bob.Reset()
	carol.Reset()

	e.Disconnect(context.Background(), alice, "transport close")
	e.Disconnect(context.Background(), alice, "transport close")

	assert.Equal(t, 2, e.ConnectedCount())
	for _, s := range e.ConnectedUsers() {
		assert.NotEqual(t, "a", s.ConnectionID)
	}

	for _, c := range []*fakeConn{bob, carol} {
		left := eventsOf[model.UserLeft](c)
		require.Len(t, left, 1)
		assert.Equal(t, "Alice", left[0].Username)
		assert.Equal(t, "transport close", left[0].Reason)
	}
	assert.Empty(t, alice.Events())

	// A departed connection no longer receives broadcasts.
	e.Send(context.Background(), bob, "Bob", "still here?")
	assert.Empty(t, alice.Events())
}

func TestEngine_DisconnectUnjoined(t *testing.T) {
	e, _ := newTestEngine(t)
	alice, stranger := newConn("a"), newConn("s")
	e.Join(context.Background(), alice, "Alice")
	alice.Reset()

	e.Disconnect(context.Background(), stranger, "client namespace disconnect")

	assert.Equal(t, 1, e.ConnectedCount())
	assert.Empty(t, alice.Events())
}

func TestEngine_SendAfterDisconnectMidFlight(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	gate := &gatedMessages{Service: store.NewService(mem, nil), release: make(chan struct{}), entered: make(chan struct{})}
	e := NewEngine(gate)
	alice, bob := newConn("a"), newConn("b")
	e.Join(ctx, alice, "Alice")
	e.Join(ctx, bob, "Bob")
	alice.Reset()
	bob.Reset()

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Send(ctx, alice, "Alice", "Hello")
	}()

	<-gate.entered
	e.Disconnect(ctx, alice, "transport close")
	close(gate.release)
	<-done

	received := eventsOf[model.MessageReceived](bob)
	require.Len(t, received, 1)
	assert.Equal(t, "Hello", received[0].Content)
	assert.Empty(t, eventsOf[model.MessageReceived](alice))
}

type gatedMessages struct {
	*store.Service
	entered chan struct{}
	release chan struct{}
}

func (g *gatedMessages) CreateMessage(ctx context.Context, username, content string) (model.Message, error) {
	close(g.entered)
	<-g.release
	return g.Service.CreateMessage(ctx, username, content)
}

func TestEngine_ConcurrentConnections(t *testing.T) {
	ctx := context.Background()
	e, mem := newTestEngine(t)

	const n = 20
	conns := make([]*fakeConn, n)
	var wg sync.WaitGroup
	for i := range n {
		conns[i] = newConn(fmt.Sprintf("c%d", i))
		wg.Add(1)
		go func(c *fakeConn, name string) {
			defer wg.Done()
			e.Join(ctx, c, name)
			e.Send(ctx, c, name, "hi")
			if i%2 == 0 {
				e.Disconnect(ctx, c, "done")
			}
		}(conns[i], fmt.Sprintf("user%d", i))
	}
	wg.Wait()

	assert.Equal(t, n/2, e.ConnectedCount())
	stats, err := mem.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, n, stats.TotalMessages)
}

func TestEngine_Handle(t *testing.T) {
	e, _ := newTestEngine(t)
	alice := newConn("a")

	e.Handle(context.Background(), alice, model.JoinRequest{Username: "Alice"})
	e.Handle(context.Background(), alice, model.SendRequest{Username: "Alice", Content: "Hi"})
	e.Handle(context.Background(), alice, model.TypingRequest{IsTyping: true})

	assert.Len(t, eventsOf[model.JoinConfirmed](alice), 1)
	assert.Len(t, eventsOf[model.MessageReceived](alice), 1)
	assert.Empty(t, eventsOf[model.UserTyping](alice))
}

// gatedHistory blocks RecentMessages until released once armed. With
// fetchFirst the history is read before blocking, otherwise after.
type gatedHistory struct {
	*store.Service
	fetchFirst bool
	entered    chan struct{}
	release    chan struct{}
}

func newGatedHistory(fetchFirst bool) *gatedHistory {
	return &gatedHistory{
		Service:    store.NewService(store.NewMemoryStore(), nil),
		fetchFirst: fetchFirst,
	}
}

func (g *gatedHistory) arm() {
	g.entered = make(chan struct{})
	g.release = make(chan struct{})
}

func (g *gatedHistory) RecentMessages(ctx context.Context, limit int) ([]model.Message, error) {
	if g.release == nil {
		return g.Service.RecentMessages(ctx, limit)
	}
	if !g.fetchFirst {
		close(g.entered)
		<-g.release
		return g.Service.RecentMessages(ctx, limit)
	}
	history, err := g.Service.RecentMessages(ctx, limit)
	close(g.entered)
	<-g.release
	return history, err
}

func eventNames(c *fakeConn) []string {
	var names []string
	for _, e := range c.Events() {
		names = append(names, e.EventName())
	}
	return names
}

func TestEngine_JoinWhileMessageSent(t *testing.T) {
	tests := []struct {
		name        string
		fetchFirst  bool
		wantEvents  []string
		wantHistory int
	}{
		{
			name:        "message stored before history is read",
			fetchFirst:  false,
			wantEvents:  []string{model.EventJoinConfirmed, model.EventChatHistory},
			wantHistory: 1,
		},
		{
			name:        "message stored after history is read",
			fetchFirst:  true,
			wantEvents:  []string{model.EventJoinConfirmed, model.EventChatHistory, model.EventMessageReceived},
			wantHistory: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			msgs := newGatedHistory(tt.fetchFirst)
			e := NewEngine(msgs)

			alice := newConn("a")
			e.Join(ctx, alice, "Alice")
			alice.Reset()
			msgs.arm()

			bob := newConn("b")
			done := make(chan struct{})
			go func() {
				defer close(done)
				e.Join(ctx, bob, "Bob")
			}()

			<-msgs.entered
			e.Send(ctx, alice, "Alice", "Hello")
			close(msgs.release)
			<-done

			assert.Equal(t, tt.wantEvents, eventNames(bob))

			history := eventsOf[model.ChatHistory](bob)
			require.Len(t, history, 1)
			assert.Equal(t, tt.wantHistory, history[0].Count)

			// Bob sees Hello exactly once, either way.
			seen := len(eventsOf[model.MessageReceived](bob))
			for _, m := range history[0].Messages {
				if m.Content == "Hello" {
					seen++
				}
			}
			assert.Equal(t, 1, seen)

			assert.Len(t, eventsOf[model.MessageReceived](alice), 1)
			assert.Len(t, eventsOf[model.UserJoined](alice), 1)
		})
	}
}

func TestEngine_LeaveWhileJoining(t *testing.T) {
	ctx := context.Background()
	msgs := newGatedHistory(false)
	e := NewEngine(msgs)

	alice := newConn("a")
	e.Join(ctx, alice, "Alice")
	alice.Reset()
	msgs.arm()

	bob := newConn("b")
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Join(ctx, bob, "Bob")
	}()

	<-msgs.entered
	e.Disconnect(ctx, bob, "transport close")
	close(msgs.release)
	<-done

	// Alice was never told Bob joined, so she is not told he left.
	assert.Equal(t, []string{model.EventJoinConfirmed}, eventNames(bob))
	assert.Empty(t, alice.Events())
	assert.Equal(t, 1, e.ConnectedCount())
}
