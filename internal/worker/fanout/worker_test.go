package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"

	"github.com/darshjasani/Pulse/internal/bus"
	"github.com/darshjasani/Pulse/internal/cache"
	"github.com/darshjasani/Pulse/internal/metrics"
	"github.com/darshjasani/Pulse/internal/model"
	"github.com/darshjasani/Pulse/internal/repository"
)

type sliceStream struct {
	ids []int64
	i   int
	cur int64
}

func (s *sliceStream) Next() bool {
	if s.i >= len(s.ids) {
		return false
	}
	s.cur = s.ids[s.i]
	s.i++
	return true
}
func (s *sliceStream) UserID() int64 { return s.cur }
func (s *sliceStream) Err() error    { return nil }
func (s *sliceStream) Close() error  { return nil }

type mockFollowRepo struct {
	followers map[int64][]int64
}

func (m *mockFollowRepo) AddFollow(ctx context.Context, followerID, followingID int64, celebrityThreshold int) error {
	return nil
}
func (m *mockFollowRepo) RemoveFollow(ctx context.Context, followerID, followingID int64, celebrityThreshold int) error {
	return nil
}
func (m *mockFollowRepo) FollowersOf(ctx context.Context, userID int64) (repository.FollowerStream, error) {
	return &sliceStream{ids: m.followers[userID]}, nil
}
func (m *mockFollowRepo) FollowedCelebritiesOf(ctx context.Context, userID int64) ([]int64, error) {
	return nil, nil
}
func (m *mockFollowRepo) FollowedUserIDs(ctx context.Context, userID int64) ([]int64, error) {
	return nil, nil
}
func (m *mockFollowRepo) ListFollowers(ctx context.Context, userID int64, limit, offset int) ([]*model.User, error) {
	return nil, nil
}
func (m *mockFollowRepo) ListFollowing(ctx context.Context, userID int64, limit, offset int) ([]*model.User, error) {
	return nil, nil
}
func (m *mockFollowRepo) CountFollows(ctx context.Context) (int64, error) { return 0, nil }

type mockUserRepo struct {
	users map[int64]*model.User
	err   error
}

func (m *mockUserRepo) CreateUser(ctx context.Context, username, email string) (*model.User, error) {
	return nil, errors.New("not implemented")
}
func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, model.NewNotFound("user not found")
	}
	return u, nil
}
func (m *mockUserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return nil, model.NewNotFound("user not found")
}
func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, model.NewNotFound("user not found")
}
func (m *mockUserRepo) CountUsers(ctx context.Context) (int64, error)       { return 0, nil }
func (m *mockUserRepo) CountCelebrities(ctx context.Context) (int64, error) { return 0, nil }

type testEnv struct {
	worker   *Worker
	bus      *bus.RedisStreamBus
	cache    *cache.RedisTimelineCache
	cacheSrv *miniredis.Miniredis
}

func newRueidisClient(t *testing.T, addr string) rueidis.Client {
	t.Helper()
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{addr},
		DisableCache: true,
	})
	if err != nil {
		t.Fatalf("failed to create redis client: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

// newTestEnv wires a worker to a miniredis-backed bus and a separately
// hosted miniredis-backed cache, so cache failure can be simulated
// without taking the bus down.
func newTestEnv(t *testing.T, users *mockUserRepo, follows *mockFollowRepo, opts Options) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	busSrv := miniredis.RunT(t)
	b, err := bus.NewRedisStreamBus(context.Background(), newRueidisClient(t, busSrv.Addr()),
		bus.Options{VisibilityTimeout: time.Millisecond}, logger)
	if err != nil {
		t.Fatalf("NewRedisStreamBus: %v", err)
	}

	cacheSrv := miniredis.RunT(t)
	c := cache.NewRedisTimelineCache(newRueidisClient(t, cacheSrv.Addr()), 1000, logger)

	w := NewWorker(b, c, users, follows, metrics.Nop{}, logger, opts)
	return &testEnv{worker: w, bus: b, cache: c, cacheSrv: cacheSrv}
}

func publishEvent(t *testing.T, b *bus.RedisStreamBus, postID, authorID int64, ts int64) {
	t.Helper()
	ev := model.NewPostCreatedEvent(postID, authorID, false, time.UnixMilli(ts))
	payload, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if err := b.Publish(context.Background(), payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func receiveOne(t *testing.T, b *bus.RedisStreamBus) bus.Message {
	t.Helper()
	msgs, err := b.Receive(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	return msgs[0]
}

func regularUsers() *mockUserRepo {
	return &mockUserRepo{users: map[int64]*model.User{
		1: {ID: 1, Username: "alice", FollowerCount: 3},
	}}
}

func TestProcessMessage_FansOutToFollowersAndAuthor(t *testing.T) {
	follows := &mockFollowRepo{followers: map[int64][]int64{1: {10, 11, 12}}}
	env := newTestEnv(t, regularUsers(), follows, Options{})
	ctx := context.Background()

	publishEvent(t, env.bus, 100, 1, 500_000)
	env.worker.ProcessMessage(ctx, receiveOne(t, env.bus))

	for _, owner := range []int64{10, 11, 12, 1} {
		entries, ok, err := env.cache.Range(ctx, owner, 0, 10)
		if err != nil {
			t.Fatalf("Range(%d): %v", owner, err)
		}
		if !ok || len(entries) != 1 || entries[0].PostID != 100 {
			t.Errorf("owner %d: expected post 100, got %+v (ok=%v)", owner, entries, ok)
		}
		if len(entries) == 1 && entries[0].Score != 500_000 {
			t.Errorf("owner %d: expected score 500000, got %d", owner, entries[0].Score)
		}
	}

	// Success means acked: nothing left to receive even after the
	// visibility timeout.
	time.Sleep(20 * time.Millisecond)
	msgs, err := env.bus.Receive(ctx, 10, 0)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected event acked, got %d redeliveries", len(msgs))
	}
}

func TestProcessMessage_ChunksLargeFollowerSets(t *testing.T) {
	followers := make([]int64, 0, 5)
	for i := int64(20); i < 25; i++ {
		followers = append(followers, i)
	}
	follows := &mockFollowRepo{followers: map[int64][]int64{1: followers}}
	env := newTestEnv(t, regularUsers(), follows, Options{FollowerChunk: 2})
	ctx := context.Background()

	publishEvent(t, env.bus, 200, 1, 600_000)
	env.worker.ProcessMessage(ctx, receiveOne(t, env.bus))

	for _, owner := range followers {
		entries, ok, _ := env.cache.Range(ctx, owner, 0, 10)
		if !ok || len(entries) != 1 || entries[0].PostID != 200 {
			t.Errorf("owner %d: expected post 200 despite chunking, got %+v", owner, entries)
		}
	}
}

func TestProcessMessage_SkipsCelebrityAuthor(t *testing.T) {
	users := &mockUserRepo{users: map[int64]*model.User{
		1: {ID: 1, Username: "star", FollowerCount: 100_000, IsCelebrity: true},
	}}
	follows := &mockFollowRepo{followers: map[int64][]int64{1: {10}}}
	env := newTestEnv(t, users, follows, Options{})
	ctx := context.Background()

	// Emitted while the author was regular; the author flipped before
	// the worker got to it.
	publishEvent(t, env.bus, 300, 1, 700_000)
	env.worker.ProcessMessage(ctx, receiveOne(t, env.bus))

	if _, ok, _ := env.cache.Range(ctx, 10, 0, 10); ok {
		t.Error("expected no fan-out for a now-celebrity author")
	}

	time.Sleep(20 * time.Millisecond)
	msgs, _ := env.bus.Receive(ctx, 10, 0)
	if len(msgs) != 0 {
		t.Errorf("expected celebrity skip to ack, got %d redeliveries", len(msgs))
	}
}

func TestProcessMessage_AcksMalformedPayload(t *testing.T) {
	env := newTestEnv(t, regularUsers(), &mockFollowRepo{}, Options{})
	ctx := context.Background()

	if err := env.bus.Publish(ctx, []byte("{not json")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	env.worker.ProcessMessage(ctx, receiveOne(t, env.bus))

	time.Sleep(20 * time.Millisecond)
	msgs, _ := env.bus.Receive(ctx, 10, 0)
	if len(msgs) != 0 {
		t.Errorf("expected poison message acked, got %d redeliveries", len(msgs))
	}
}

func TestProcessMessage_DuplicateDeliveryIsIdempotent(t *testing.T) {
	follows := &mockFollowRepo{followers: map[int64][]int64{1: {10}}}
	env := newTestEnv(t, regularUsers(), follows, Options{})
	ctx := context.Background()

	publishEvent(t, env.bus, 400, 1, 800_000)
	msg := receiveOne(t, env.bus)

	env.worker.ProcessMessage(ctx, msg)
	env.worker.ProcessMessage(ctx, msg)

	entries, _, err := env.cache.Range(ctx, 10, 0, 10)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one entry after duplicate processing, got %d", len(entries))
	}
}

func TestProcessMessage_CacheFailureLeavesEventUnacked(t *testing.T) {
	follows := &mockFollowRepo{followers: map[int64][]int64{1: {10}}}
	env := newTestEnv(t, regularUsers(), follows, Options{})
	ctx := context.Background()

	publishEvent(t, env.bus, 500, 1, 900_000)
	msg := receiveOne(t, env.bus)

	env.cacheSrv.Close()
	env.worker.ProcessMessage(ctx, msg)

	// No ack means the event comes back after the visibility timeout.
	time.Sleep(20 * time.Millisecond)
	msgs, err := env.bus.Receive(ctx, 10, 0)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected redelivery after failed fan-out, got %d", len(msgs))
	}
	if msgs[0].Deliveries != 2 {
		t.Errorf("expected delivery count 2, got %d", msgs[0].Deliveries)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	env := newTestEnv(t, regularUsers(), &mockFollowRepo{}, Options{ReceiveWait: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.worker.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
