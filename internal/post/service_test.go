package post

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/darshjasani/Pulse/internal/bus"
	"github.com/darshjasani/Pulse/internal/metrics"
	"github.com/darshjasani/Pulse/internal/model"
	"github.com/darshjasani/Pulse/internal/security"
)

type mockUserRepo struct {
	users map[int64]*model.User
}

func (m *mockUserRepo) CreateUser(ctx context.Context, username, email string) (*model.User, error) {
	return nil, errors.New("not implemented")
}
func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
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

type mockPostRepo struct {
	nextID  int64
	created []*model.Post
	posts   map[int64]*model.Post
}

func (m *mockPostRepo) Create(ctx context.Context, authorID int64, content string) (*model.Post, error) {
	m.nextID++
	p := &model.Post{ID: m.nextID, AuthorID: authorID, Content: content, CreatedAt: time.Now()}
	m.created = append(m.created, p)
	return p, nil
}
func (m *mockPostRepo) GetByID(ctx context.Context, id int64) (*model.Post, error) {
	p, ok := m.posts[id]
	if !ok {
		return nil, model.NewNotFound("post not found")
	}
	return p, nil
}
func (m *mockPostRepo) ListByAuthor(ctx context.Context, authorID int64, limit, offset int) ([]*model.Post, error) {
	return nil, nil
}
func (m *mockPostRepo) RecentByAuthors(ctx context.Context, authorIDs []int64, since time.Time, limit int) ([]*model.Post, error) {
	return nil, nil
}
func (m *mockPostRepo) Hydrate(ctx context.Context, postIDs []int64) ([]*model.Post, error) {
	return nil, nil
}
func (m *mockPostRepo) CountPosts(ctx context.Context) (int64, error) { return 0, nil }

type mockBus struct {
	published [][]byte
	err       error
}

func (m *mockBus) Publish(ctx context.Context, payload []byte) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, payload)
	return nil
}
func (m *mockBus) Receive(ctx context.Context, maxCount int, wait time.Duration) ([]bus.Message, error) {
	return nil, nil
}
func (m *mockBus) Ack(ctx context.Context, handle string) error { return nil }
func (m *mockBus) Available(ctx context.Context) bool           { return true }

func newTestService(users *mockUserRepo, posts *mockPostRepo, b *mockBus) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(posts, users, b, security.NewContentSanitizer(), metrics.Nop{}, logger)
}

func regularAuthor() *mockUserRepo {
	return &mockUserRepo{users: map[int64]*model.User{
		1: {ID: 1, Username: "alice", FollowerCount: 10},
	}}
}

func TestCreate_PersistsAndPublishesForRegularAuthor(t *testing.T) {
	users := regularAuthor()
	posts := &mockPostRepo{}
	b := &mockBus{}
	svc := newTestService(users, posts, b)

	created, err := svc.Create(context.Background(), 1, "hello")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Content != "hello" || created.AuthorID != 1 {
		t.Errorf("unexpected post: %+v", created)
	}
	if len(b.published) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(b.published))
	}

	var ev model.PostCreatedEvent
	if err := json.Unmarshal(b.published[0], &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.EventType != "post_created" || ev.PostID != created.ID || ev.AuthorID != 1 || ev.IsCelebrityAtEmit {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestCreate_SkipsPublishForCelebrity(t *testing.T) {
	users := &mockUserRepo{users: map[int64]*model.User{
		2: {ID: 2, Username: "star", FollowerCount: 100_000, IsCelebrity: true},
	}}
	posts := &mockPostRepo{}
	b := &mockBus{}
	svc := newTestService(users, posts, b)

	if _, err := svc.Create(context.Background(), 2, "star post"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(b.published) != 0 {
		t.Errorf("expected no events for a celebrity author, got %d", len(b.published))
	}
	if len(posts.created) != 1 {
		t.Errorf("expected the post to be persisted regardless")
	}
}

func TestCreate_PublishFailureDoesNotFailTheCall(t *testing.T) {
	users := regularAuthor()
	posts := &mockPostRepo{}
	b := &mockBus{err: errors.New("bus down")}
	svc := newTestService(users, posts, b)

	created, err := svc.Create(context.Background(), 1, "still durable")
	if err != nil {
		t.Fatalf("Create should succeed when only the publish fails: %v", err)
	}
	if created == nil || len(posts.created) != 1 {
		t.Error("expected the post to be persisted")
	}
}

func TestCreate_ContentValidationBoundaries(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"empty rejected", "", true},
		{"whitespace-only rejected", "   \n\t ", true},
		{"length 1 accepted", "a", false},
		{"length 5000 accepted", strings.Repeat("x", 5000), false},
		{"length 5001 rejected", strings.Repeat("x", 5001), true},
		{"multibyte counted as codepoints", strings.Repeat("あ", 5000), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(regularAuthor(), &mockPostRepo{}, &mockBus{})
			_, err := svc.Create(context.Background(), 1, tc.content)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if model.KindOf(err) != model.KindInvalidArgument {
					t.Errorf("expected invalid_argument, got %v", model.KindOf(err))
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCreate_StripsMarkupBeforeValidation(t *testing.T) {
	svc := newTestService(regularAuthor(), &mockPostRepo{}, &mockBus{})

	// Markup-only content sanitizes to nothing and must be rejected as
	// empty, not stored as markup.
	_, err := svc.Create(context.Background(), 1, "<script>alert(1)</script>")
	if err == nil {
		t.Fatal("expected markup-only content to be rejected")
	}
}

func TestCreate_UnknownAuthor(t *testing.T) {
	svc := newTestService(regularAuthor(), &mockPostRepo{}, &mockBus{})

	_, err := svc.Create(context.Background(), 99, "hello")
	if model.KindOf(err) != model.KindNotFound {
		t.Errorf("expected not_found, got %v", err)
	}
}
