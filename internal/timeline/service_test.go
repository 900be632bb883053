package timeline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/darshjasani/Pulse/internal/metrics"
	"github.com/darshjasani/Pulse/internal/model"
	"github.com/darshjasani/Pulse/internal/repository"
)

type mockCache struct {
	available bool
	timelines map[int64][]model.TimelineEntry
}

func (m *mockCache) Add(ctx context.Context, ownerID, postID, score int64) error { return nil }
func (m *mockCache) AddMany(ctx context.Context, ownerID int64, entries []model.TimelineEntry) error {
	return nil
}
func (m *mockCache) FanOut(ctx context.Context, ownerIDs []int64, postID, score int64) error {
	return nil
}
func (m *mockCache) Range(ctx context.Context, ownerID int64, offset, limit int) ([]model.TimelineEntry, bool, error) {
	entries, ok := m.timelines[ownerID]
	if !ok {
		return nil, false, nil
	}
	if offset >= len(entries) {
		return nil, true, nil
	}
	entries = entries[offset:]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, true, nil
}
func (m *mockCache) Invalidate(ctx context.Context, ownerID int64) error { return nil }
func (m *mockCache) Available(ctx context.Context) bool                  { return m.available }
func (m *mockCache) RemovePostEverywhere(ctx context.Context, postID int64) error {
	return nil
}

type mockPostRepo struct {
	posts  map[int64]*model.Post
	recent []*model.Post
}

func (m *mockPostRepo) Create(ctx context.Context, authorID int64, content string) (*model.Post, error) {
	return nil, nil
}
func (m *mockPostRepo) GetByID(ctx context.Context, id int64) (*model.Post, error) {
	return nil, model.NewNotFound("post not found")
}
func (m *mockPostRepo) ListByAuthor(ctx context.Context, authorID int64, limit, offset int) ([]*model.Post, error) {
	return nil, nil
}
func (m *mockPostRepo) RecentByAuthors(ctx context.Context, authorIDs []int64, since time.Time, limit int) ([]*model.Post, error) {
	allowed := make(map[int64]bool, len(authorIDs))
	for _, id := range authorIDs {
		allowed[id] = true
	}
	var out []*model.Post
	for _, p := range m.recent {
		if allowed[p.AuthorID] && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}
func (m *mockPostRepo) Hydrate(ctx context.Context, postIDs []int64) ([]*model.Post, error) {
	var out []*model.Post
	for _, id := range postIDs {
		if p, ok := m.posts[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
func (m *mockPostRepo) CountPosts(ctx context.Context) (int64, error) { return 0, nil }

type mockFollowRepo struct {
	celebrities []int64
	following   []int64
}

func (m *mockFollowRepo) AddFollow(ctx context.Context, followerID, followingID int64, celebrityThreshold int) error {
	return nil
}
func (m *mockFollowRepo) RemoveFollow(ctx context.Context, followerID, followingID int64, celebrityThreshold int) error {
	return nil
}
func (m *mockFollowRepo) FollowersOf(ctx context.Context, userID int64) (repository.FollowerStream, error) {
	return nil, nil
}
func (m *mockFollowRepo) FollowedCelebritiesOf(ctx context.Context, userID int64) ([]int64, error) {
	return m.celebrities, nil
}
func (m *mockFollowRepo) FollowedUserIDs(ctx context.Context, userID int64) ([]int64, error) {
	return m.following, nil
}
func (m *mockFollowRepo) ListFollowers(ctx context.Context, userID int64, limit, offset int) ([]*model.User, error) {
	return nil, nil
}
func (m *mockFollowRepo) ListFollowing(ctx context.Context, userID int64, limit, offset int) ([]*model.User, error) {
	return nil, nil
}
func (m *mockFollowRepo) CountFollows(ctx context.Context) (int64, error) { return 0, nil }

func post(id, author int64, ts int64) *model.Post {
	return &model.Post{ID: id, AuthorID: author, Content: "post", CreatedAt: time.UnixMilli(ts)}
}

func newTestService(c *mockCache, p *mockPostRepo, f *mockFollowRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(c, p, f, metrics.Nop{}, logger, Options{})
}

func TestGet_ServesFromCache(t *testing.T) {
	p1, p2 := post(1, 10, 100), post(2, 10, 200)
	c := &mockCache{available: true, timelines: map[int64][]model.TimelineEntry{
		5: {{PostID: 2, Score: 200}, {PostID: 1, Score: 100}},
	}}
	pr := &mockPostRepo{posts: map[int64]*model.Post{1: p1, 2: p2}}
	svc := newTestService(c, pr, &mockFollowRepo{})

	tl, err := svc.Get(context.Background(), 5, 50, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tl.Source != model.SourceCache {
		t.Errorf("expected source cache, got %s", tl.Source)
	}
	if len(tl.Posts) != 2 || tl.Posts[0].ID != 2 || tl.Posts[1].ID != 1 {
		t.Errorf("unexpected posts: %+v", tl.Posts)
	}
	if tl.HasMore {
		t.Error("expected has_more=false for a short page")
	}
}

func TestGet_MergesCelebrityPull(t *testing.T) {
	cached := post(1, 10, 100)
	star := post(3, 77, 300)
	c := &mockCache{available: true, timelines: map[int64][]model.TimelineEntry{
		5: {{PostID: 1, Score: 100}},
	}}
	pr := &mockPostRepo{
		posts:  map[int64]*model.Post{1: cached},
		recent: []*model.Post{star},
	}
	f := &mockFollowRepo{celebrities: []int64{77}}
	svc := newTestService(c, pr, f)

	tl, err := svc.Get(context.Background(), 5, 50, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tl.Source != model.SourceCachePlusPull {
		t.Errorf("expected source cache+pull, got %s", tl.Source)
	}
	if len(tl.Posts) != 2 || tl.Posts[0].ID != 3 || tl.Posts[1].ID != 1 {
		t.Errorf("expected celebrity post first by score, got %+v", tl.Posts)
	}
}

func TestGet_MergeDedupsByPostID(t *testing.T) {
	// The same post arriving via both paths must appear once.
	shared := post(9, 77, 500)
	c := &mockCache{available: true, timelines: map[int64][]model.TimelineEntry{
		5: {{PostID: 9, Score: 500}},
	}}
	pr := &mockPostRepo{
		posts:  map[int64]*model.Post{9: shared},
		recent: []*model.Post{shared},
	}
	svc := newTestService(c, pr, &mockFollowRepo{celebrities: []int64{77}})

	tl, err := svc.Get(context.Background(), 5, 50, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(tl.Posts) != 1 {
		t.Errorf("expected dedup to a single post, got %d", len(tl.Posts))
	}
}

func TestGet_FallsBackWhenCacheUnavailable(t *testing.T) {
	p1 := post(1, 10, 100)
	c := &mockCache{available: false}
	pr := &mockPostRepo{recent: []*model.Post{p1}}
	f := &mockFollowRepo{following: []int64{10}}
	svc := newTestService(c, pr, f)

	tl, err := svc.Get(context.Background(), 5, 50, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tl.Source != model.SourceDatabase {
		t.Errorf("expected source database, got %s", tl.Source)
	}
	if len(tl.Posts) != 1 || tl.Posts[0].ID != 1 {
		t.Errorf("unexpected posts: %+v", tl.Posts)
	}
}

func TestGet_CacheMissStillPullsCelebrities(t *testing.T) {
	// A brand-new follower of a celebrity has no timeline key at all:
	// celebrity posts are never fanned out, so nothing ever created one.
	// The celebrity pull must still run against the empty push-timeline.
	star := post(3, 77, 300)
	c := &mockCache{available: true, timelines: map[int64][]model.TimelineEntry{}}
	pr := &mockPostRepo{recent: []*model.Post{star}}
	f := &mockFollowRepo{celebrities: []int64{77}}
	svc := newTestService(c, pr, f)

	tl, err := svc.Get(context.Background(), 5, 50, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tl.Source != model.SourceCachePlusPull {
		t.Errorf("expected source cache+pull on a miss with celebrities, got %s", tl.Source)
	}
	if len(tl.Posts) != 1 || tl.Posts[0].ID != 3 {
		t.Errorf("expected the celebrity post, got %+v", tl.Posts)
	}
}

func TestGet_CacheMissNoCelebritiesIsEmptyCachePage(t *testing.T) {
	// A reachable cache with no timeline set and no followed
	// celebrities serves an empty cache page, not a database scan.
	c := &mockCache{available: true, timelines: map[int64][]model.TimelineEntry{}}
	pr := &mockPostRepo{recent: []*model.Post{post(1, 10, 100)}}
	f := &mockFollowRepo{following: []int64{10}}
	svc := newTestService(c, pr, f)

	tl, err := svc.Get(context.Background(), 5, 50, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tl.Source != model.SourceCache {
		t.Errorf("expected source cache, got %s", tl.Source)
	}
	if len(tl.Posts) != 0 {
		t.Errorf("expected an empty page, got %+v", tl.Posts)
	}
}

func TestGet_FallbackIncludesViewersOwnPosts(t *testing.T) {
	own := post(4, 5, 400)
	c := &mockCache{available: false}
	pr := &mockPostRepo{recent: []*model.Post{own}}
	svc := newTestService(c, pr, &mockFollowRepo{})

	tl, err := svc.Get(context.Background(), 5, 50, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(tl.Posts) != 1 || tl.Posts[0].ID != 4 {
		t.Errorf("expected the viewer's own post in the fallback, got %+v", tl.Posts)
	}
}

func TestGet_OffsetAppliedAfterMerge(t *testing.T) {
	posts := map[int64]*model.Post{}
	var entries []model.TimelineEntry
	for i := int64(1); i <= 5; i++ {
		posts[i] = post(i, 10, i*100)
		entries = append(entries, model.TimelineEntry{PostID: 6 - i, Score: (6 - i) * 100})
	}
	c := &mockCache{available: true, timelines: map[int64][]model.TimelineEntry{5: entries}}
	pr := &mockPostRepo{posts: posts}
	svc := newTestService(c, pr, &mockFollowRepo{})

	tl, err := svc.Get(context.Background(), 5, 2, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(tl.Posts) != 2 || tl.Posts[0].ID != 4 || tl.Posts[1].ID != 3 {
		t.Errorf("expected posts [4 3] at offset 1, got %+v", tl.Posts)
	}
	if !tl.HasMore {
		t.Error("expected has_more=true for a full page")
	}
}

func TestGet_HydrationDropsDeletedPosts(t *testing.T) {
	c := &mockCache{available: true, timelines: map[int64][]model.TimelineEntry{
		5: {{PostID: 1, Score: 100}, {PostID: 2, Score: 200}},
	}}
	// Post 2 no longer exists in the store.
	pr := &mockPostRepo{posts: map[int64]*model.Post{1: post(1, 10, 100)}}
	svc := newTestService(c, pr, &mockFollowRepo{})

	tl, err := svc.Get(context.Background(), 5, 50, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(tl.Posts) != 1 || tl.Posts[0].ID != 1 {
		t.Errorf("expected stale entry dropped, got %+v", tl.Posts)
	}
}
