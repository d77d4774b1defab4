package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/petr-muller/civicfeed/internal/civic/admin"
	"github.com/petr-muller/civicfeed/internal/civic/api"
	"github.com/petr-muller/civicfeed/internal/civic/auth"
	"github.com/petr-muller/civicfeed/internal/civic/cache"
	"github.com/petr-muller/civicfeed/internal/civic/compare"
	"github.com/petr-muller/civicfeed/internal/civic/comments"
	"github.com/petr-muller/civicfeed/internal/civic/compose"
	"github.com/petr-muller/civicfeed/internal/civic/model"
	"github.com/petr-muller/civicfeed/internal/civic/realtime"
	"github.com/petr-muller/civicfeed/internal/civic/shuffle"
	"github.com/petr-muller/civicfeed/internal/civic/storage"
)

// DefaultPostRoute is the share link route used when none is configured
const DefaultPostRoute = "posts"

// Options configure a Service
type Options struct {
	Client    *api.Client
	Tokens    auth.TokenSource
	WSURL     string
	Origin    string
	PostRoute string
	DataDir   string

	ShuffleOptions []shuffle.Option
	UploadHost     string
	GeocoderHost   string
}

// Service orchestrates the feed for one viewer session
type Service struct {
	client     *api.Client
	tokens     auth.TokenSource
	store      *cache.Store
	randomizer *shuffle.Randomizer
	snapshots  *storage.Store
	console    *admin.Console

	wsURL        string
	origin       string
	postRoute    string
	uploadHost   string
	geocoderHost string

	mu  sync.Mutex
	sub *realtime.Subscription
}

// NewService creates a new service instance
func NewService(opts Options) *Service {
	client := opts.Client
	if client == nil {
		client = api.NewClient("")
	}
	store := cache.NewStore(client, opts.Tokens)
	randomizer := shuffle.NewRandomizer(opts.ShuffleOptions...)
	store.OnChange(func() {
		randomizer.SetSource(store.Issues())
	})

	s := &Service{
		client:       client,
		tokens:       opts.Tokens,
		store:        store,
		randomizer:   randomizer,
		console:      admin.NewConsole(client, store, opts.Tokens),
		wsURL:        opts.WSURL,
		origin:       opts.Origin,
		postRoute:    opts.PostRoute,
		uploadHost:   opts.UploadHost,
		geocoderHost: opts.GeocoderHost,
	}
	if opts.DataDir != "" {
		s.snapshots = storage.NewStore(opts.DataDir)
	}
	return s
}

// Cache returns the session issue cache
func (s *Service) Cache() *cache.Store {
	return s.store
}

// Randomizer returns the feed randomizer
func (s *Service) Randomizer() *shuffle.Randomizer {
	return s.randomizer
}

// Admin returns the admin console
func (s *Service) Admin() *admin.Console {
	return s.console
}

// LoadFeed fetches the issue list into the cache and shuffles it right away
func (s *Service) LoadFeed(ctx context.Context) ([]model.Issue, error) {
	issues, err := s.client.ListIssues(ctx)
	if err != nil {
		return nil, err
	}
	s.store.Load(issues)
	s.randomizer.Load(s.store.Issues())
	return s.randomizer.Display(), nil
}

// WatchOptions name the snapshot a feed is compared with
type WatchOptions struct {
	Name string
}

// Watch loads the feed, compares it with the stored snapshot and replaces
// the snapshot. The returned result carries the time of the previous visit.
func (s *Service) Watch(ctx context.Context, opts WatchOptions) (*storage.FeedResult, error) {
	if s.snapshots == nil {
		return nil, errors.New("no snapshot directory configured")
	}
	name := opts.Name
	if name == "" {
		name = storage.DefaultSnapshot
	}
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}

	previous, err := s.snapshots.Load(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	if _, err := s.LoadFeed(ctx); err != nil {
		return nil, err
	}
	current := storage.FromIssues(s.store.Issues())

	var previousIssues []storage.SnapshotIssue
	var lastFetched time.Time
	if previous != nil {
		previousIssues = previous.Issues
		lastFetched = previous.LastFetched
	}

	result := compare.CompareFeeds(current, previousIssues)

	snapshot := storage.Snapshot{
		Name:        name,
		LastFetched: time.Now(),
		Issues:      current,
	}
	if err := s.snapshots.Save(snapshot); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	result.Snapshot = snapshot
	result.Snapshot.LastFetched = lastFetched
	return &result, nil
}

// Snapshots lists the stored feed snapshots
func (s *Service) Snapshots() ([]storage.SnapshotListItem, error) {
	if s.snapshots == nil {
		return nil, nil
	}
	return s.snapshots.List()
}

// DeleteSnapshot removes a stored feed snapshot
func (s *Service) DeleteSnapshot(name string) error {
	if s.snapshots == nil || !s.snapshots.Exists(name) {
		return fmt.Errorf("snapshot '%s' not found", name)
	}
	return s.snapshots.Delete(name)
}

// StartRealtime subscribes to issue announcements. Realtime updates are best
// effort: when disabled or unreachable the feed keeps working without them.
func (s *Service) StartRealtime(ctx context.Context) error {
	sub, err := realtime.Subscribe(ctx, s.wsURL, realtime.IssueDispatcher(s.store))
	if err != nil {
		if errors.Is(err, realtime.ErrDisabled) {
			logrus.Debug("Realtime channel not configured")
		} else {
			logrus.WithError(err).Warn("Realtime updates unavailable")
		}
		return err
	}

	s.mu.Lock()
	old := s.sub
	s.sub = sub
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// Like likes an issue on behalf of the viewer
func (s *Service) Like(ctx context.Context, id string) error {
	return s.store.Like(ctx, id)
}

// Comment adds a comment to an issue
func (s *Service) Comment(ctx context.Context, id, text string) error {
	return s.store.Comment(ctx, id, text)
}

// Comments creates a loader for the comments of an issue
func (s *Service) Comments(id string) *comments.Loader {
	return comments.NewLoader(id, s.client)
}

// Composer starts a new report
func (s *Service) Composer(locator compose.Locator) *compose.Composer {
	uploader := compose.NewUploader(s.client, s.uploadHost)
	geocoder := compose.NewGeocoder(s.geocoderHost)
	return compose.NewComposer(uploader, s.client, geocoder, locator, s.store, s.tokens)
}

// Publish validates form and creates the issue
func (s *Service) Publish(ctx context.Context, form compose.Form) (model.Issue, error) {
	if err := compose.ValidatePublish(form); err != nil {
		return model.Issue{}, err
	}
	return s.store.Create(ctx, form.Payload())
}

// Delete removes an issue, admins only
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.console.Delete(ctx, id)
}

// ShareURL builds the public link of an issue
func (s *Service) ShareURL(id string) string {
	return ShareURL(s.origin, s.postRoute, id)
}

// ShareURL builds <origin>/<route>/<id>. An empty id yields an empty link.
func ShareURL(origin, route, id string) string {
	if id == "" {
		return ""
	}
	route = strings.Trim(route, "/")
	if route == "" {
		route = DefaultPostRoute
	}
	return strings.TrimRight(origin, "/") + "/" + route + "/" + id
}

// Close stops realtime updates and pending reshuffles
func (s *Service) Close() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
	s.randomizer.Close()
}
