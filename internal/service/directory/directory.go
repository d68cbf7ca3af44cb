package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/fixdesk/fixdesk/internal/errors"
	"github.com/fixdesk/fixdesk/internal/ports"
	"github.com/fixdesk/fixdesk/internal/session"
)

const unknownText = "Unknown"

// Item is one rendered row of a list.
type Item struct {
	ID       string
	Title    string
	Subtitle string
	Icon     string
	Data     map[string]any
}

// ServiceOptions groups dependencies for Service.
type ServiceOptions struct {
	Documents ports.DocumentStore
	Sessions  *session.Store
	Catalog   *Catalog
	Logger    *slog.Logger
	// RemoteTimeout bounds each document query; zero means 10s.
	RemoteTimeout time.Duration
}

// Service answers list queries for the active session.
type Service struct {
	docs     ports.DocumentStore
	sessions *session.Store
	catalog  *Catalog
	logger   *slog.Logger
	timeout  time.Duration
}

// NewService constructs a new Service.
func NewService(opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.RemoteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		docs:     opts.Documents,
		sessions: opts.Sessions,
		catalog:  opts.Catalog,
		logger:   logger.With("component", "directory"),
		timeout:  timeout,
	}
}

// List returns the items of kind whose filter field equals label.
func (s *Service) List(ctx context.Context, kind Kind, label string) ([]Item, error) {
	if !s.sessions.Current().IsActive() {
		return nil, apperrors.NotAuthenticated("log in to view lists")
	}
	spec, ok := s.catalog.Lookup(kind)
	if !ok {
		return nil, apperrors.ValidationField("kind", fmt.Sprintf("unknown list kind %q", kind))
	}
	return s.list(ctx, spec, label)
}

// Summary counts the items of every known kind for label.
func (s *Service) Summary(ctx context.Context, label string) (map[Kind]int, error) {
	if !s.sessions.Current().IsActive() {
		return nil, apperrors.NotAuthenticated("log in to view lists")
	}

	var mu sync.Mutex
	counts := make(map[Kind]int)
	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range s.catalog.Kinds() {
		spec, _ := s.catalog.Lookup(kind)
		g.Go(func() error {
			items, err := s.list(gctx, spec, label)
			if err != nil {
				return err
			}
			mu.Lock()
			counts[kind] = len(items)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *Service) list(ctx context.Context, spec ListSpec, label string) ([]Item, error) {
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	docs, err := s.docs.Query(rctx, spec.Collection, spec.Field, label)
	if err != nil {
		return nil, session.ClassifyRemote(ctx, err, fmt.Sprintf("list %s", spec.Kind))
	}

	items := make([]Item, 0, len(docs))
	for _, d := range docs {
		items = append(items, Item{
			ID:       d.Key,
			Title:    s.render(spec.Kind, spec.Title, d.Data),
			Subtitle: s.render(spec.Kind, spec.Subtitle, d.Data),
			Icon:     spec.Icon,
			Data:     d.Data,
		})
	}
	return items, nil
}

// render evaluates expr and flattens the result to display text.
// Expressions that fail against a document render as "Unknown" instead of failing the list.
func (s *Service) render(kind Kind, expr string, data map[string]any) string {
	if expr == "" {
		return ""
	}
	v, err := jmespath.Search(expr, data)
	if err != nil {
		s.logger.Debug("render list item", "kind", string(kind), "expression", expr, "error", err)
		return unknownText
	}
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Search keeps the items with any string value containing q, ignoring case.
// The item id counts as a value. An empty query keeps everything.
func Search(items []Item, q string) []Item {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return items
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if matches(it, q) {
			out = append(out, it)
		}
	}
	return out
}

func matches(it Item, q string) bool {
	if strings.Contains(strings.ToLower(it.ID), q) {
		return true
	}
	for _, v := range it.Data {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}
