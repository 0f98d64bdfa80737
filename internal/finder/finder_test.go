package finder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milkydeferwm/pagelist-bot/internal/config"
	"github.com/milkydeferwm/pagelist-bot/internal/gateway"
	"github.com/milkydeferwm/pagelist-bot/internal/ir"
	"github.com/milkydeferwm/pagelist-bot/internal/logging"
	"github.com/milkydeferwm/pagelist-bot/internal/title"
)

type stubGateway struct {
	mu          sync.Mutex
	siteJSON    string
	siteErr     error
	taskPages   []title.Title
	prefixesSeen []string
}

func (s *stubGateway) ParseTitle(raw string) title.Title { return title.Title{NS: 0, Base: raw} }
func (s *stubGateway) NamespaceName(int32) string        { return "" }
func (s *stubGateway) Lock()                             {}
func (s *stubGateway) Unlock()                            {}

func (s *stubGateway) Links(ctx context.Context, titles []title.Title, cs ir.SetConstraint) (title.Set, error) {
	return title.NewSet(), nil
}
func (s *stubGateway) LinksTo(ctx context.Context, titles []title.Title, cs ir.SetConstraint) (title.Set, error) {
	return title.NewSet(), nil
}
func (s *stubGateway) EmbeddedIn(ctx context.Context, titles []title.Title, cs ir.SetConstraint) (title.Set, error) {
	return title.NewSet(), nil
}
func (s *stubGateway) CategoryMembersOnce(ctx context.Context, category title.Title, cs ir.SetConstraint) (title.Set, error) {
	return title.NewSet(), nil
}
func (s *stubGateway) PrefixIndex(ctx context.Context, prefix title.Title, cs ir.SetConstraint) (title.Set, error) {
	return title.NewSet(), nil
}
func (s *stubGateway) Info(ctx context.Context, titles []title.Title) (map[title.Title]gateway.PageInfo, error) {
	return nil, nil
}
func (s *stubGateway) Edit(ctx context.Context, t title.Title, text, summary string) (gateway.EditResult, error) {
	return gateway.EditResult{}, nil
}

func (s *stubGateway) Content(ctx context.Context, t title.Title) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.siteErr != nil {
		return "", s.siteErr
	}
	return s.siteJSON, nil
}

func (s *stubGateway) ListTaskPages(ctx context.Context, ns int32, prefix string) ([]title.Title, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefixesSeen = append(s.prefixesSeen, prefix)
	return s.taskPages, nil
}

func noopLogger() logging.Logger { return logging.New(discard{}, 100) }

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestFinderRefreshActivatesSiteConfig(t *testing.T) {
	gw := &stubGateway{siteJSON: `{"activate":true,"taskdir":"Tasks/","denyns":[8]}`}
	mgr := config.NewManager()
	f := New(gw, mgr, noopLogger(), time.Hour, "")

	f.refresh(context.Background())

	assert.True(t, mgr.Current().Activate)
	assert.True(t, mgr.IsNamespaceDenied(8))
	require.Contains(t, gw.prefixesSeen, "Tasks/")
}

func TestFinderRefreshClampsActivateOnFetchError(t *testing.T) {
	gw := &stubGateway{siteErr: assertErr{}}
	mgr := config.NewManager()
	mgr.Update(config.SiteConfig{Activate: true})
	f := New(gw, mgr, noopLogger(), time.Hour, "")

	f.refresh(context.Background())

	assert.False(t, mgr.Current().Activate)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestFinderSyncRunnersStartsAndStopsRunners(t *testing.T) {
	gw := &stubGateway{
		siteJSON:  `{"activate":true}`,
		taskPages: []title.Title{{NS: TaskNamespace, Base: "Task1"}},
	}
	mgr := config.NewManager()
	f := New(gw, mgr, noopLogger(), time.Hour, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.refresh(ctx)
	require.Len(t, f.runners, 1)

	gw.mu.Lock()
	gw.taskPages = nil
	gw.mu.Unlock()

	f.refresh(ctx)
	assert.Len(t, f.runners, 0)
}
