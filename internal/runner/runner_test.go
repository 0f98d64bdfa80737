package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milkydeferwm/pagelist-bot/internal/config"
	"github.com/milkydeferwm/pagelist-bot/internal/gateway"
	"github.com/milkydeferwm/pagelist-bot/internal/ir"
	"github.com/milkydeferwm/pagelist-bot/internal/logging"
	"github.com/milkydeferwm/pagelist-bot/internal/title"
)

type stubGateway struct {
	content string
	info    map[title.Title]gateway.PageInfo
	edited  []string
}

func (s *stubGateway) ParseTitle(raw string) title.Title { return title.Title{NS: 0, Base: raw} }
func (s *stubGateway) NamespaceName(int32) string        { return "" }
func (s *stubGateway) Lock()                             {}
func (s *stubGateway) Unlock()                           {}

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
	out := make(map[title.Title]gateway.PageInfo, len(titles))
	for _, t := range titles {
		out[t] = s.info[t]
	}
	return out, nil
}

func (s *stubGateway) Edit(ctx context.Context, t title.Title, text, summary string) (gateway.EditResult, error) {
	s.edited = append(s.edited, text)
	return gateway.EditResult{}, nil
}

func (s *stubGateway) Content(ctx context.Context, t title.Title) (string, error) {
	return s.content, nil
}

func noopLogger() logging.Logger { return logging.New(discard{}, 100) }

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestRunOnceSuccessWritesResult(t *testing.T) {
	gw := &stubGateway{
		info: map[title.Title]gateway.PageInfo{{NS: 0, Base: "Target"}: {}},
	}
	mgr := config.NewManager()
	mgr.Update(config.SiteConfig{Activate: true, ResultHeader: "Header"})

	r := &Runner{
		TaskPage: title.Title{NS: 4, Base: "Task1"},
		Gateway:  gw,
		Config:   mgr,
		Log:      noopLogger(),
	}

	desc := config.TaskDescriptor{
		Activate: true,
		Expr:     `page("A","B")`,
		Cron:     "0 * * * *",
		Output:   []config.OutputFormat{{Target: "Target", Success: config.SuccessFormat{Item: "* $0\n"}}},
	}
	outcome := r.RunOnce(context.Background(), desc, mgr.Current())

	require.Equal(t, OutcomeSuccess, outcome)
	require.Len(t, gw.edited, 1)
	assert.Contains(t, gw.edited[0], "A")
	assert.Contains(t, gw.edited[0], "B")
	assert.Contains(t, gw.edited[0], "status=success")
}

func TestRunOnceParseErrorStillWritesFailureStatus(t *testing.T) {
	gw := &stubGateway{info: map[title.Title]gateway.PageInfo{{NS: 0, Base: "Target"}: {}}}
	mgr := config.NewManager()
	mgr.Update(config.SiteConfig{Activate: true, ResultHeader: "Header"})
	r := &Runner{TaskPage: title.Title{Base: "Task1"}, Gateway: gw, Config: mgr, Log: noopLogger()}

	desc := config.TaskDescriptor{
		Activate: true,
		Expr:     `page(`,
		Cron:     "0 * * * *",
		Output:   []config.OutputFormat{{Target: "Target", Failure: "failed"}},
	}
	outcome := r.RunOnce(context.Background(), desc, mgr.Current())
	assert.Equal(t, OutcomeParseError, outcome)
	require.Len(t, gw.edited, 1)
	assert.Contains(t, gw.edited[0], "failed")
	assert.Contains(t, gw.edited[0], "status=parse")
}

func TestRunOnceQueryLimitCapsResult(t *testing.T) {
	gw := &stubGateway{info: map[title.Title]gateway.PageInfo{{NS: 0, Base: "Target"}: {}}}
	mgr := config.NewManager()
	mgr.Update(config.SiteConfig{Activate: true, ResultHeader: "Header"})
	r := &Runner{TaskPage: title.Title{Base: "Task1"}, Gateway: gw, Config: mgr, Log: noopLogger()}

	limit := 1
	desc := config.TaskDescriptor{
		Activate:   true,
		Expr:       `page("A","B","C")`,
		Cron:       "0 * * * *",
		QueryLimit: &limit,
		Output:     []config.OutputFormat{{Target: "Target", Success: config.SuccessFormat{Item: "$0\n"}}},
	}
	outcome := r.RunOnce(context.Background(), desc, mgr.Current())

	require.Equal(t, OutcomeSuccess, outcome)
	require.Len(t, gw.edited, 1)
	lines := 0
	for _, c := range gw.edited[0] {
		if c == '\n' {
			lines++
		}
	}
	assert.Equal(t, 1, lines)
}
