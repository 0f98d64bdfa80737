package writer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milkydeferwm/pagelist-bot/internal/config"
	"github.com/milkydeferwm/pagelist-bot/internal/gateway"
	"github.com/milkydeferwm/pagelist-bot/internal/title"
)

type stubGateway struct {
	info     map[title.Title]gateway.PageInfo
	edits    []string
	noChange bool
}

func (s *stubGateway) Info(ctx context.Context, titles []title.Title) (map[title.Title]gateway.PageInfo, error) {
	out := make(map[title.Title]gateway.PageInfo, len(titles))
	for _, t := range titles {
		out[t] = s.info[t]
	}
	return out, nil
}

func (s *stubGateway) Edit(ctx context.Context, t title.Title, text, summary string) (gateway.EditResult, error) {
	s.edits = append(s.edits, text)
	return gateway.EditResult{NoChange: s.noChange}, nil
}

func (s *stubGateway) ParseTitle(raw string) title.Title { return title.Title{NS: 0, Base: raw} }

func (s *stubGateway) NamespaceName(ns int32) string {
	if ns == 4 {
		return "Project"
	}
	return ""
}

type allowAll struct{}

func (allowAll) IsNamespaceDenied(ns int32) bool { return false }

const targetName = "ListPage"

func target() title.Title { return title.Title{NS: 0, Base: targetName} }

func TestWriteRejectsMissingTarget(t *testing.T) {
	gw := &stubGateway{info: map[title.Title]gateway.PageInfo{
		target(): {Missing: true},
	}}
	_, err := Write(context.Background(), gw, allowAll{}, "Header", "Task", config.OutputFormat{Target: targetName}, StatusSuccess, title.NewSet())
	require.Error(t, err)
	var g *GuardrailError
	assert.ErrorAs(t, err, &g)
}

func TestWriteRejectsRedirectTarget(t *testing.T) {
	gw := &stubGateway{info: map[title.Title]gateway.PageInfo{
		target(): {Redirect: true},
	}}
	_, err := Write(context.Background(), gw, allowAll{}, "Header", "Task", config.OutputFormat{Target: targetName}, StatusSuccess, title.NewSet())
	require.Error(t, err)
}

type denyNS4 struct{}

func (denyNS4) IsNamespaceDenied(ns int32) bool { return ns == 4 }

func TestWriteRejectsDeniedNamespace(t *testing.T) {
	gw := &stubGateway{info: map[title.Title]gateway.PageInfo{
		target(): {NS: 4},
	}}
	_, err := Write(context.Background(), gw, denyNS4{}, "Header", "Task", config.OutputFormat{Target: targetName}, StatusSuccess, title.NewSet())
	require.Error(t, err)
}

func TestWriteComposesItemListInSortedOrder(t *testing.T) {
	gw := &stubGateway{info: map[title.Title]gateway.PageInfo{
		target(): {},
	}}
	result := title.NewSet(
		title.Title{NS: 0, Base: "Zebra"},
		title.Title{NS: 0, Base: "Apple"},
	)
	format := config.OutputFormat{
		Target: targetName,
		Success: config.SuccessFormat{
			Before:  "<start>",
			Item:    "* $0\n",
			Between: "",
			After:   "<end>",
		},
	}
	outcome, err := Write(context.Background(), gw, allowAll{}, "Header", "Task", format, StatusSuccess, result)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEdited, outcome)
	require.Len(t, gw.edits, 1)
	body := gw.edits[0]
	assert.Less(t, indexOf(body, "Apple"), indexOf(body, "Zebra"))
	assert.Contains(t, body, "<start>")
	assert.Contains(t, body, "<end>")
	assert.Contains(t, body, "{{subst:Header|taskid=Task|status=success}}")
}

func TestWriteEmptyResultUsesEmptyTemplate(t *testing.T) {
	gw := &stubGateway{info: map[title.Title]gateway.PageInfo{
		target(): {},
	}}
	format := config.OutputFormat{Target: targetName, Empty: "no pages found"}
	_, err := Write(context.Background(), gw, allowAll{}, "Header", "Task", format, StatusSuccess, title.NewSet())
	require.NoError(t, err)
	assert.Contains(t, gw.edits[0], "no pages found")
}

func TestWriteFailureStatusUsesFailureTemplate(t *testing.T) {
	gw := &stubGateway{info: map[title.Title]gateway.PageInfo{
		target(): {},
	}}
	format := config.OutputFormat{Target: targetName, Failure: "query failed"}
	_, err := Write(context.Background(), gw, allowAll{}, "Header", "Task", format, StatusParse, nil)
	require.NoError(t, err)
	assert.Contains(t, gw.edits[0], "query failed")
	assert.Contains(t, gw.edits[0], "status=parse")
}

func TestWriteReportsNoChange(t *testing.T) {
	gw := &stubGateway{
		info:     map[title.Title]gateway.PageInfo{target(): {}},
		noChange: true,
	}
	format := config.OutputFormat{Target: targetName, Success: config.SuccessFormat{Item: "$0"}}
	outcome, err := Write(context.Background(), gw, allowAll{}, "Header", "Task", format, StatusSuccess, title.NewSet())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoChange, outcome)
}

func TestEditSummaryVariants(t *testing.T) {
	assert.Equal(t, "Update query: empty", editSummary(StatusSuccess, 0))
	assert.Equal(t, "Update query: 1 result", editSummary(StatusSuccess, 1))
	assert.Equal(t, "Update query: 3 results", editSummary(StatusSuccess, 3))
	assert.Equal(t, "Update query: failure", editSummary(StatusTimeout, 0))
	assert.Equal(t, "Update query: failure", editSummary(StatusParse, 0))
	assert.Equal(t, "Update query: failure", editSummary(StatusRuntime, 5))
}

func TestSubstituteTemplateDollarPlaceholders(t *testing.T) {
	gw := &stubGateway{}
	tpl := "$+ $0 $1 $2 $@ $$ $x"
	got := substituteTemplate(gw, tpl, title.Title{NS: 4, Base: "Foo"}, 2, 5)
	assert.Equal(t, "5 Project:Foo Project Foo 3 $ $x", got)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
