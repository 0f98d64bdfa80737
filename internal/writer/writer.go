// Package writer implements the Page Writer (component C6): it renders a
// task cycle's outcome onto a wiki page using a task's OutputFormat
// template, guarded by prop=info checks, and submits the result via
// action=edit. Write always runs once per OutputFormat entry regardless of
// whether the cycle that produced its status succeeded, matching the
// original implementation's always-write guarantee: a parse, evaluation,
// or timeout failure still produces a visible status marker on every
// target page.
//
// Grounded on original_source/src/routine/pagewriter.rs: make_edit_summary,
// make_header_content, and substitute_str_template.
package writer

import (
	"context"
	"fmt"
	"strings"

	"github.com/milkydeferwm/pagelist-bot/internal/config"
	"github.com/milkydeferwm/pagelist-bot/internal/gateway"
	"github.com/milkydeferwm/pagelist-bot/internal/title"
)

// Gateway is the subset of gateway.Client the writer needs.
type Gateway interface {
	Info(ctx context.Context, titles []title.Title) (map[title.Title]gateway.PageInfo, error)
	Edit(ctx context.Context, t title.Title, text, summary string) (gateway.EditResult, error)
	ParseTitle(raw string) title.Title
	NamespaceName(ns int32) string
}

// DeniedNamespaceChecker reports whether a namespace is off-limits for
// edits, backed by the shared config.Manager.
type DeniedNamespaceChecker interface {
	IsNamespaceDenied(ns int32) bool
}

// Outcome classifies what Write did, for the runner's status reporting.
type Outcome int

const (
	OutcomeEdited Outcome = iota
	OutcomeNoChange
)

// Status classifies why Write is being invoked for a given cycle, matching
// the four header-status values pagewriter.rs ever substitutes into
// {{subst:HEADER|taskid=...|status=...}}.
type Status string

const (
	StatusSuccess Status = "success"
	StatusTimeout Status = "timeout"
	StatusParse   Status = "parse"
	StatusRuntime Status = "runtime"
)

// GuardrailError explains why Write refused to edit the target page.
type GuardrailError struct {
	Reason string
}

func (e *GuardrailError) Error() string { return "writer: guardrail rejected target: " + e.Reason }

// Write renders the cycle's status and (when status is StatusSuccess)
// result set onto format.Target, guarded by prop=info checks on the target
// (must exist, must not be a redirect, must not live in a denied
// namespace), and submits the rendered text via action=edit. It is called
// once per OutputFormat entry on every cycle, success or failure alike.
func Write(ctx context.Context, gw Gateway, denied DeniedNamespaceChecker, resultHeader, taskID string, format config.OutputFormat, status Status, result title.Set) (Outcome, error) {
	target := gw.ParseTitle(format.Target)

	info, err := gw.Info(ctx, []title.Title{target})
	if err != nil {
		return OutcomeNoChange, err
	}
	pi, ok := info[target]
	if !ok || pi.Missing {
		return OutcomeNoChange, &GuardrailError{Reason: "target page does not exist"}
	}
	if pi.Redirect {
		return OutcomeNoChange, &GuardrailError{Reason: "target page is a redirect"}
	}
	if denied.IsNamespaceDenied(pi.NS) {
		return OutcomeNoChange, &GuardrailError{Reason: "target namespace is denied"}
	}

	body := headerMarker(resultHeader, taskID, status) + composeBody(gw, result, format, status)
	summary := editSummary(status, len(result))

	res, err := gw.Edit(ctx, target, body, summary)
	if err != nil {
		return OutcomeNoChange, err
	}
	if res.NoChange {
		return OutcomeNoChange, nil
	}
	return OutcomeEdited, nil
}

// headerMarker renders the status marker every write begins with, matching
// pagewriter.rs's make_header_content: a subst of the site's result-header
// template carrying the task identifier and the cycle's status.
func headerMarker(resultHeader, taskID string, status Status) string {
	return fmt.Sprintf("<noinclude>{{subst:%s|taskid=%s|status=%s}}</noinclude>", resultHeader, taskID, status)
}

// editSummary computes the edit summary, matching pagewriter.rs's
// make_edit_summary exactly: any non-success status collapses to "failure"
// regardless of what partial result may have been computed.
func editSummary(status Status, count int) string {
	if status != StatusSuccess {
		return "Update query: failure"
	}
	switch count {
	case 0:
		return "Update query: empty"
	case 1:
		return "Update query: 1 result"
	default:
		return fmt.Sprintf("Update query: %d results", count)
	}
}

// composeBody renders the Failure template on any non-success status, the
// Empty template on a zero-result success, or the Success template
// (Before + Item-per-page joined by Between + After) otherwise.
func composeBody(gw Gateway, result title.Set, format config.OutputFormat, status Status) string {
	if status != StatusSuccess {
		return format.Failure
	}

	titles := result.Slice()
	title.SortTitles(titles)

	if len(titles) == 0 {
		return format.Empty
	}

	var sb strings.Builder
	sb.WriteString(format.Success.Before)
	total := len(titles)
	for i, t := range titles {
		if i > 0 {
			sb.WriteString(format.Success.Between)
		}
		sb.WriteString(substituteTemplate(gw, format.Success.Item, t, i, total))
	}
	sb.WriteString(format.Success.After)
	return sb.String()
}

// substituteTemplate expands the Page Writer's template mini-language
// against one title: $$ escapes to a literal "$", $0 gives the full pretty
// title, $1 gives the namespace name, $2 gives the base name, $@ gives the
// 1-based running index of this item, $+ gives the total result count, and
// $n/$t give a newline/tab (a supplement beyond the original
// substitute_str_template_with_title, which the spec leaves as the
// writer's choice to support). Any other $X is emitted verbatim.
func substituteTemplate(gw Gateway, tpl string, t title.Title, index, total int) string {
	var sb strings.Builder
	r := []rune(tpl)
	for i := 0; i < len(r); i++ {
		if r[i] != '$' || i+1 >= len(r) {
			sb.WriteRune(r[i])
			continue
		}
		i++
		switch r[i] {
		case '$':
			sb.WriteByte('$')
		case '0':
			sb.WriteString(prettyTitle(gw, t))
		case '1':
			sb.WriteString(gw.NamespaceName(t.NS))
		case '2':
			sb.WriteString(t.Base)
		case '@':
			fmt.Fprintf(&sb, "%d", index+1)
		case '+':
			fmt.Fprintf(&sb, "%d", total)
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		default:
			sb.WriteByte('$')
			sb.WriteRune(r[i])
		}
	}
	return sb.String()
}

// prettyTitle renders the namespace-qualified on-wiki title, resolving the
// prefix through the session's namespace table.
func prettyTitle(gw Gateway, t title.Title) string {
	prefix := gw.NamespaceName(t.NS)
	if prefix == "" {
		return t.Base
	}
	return prefix + ":" + t.Base
}
