// Package config defines the on-wiki configuration data model (site
// config, task descriptors, task config) and the process-wide shared-state
// cells the Finder publishes into and the Runner pool reads from.
package config

import "encoding/json"

// SuccessFormat renders a non-empty result set: before is emitted once at
// the top, item once per result, between once separating each pair of
// items, and after once at the bottom.
type SuccessFormat struct {
	Before  string `json:"before,omitempty"`
	Item    string `json:"item"`
	Between string `json:"between,omitempty"`
	After   string `json:"after,omitempty"`
}

// OutputFormat selects how the Page Writer renders one task's result onto
// one target page: success holds the template for a non-empty result,
// empty is substituted verbatim for a zero-result success, and failure is
// substituted verbatim for any parse/eval/timeout/runtime error.
type OutputFormat struct {
	Target  string        `json:"target"`
	Failure string        `json:"failure,omitempty"`
	Empty   string        `json:"empty,omitempty"`
	Success SuccessFormat `json:"success,omitempty"`
}

// TaskConfig carries the per-task knobs that can also be supplied as
// process-wide defaults; nil fields fall back to the site default.
type TaskConfig struct {
	Timeout    *int `json:"timeout,omitempty"` // seconds
	QueryLimit *int `json:"querylimit,omitempty"`
}

// Effective folds task-specific overrides onto a site-wide default,
// per-field: any nil field on override falls back to the default's value.
func (t TaskConfig) Effective(def TaskConfig) TaskConfig {
	out := t
	if out.Timeout == nil {
		out.Timeout = def.Timeout
	}
	if out.QueryLimit == nil {
		out.QueryLimit = def.QueryLimit
	}
	return out
}

// TaskDescriptor is the parsed contents of one on-wiki task page: the
// source expression to compile/evaluate, its cron schedule, the output
// formats it writes to, and any per-task overrides of the site default
// timeout/querylimit.
type TaskDescriptor struct {
	Activate    bool           `json:"activate"`
	Description string         `json:"description,omitempty"`
	Expr        string         `json:"expr"`
	Cron        string         `json:"cron"`
	Timeout     *int           `json:"timeout,omitempty"`
	QueryLimit  *int           `json:"querylimit,omitempty"`
	Output      []OutputFormat `json:"output"`
}

// Config extracts the task's own timeout/querylimit overrides as a
// TaskConfig, for folding onto the site default via Effective.
func (td TaskDescriptor) Config() TaskConfig {
	return TaskConfig{Timeout: td.Timeout, QueryLimit: td.QueryLimit}
}

// ParseTaskDescriptor unmarshals a task page's wikitext (a contentmodel
// "json" page) into a TaskDescriptor.
func ParseTaskDescriptor(raw []byte) (TaskDescriptor, error) {
	var td TaskDescriptor
	if err := json.Unmarshal(raw, &td); err != nil {
		return TaskDescriptor{}, err
	}
	return td, nil
}

// SiteConfig is the parsed contents of the bot's site-wide config page:
// the activation switch, the task-page discovery prefix, denied
// namespaces, the status-header template name, and the default TaskConfig.
type SiteConfig struct {
	Activate     bool       `json:"activate"`
	TaskDir      string     `json:"taskdir,omitempty"`
	ResultHeader string     `json:"resultheader,omitempty"`
	DeniedNS     []int32    `json:"denyns,omitempty"`
	Default      TaskConfig `json:"default,omitempty"`
}

// ParseSiteConfig unmarshals the site config page's wikitext.
func ParseSiteConfig(raw []byte) (SiteConfig, error) {
	var sc SiteConfig
	if err := json.Unmarshal(raw, &sc); err != nil {
		return SiteConfig{}, err
	}
	return sc, nil
}
