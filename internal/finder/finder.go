// Package finder implements the Task Finder (component C8): a single
// goroutine that periodically refreshes the site config, publishes it to
// the shared config.Manager, and keeps the pool of Runner goroutines in
// sync with the current set of on-wiki task pages.
//
// Grounded on original_source/src/routine/taskfinder.rs: the site config
// page fetch, the fail-safe activate=false clamp on fetch failure, the
// allpages+contentmodel=json task enumeration, and the 10-minute poll
// interval.
package finder

import (
	"context"
	"sync"
	"time"

	"github.com/milkydeferwm/pagelist-bot/internal/config"
	"github.com/milkydeferwm/pagelist-bot/internal/logging"
	"github.com/milkydeferwm/pagelist-bot/internal/metrics"
	"github.com/milkydeferwm/pagelist-bot/internal/runner"
	"github.com/milkydeferwm/pagelist-bot/internal/title"
)

// Gateway is the subset of gateway.Client the Finder needs directly; it
// also hands out the same Gateway to every Runner it spawns.
type Gateway interface {
	runner.Gateway
	Content(ctx context.Context, t title.Title) (string, error)
	ListTaskPages(ctx context.Context, ns int32, prefix string) ([]title.Title, error)
}

// TaskNamespace is the namespace task pages live in, matching the
// original implementation's fixed convention.
const TaskNamespace int32 = 4

// DefaultSiteConfigPage is used when a Finder is built without an explicit
// ConfigPage, matching the original implementation's fixed convention.
const DefaultSiteConfigPage = "PageListBot/config.json"

// Finder owns the pool of live Runners and keeps it aligned with the
// current set of task pages.
type Finder struct {
	Gateway Gateway
	Config  *config.Manager
	Log     logging.Logger
	Poll    time.Duration

	// ConfigPage is the page (within TaskNamespace) the Finder reads the
	// site-wide bot configuration from, taken from the site profile's
	// "config" field.
	ConfigPage string

	// Metrics is optional; a nil Metrics disables instrumentation for
	// every Runner the Finder spawns.
	Metrics *metrics.Recorder

	mu      sync.Mutex
	runners map[title.Title]context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a Finder with the default 10-minute poll interval if poll is
// zero, and the default config page name if configPage is empty.
func New(gw Gateway, mgr *config.Manager, log logging.Logger, poll time.Duration, configPage string) *Finder {
	if poll <= 0 {
		poll = 10 * time.Minute
	}
	if configPage == "" {
		configPage = DefaultSiteConfigPage
	}
	return &Finder{
		Gateway:    gw,
		Config:     mgr,
		Log:        log,
		Poll:       poll,
		ConfigPage: configPage,
		runners:    make(map[title.Title]context.CancelFunc),
	}
}

// Run loops until ctx is canceled, refreshing site config and the task
// page roster every Poll interval. It blocks until every spawned Runner
// goroutine has exited (via ctx cancellation) before returning.
func (f *Finder) Run(ctx context.Context) {
	defer f.wg.Wait()
	for {
		f.refresh(ctx)
		select {
		case <-ctx.Done():
			f.stopAll()
			return
		case <-time.After(f.Poll):
		}
	}
}

func (f *Finder) refresh(ctx context.Context) {
	sitePage := title.Title{NS: TaskNamespace, Base: f.ConfigPage}
	raw, err := f.Gateway.Content(ctx, sitePage)
	if err != nil {
		f.Log.Warn("finder: fetching site config: %v", err)
		f.Config.Deactivate()
		return
	}
	site, err := config.ParseSiteConfig([]byte(raw))
	if err != nil {
		f.Log.Warn("finder: parsing site config: %v", err)
		f.Config.Deactivate()
		return
	}
	f.Config.Update(site)

	pages, err := f.Gateway.ListTaskPages(ctx, TaskNamespace, site.TaskDir)
	if err != nil {
		f.Log.Warn("finder: listing task pages: %v", err)
		return
	}

	f.syncRunners(ctx, pages)
}

// syncRunners starts a Runner for every task page not already running and
// stops any Runner whose task page has disappeared, matching
// taskfinder.rs's create/destroy bookkeeping against its TaskRunner map.
func (f *Finder) syncRunners(ctx context.Context, pages []title.Title) {
	f.mu.Lock()
	defer f.mu.Unlock()

	current := make(map[title.Title]struct{}, len(pages))
	for _, p := range pages {
		if p.Base == f.ConfigPage {
			continue
		}
		current[p] = struct{}{}
		if _, ok := f.runners[p]; ok {
			continue
		}
		runCtx, cancel := context.WithCancel(ctx)
		f.runners[p] = cancel
		f.wg.Add(1)
		r := &runner.Runner{
			TaskPage: p,
			Gateway:  f.Gateway,
			Config:   f.Config,
			Log:      f.Log.With("task", p.Base),
			Metrics:  f.Metrics,
		}
		go func() {
			defer f.wg.Done()
			r.Start(runCtx)
		}()
		f.Log.Info("finder: started runner for task %s", p.Base)
	}

	for p, cancel := range f.runners {
		if _, ok := current[p]; !ok {
			cancel()
			delete(f.runners, p)
			f.Log.Info("finder: stopped runner for removed task %s", p.Base)
		}
	}
}

func (f *Finder) stopAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for p, cancel := range f.runners {
		cancel()
		delete(f.runners, p)
	}
}
