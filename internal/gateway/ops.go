package gateway

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/milkydeferwm/pagelist-bot/internal/ir"
	"github.com/milkydeferwm/pagelist-bot/internal/title"
)

// PageInfo is the subset of prop=info the Page Writer's guardrails need.
type PageInfo struct {
	Missing  bool
	Redirect bool
	NS       int32
}

const (
	apcontinueKey = "apcontinue"
	cmcontinueKey = "cmcontinue"
	blcontinueKey = "blcontinue"
	eicontinueKey = "eicontinue"
	lcontinueKey  = "plcontinue"
)

// Links returns the set of pages every title in titles links to
// (prop=links), honoring the constraint's namespace filter and limit.
// Grounded on apisolver.rs's get_links_one.
func (c *Client) Links(ctx context.Context, titles []title.Title, cs ir.SetConstraint) (title.Set, error) {
	if _, err := c.requireSession(); err != nil {
		return nil, err
	}
	result := title.NewSet()
	for _, t := range titles {
		base := url.Values{
			"action":  {"query"},
			"prop":    {"links"},
			"titles":  {c.fullPretty(t)},
			"pllimit": {"max"},
			"format":  {"json"},
		}
		if cs.NS != nil {
			base.Set("plnamespace", nsList(*cs.NS))
		}
		cont := ""
		for {
			params := cloneValues(base)
			if cont != "" {
				params.Set(lcontinueKey, cont)
			}
			var resp struct {
				Continue struct {
					PLContinue string `json:"plcontinue"`
				} `json:"continue"`
				Query struct {
					Pages map[string]struct {
						Links []struct {
							NS    int32  `json:"ns"`
							Title string `json:"title"`
						} `json:"links"`
					} `json:"pages"`
				} `json:"query"`
			}
			if err := c.getRaw(ctx, params, &resp); err != nil {
				return nil, err
			}
			for _, page := range resp.Query.Pages {
				for _, l := range page.Links {
					result.Add(c.titleFromFull(l.NS, l.Title))
				}
			}
			if resp.Continue.PLContinue == "" {
				break
			}
			cont = resp.Continue.PLContinue
		}
	}
	return applyLimit(result, cs.Limit), nil
}

// LinksTo returns the set of pages linking to any title in titles
// (list=backlinks). When DirectLink is set, only the direct backlinks
// query is issued; otherwise a second, "level 2" backlinks query with
// blredirect=1 is issued as well and its pages (including those linking
// via a redirect to the target) are added to the result.
func (c *Client) LinksTo(ctx context.Context, titles []title.Title, cs ir.SetConstraint) (title.Set, error) {
	if _, err := c.requireSession(); err != nil {
		return nil, err
	}
	result := title.NewSet()
	for _, t := range titles {
		direct, err := c.backlinksOnce(ctx, t, cs, false)
		if err != nil {
			return nil, err
		}
		if cs.DirectLink != nil && *cs.DirectLink {
			result = title.Union(result, direct)
			continue
		}
		viaRedirect, err := c.backlinksOnce(ctx, t, cs, true)
		if err != nil {
			return nil, err
		}
		result = title.Union(result, title.Union(direct, viaRedirect))
	}
	return applyLimit(result, cs.Limit), nil
}

// backlinksOnce issues one list=backlinks query, adding blredirect=1 for
// the "level 2" expansion (pages linking to a redirect that itself points
// at t).
func (c *Client) backlinksOnce(ctx context.Context, t title.Title, cs ir.SetConstraint, viaRedirectsOnly bool) (title.Set, error) {
	result := title.NewSet()
	base := url.Values{
		"action":  {"query"},
		"list":    {"backlinks"},
		"bltitle": {c.fullPretty(t)},
		"bllimit": {"max"},
		"format":  {"json"},
	}
	if cs.NS != nil {
		base.Set("blnamespace", nsList(*cs.NS))
	}
	if cs.Redir != nil {
		switch *cs.Redir {
		case ir.RedirectNoRedirect:
			base.Set("blfilterredir", "nonredirects")
		case ir.RedirectOnlyRedirect:
			base.Set("blfilterredir", "redirects")
		}
	}
	if viaRedirectsOnly {
		base.Set("blredirect", "1")
	}

	cont := ""
	for {
		params := cloneValues(base)
		if cont != "" {
			params.Set(blcontinueKey, cont)
		}
		var resp struct {
			Continue struct {
				BLContinue string `json:"blcontinue"`
			} `json:"continue"`
			Query struct {
				Backlinks []struct {
					NS    int32  `json:"ns"`
					Title string `json:"title"`
				} `json:"backlinks"`
			} `json:"query"`
		}
		if err := c.getRaw(ctx, params, &resp); err != nil {
			return nil, err
		}
		for _, bl := range resp.Query.Backlinks {
			result.Add(c.titleFromFull(bl.NS, bl.Title))
		}
		if resp.Continue.BLContinue == "" {
			break
		}
		cont = resp.Continue.BLContinue
	}
	return result, nil
}

// EmbeddedIn returns the set of pages transcluding any title in titles
// (list=embeddedin).
func (c *Client) EmbeddedIn(ctx context.Context, titles []title.Title, cs ir.SetConstraint) (title.Set, error) {
	if _, err := c.requireSession(); err != nil {
		return nil, err
	}
	result := title.NewSet()
	for _, t := range titles {
		base := url.Values{
			"action":  {"query"},
			"list":    {"embeddedin"},
			"eititle": {c.fullPretty(t)},
			"eilimit": {"max"},
			"format":  {"json"},
		}
		if cs.NS != nil {
			base.Set("einamespace", nsList(*cs.NS))
		}
		if cs.Redir != nil {
			switch *cs.Redir {
			case ir.RedirectNoRedirect:
				base.Set("eifilterredir", "nonredirects")
			case ir.RedirectOnlyRedirect:
				base.Set("eifilterredir", "redirects")
			}
		}
		cont := ""
		for {
			params := cloneValues(base)
			if cont != "" {
				params.Set(eicontinueKey, cont)
			}
			var resp struct {
				Continue struct {
					EIContinue string `json:"eicontinue"`
				} `json:"continue"`
				Query struct {
					EmbeddedIn []struct {
						NS    int32  `json:"ns"`
						Title string `json:"title"`
					} `json:"embeddedin"`
				} `json:"query"`
			}
			if err := c.getRaw(ctx, params, &resp); err != nil {
				return nil, err
			}
			for _, e := range resp.Query.EmbeddedIn {
				result.Add(c.titleFromFull(e.NS, e.Title))
			}
			if resp.Continue.EIContinue == "" {
				break
			}
			cont = resp.Continue.EIContinue
		}
	}
	return applyLimit(result, cs.Limit), nil
}

// CategoryMembersOnce fetches one level of list=categorymembers for a
// single category page. It does not recurse: the evaluator's BFS loop
// calls this once per visited category, applying "miser mode" by issuing
// separate cmtype=subcat / cmtype=file / cmtype=page requests (subcat and
// file only when the namespace filter is absent or admits NSCategory /
// NSFile), since a single cmnamespace list cannot select those
// specially-typed members by namespace alone. Grounded on apisolver.rs's get_category_members_one.
func (c *Client) CategoryMembersOnce(ctx context.Context, category title.Title, cs ir.SetConstraint) (title.Set, error) {
	if _, err := c.requireSession(); err != nil {
		return nil, err
	}
	if category.NS != int32(ir.NSCategory) {
		return title.NewSet(), nil
	}

	result := title.NewSet()
	wantSubcat := cs.NS == nil || cs.NS.Contains(ir.NSCategory)
	wantFile := cs.NS == nil || cs.NS.Contains(ir.NSFile)

	if wantSubcat {
		members, err := c.categoryMembersTyped(ctx, category, cs, "subcat", nil)
		if err != nil {
			return nil, err
		}
		result = title.Union(result, members)
	}
	if wantFile {
		members, err := c.categoryMembersTyped(ctx, category, cs, "file", nil)
		if err != nil {
			return nil, err
		}
		result = title.Union(result, members)
	}

	// Regular pages: cmtype=page with the namespace filter minus
	// NSCategory/NSFile (those are fetched above via cmtype, since
	// cmnamespace cannot distinguish a page namespace from the
	// category/file members living logically at the same level).
	pageNS := cs.NS
	if pageNS != nil {
		filtered := pageNS.Clone()
		delete(filtered, ir.NSCategory)
		delete(filtered, ir.NSFile)
		pageNS = &filtered
	}
	pageCS := cs
	pageCS.NS = pageNS
	members, err := c.categoryMembersTyped(ctx, category, pageCS, "page", pageNS)
	if err != nil {
		return nil, err
	}
	result = title.Union(result, members)

	return applyLimit(result, cs.Limit), nil
}

func (c *Client) categoryMembersTyped(ctx context.Context, category title.Title, cs ir.SetConstraint, cmtype string, ns *ir.NSSet) (title.Set, error) {
	result := title.NewSet()
	base := url.Values{
		"action":  {"query"},
		"list":    {"categorymembers"},
		"cmtitle": {c.fullPretty(category)},
		"cmtype":  {cmtype},
		"cmlimit": {"max"},
		"format":  {"json"},
	}
	if ns != nil {
		base.Set("cmnamespace", nsList(*ns))
	}
	if cs.Redir != nil {
		// categorymembers has no native redirect filter, and Redir is not
		// applied to category members anywhere else either.
		_ = cs.Redir
	}

	cont := ""
	for {
		params := cloneValues(base)
		if cont != "" {
			params.Set(cmcontinueKey, cont)
		}
		var resp struct {
			Continue struct {
				CMContinue string `json:"cmcontinue"`
			} `json:"continue"`
			Query struct {
				CategoryMembers []struct {
					NS    int32  `json:"ns"`
					Title string `json:"title"`
				} `json:"categorymembers"`
			} `json:"query"`
		}
		if err := c.getRaw(ctx, params, &resp); err != nil {
			return nil, err
		}
		for _, m := range resp.Query.CategoryMembers {
			result.Add(c.titleFromFull(m.NS, m.Title))
		}
		if resp.Continue.CMContinue == "" {
			break
		}
		cont = resp.Continue.CMContinue
	}
	return result, nil
}

// PrefixIndex returns every page whose title starts with prefix's base
// name (list=allpages apprefix), short-circuiting to the empty set when
// the constraint's namespace filter excludes prefix's own namespace,
// since apprefix is always evaluated within a single apnamespace.
func (c *Client) PrefixIndex(ctx context.Context, prefix title.Title, cs ir.SetConstraint) (title.Set, error) {
	if _, err := c.requireSession(); err != nil {
		return nil, err
	}
	if cs.NS != nil && !cs.NS.Contains(ir.NamespaceID(prefix.NS)) {
		return title.NewSet(), nil
	}

	result := title.NewSet()
	base := url.Values{
		"action":     {"query"},
		"list":       {"allpages"},
		"apprefix":   {prefix.Base},
		"apnamespace": {strconv.Itoa(int(prefix.NS))},
		"aplimit":    {"max"},
		"format":     {"json"},
	}
	if cs.Redir != nil {
		switch *cs.Redir {
		case ir.RedirectNoRedirect:
			base.Set("apfilterredir", "nonredirects")
		case ir.RedirectOnlyRedirect:
			base.Set("apfilterredir", "redirects")
		}
	}

	cont := ""
	for {
		params := cloneValues(base)
		if cont != "" {
			params.Set(apcontinueKey, cont)
		}
		var resp struct {
			Continue struct {
				APContinue string `json:"apcontinue"`
			} `json:"continue"`
			Query struct {
				AllPages []struct {
					NS    int32  `json:"ns"`
					Title string `json:"title"`
				} `json:"allpages"`
			} `json:"query"`
		}
		if err := c.getRaw(ctx, params, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Query.AllPages {
			result.Add(c.titleFromFull(p.NS, p.Title))
		}
		if resp.Continue.APContinue == "" {
			break
		}
		cont = resp.Continue.APContinue
	}
	return applyLimit(result, cs.Limit), nil
}

// ListTaskPages enumerates every non-redirect, contentmodel=json page in ns
// whose title starts with prefix (list=allpages apprefix=... apfilterredir
// =nonredirects apcontentmodel=json), the Finder's task-page discovery
// query scoped to the site config's taskdir.
func (c *Client) ListTaskPages(ctx context.Context, ns int32, prefix string) ([]title.Title, error) {
	if _, err := c.requireSession(); err != nil {
		return nil, err
	}
	var out []title.Title
	base := url.Values{
		"action":         {"query"},
		"list":           {"allpages"},
		"apnamespace":    {strconv.Itoa(int(ns))},
		"apfilterredir":  {"nonredirects"},
		"apcontentmodel": {"json"},
		"aplimit":        {"max"},
		"format":         {"json"},
	}
	if prefix != "" {
		base.Set("apprefix", prefix)
	}
	cont := ""
	for {
		params := cloneValues(base)
		if cont != "" {
			params.Set(apcontinueKey, cont)
		}
		var resp struct {
			Continue struct {
				APContinue string `json:"apcontinue"`
			} `json:"continue"`
			Query struct {
				AllPages []struct {
					NS    int32  `json:"ns"`
					Title string `json:"title"`
				} `json:"allpages"`
			} `json:"query"`
		}
		if err := c.getRaw(ctx, params, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Query.AllPages {
			out = append(out, c.titleFromFull(p.NS, p.Title))
		}
		if resp.Continue.APContinue == "" {
			break
		}
		cont = resp.Continue.APContinue
	}
	return out, nil
}

// Content fetches the current wikitext of t (prop=revisions
// rvslots=main rvprop=content), the source of both task descriptors and
// the site config page.
func (c *Client) Content(ctx context.Context, t title.Title) (string, error) {
	if _, err := c.requireSession(); err != nil {
		return "", err
	}
	var resp struct {
		Query struct {
			Pages map[string]struct {
				Missing   bool `json:"missing"`
				Revisions []struct {
					Slots struct {
						Main struct {
							Content string `json:"content"`
						} `json:"main"`
					} `json:"slots"`
				} `json:"revisions"`
			} `json:"pages"`
		} `json:"query"`
	}
	err := c.getRaw(ctx, url.Values{
		"action":  {"query"},
		"prop":    {"revisions"},
		"titles":  {c.fullPretty(t)},
		"rvslots": {"main"},
		"rvprop":  {"content"},
		"format":  {"json"},
	}, &resp)
	if err != nil {
		return "", err
	}
	for _, page := range resp.Query.Pages {
		if page.Missing {
			return "", &ClientError{Code: "missingtitle", Info: "page does not exist"}
		}
		if len(page.Revisions) > 0 {
			return page.Revisions[0].Slots.Main.Content, nil
		}
	}
	return "", &ClientError{Code: "no-revisions", Info: "page has no current revision"}
}

// Info fetches prop=info for the given titles, the data source for the
// Page Writer's missing/redirect/denied-namespace guardrails.
func (c *Client) Info(ctx context.Context, titles []title.Title) (map[title.Title]PageInfo, error) {
	if _, err := c.requireSession(); err != nil {
		return nil, err
	}
	out := make(map[title.Title]PageInfo, len(titles))
	for _, batch := range batchTitles(titles, 50) {
		full := make([]string, len(batch))
		for i, t := range batch {
			full[i] = c.fullPretty(t)
		}
		var resp struct {
			Query struct {
				Pages map[string]struct {
					NS       int32  `json:"ns"`
					Title    string `json:"title"`
					Missing  bool   `json:"missing"`
					Redirect bool   `json:"redirect"`
				} `json:"pages"`
			} `json:"query"`
		}
		err := c.getRaw(ctx, url.Values{
			"action": {"query"},
			"prop":   {"info"},
			"titles": {strings.Join(full, "|")},
			"format": {"json"},
		}, &resp)
		if err != nil {
			return nil, err
		}
		for _, p := range resp.Query.Pages {
			t := c.titleFromFull(p.NS, p.Title)
			out[t] = PageInfo{Missing: p.Missing, Redirect: p.Redirect, NS: p.NS}
		}
	}
	return out, nil
}

func batchTitles(titles []title.Title, size int) [][]title.Title {
	var out [][]title.Title
	for len(titles) > 0 {
		n := size
		if n > len(titles) {
			n = len(titles)
		}
		out = append(out, titles[:n])
		titles = titles[n:]
	}
	return out
}

func (c *Client) fullPretty(t title.Title) string {
	ns := c.NamespaceName(int32(t.NS))
	if ns == "" {
		return t.Base
	}
	return ns + ":" + t.Base
}

func (c *Client) titleFromFull(ns int32, full string) title.Title {
	prefix := c.NamespaceName(ns)
	base := full
	if prefix != "" && strings.HasPrefix(full, prefix+":") {
		base = full[len(prefix)+1:]
	}
	return title.Title{NS: ns, Base: base}
}

func nsList(ns ir.NSSet) string {
	ids := make([]string, 0, len(ns))
	for id := range ns {
		ids = append(ids, strconv.Itoa(int(id)))
	}
	return strings.Join(ids, "|")
}

func applyLimit(s title.Set, limit *int) title.Set {
	if limit == nil || *limit < 0 || len(s) <= *limit {
		return s
	}
	titles := s.Slice()
	title.SortTitles(titles)
	return title.NewSet(titles[:*limit]...)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
