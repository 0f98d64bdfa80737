// Package gateway is the sole component that speaks to the MediaWiki
// Action API (component C4). It owns session lifecycle, request
// decoration, the CSRF token, and a coarse lock serializing logical
// batches of requests so a read-modify-write sequence (e.g. fetch +
// verify + edit) is never interleaved with another task's requests on the
// same connection.
//
// Grounded on original_source/src/solver/apisolver.rs for request shapes
// and on other_examples/d3ce82e7_peer-db__cmd-wikipedia-wikipedia.go.go
// for the go-retryablehttp transport and signal-aware lifecycle pattern.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/milkydeferwm/pagelist-bot/internal/logging"
	"github.com/milkydeferwm/pagelist-bot/internal/title"
)

// Credentials holds the bot account's login and the base user name used to
// derive assertuser (the portion before the first "@" in a bot password).
type Credentials struct {
	Username string
	Password string
}

// AssertMode selects the "assert" param MediaWiki checks on every request,
// taken verbatim from the site profile's "assert" field (one of "anon",
// "user", "bot"; empty disables the check).
type AssertMode string

func (c Credentials) assertUser() string {
	if i := strings.IndexByte(c.Username, '@'); i >= 0 {
		return c.Username[:i]
	}
	return c.Username
}

// Client is a logged-in handle to one MediaWiki site's Action API.
type Client struct {
	apiURL  string
	creds   Credentials
	assert  AssertMode
	botFlag bool
	log     logging.Logger

	http *http.Client

	// mu serializes logical batches of requests (the coarse API lock of
	// spec §5): a Lock/Unlock pair brackets e.g. one evaluator run or one
	// writer guardrail+edit sequence.
	mu sync.Mutex

	sessionMu   sync.RWMutex
	csrfToken   string
	namespaces  map[int32]string
	nsByName    map[string]int32
	hasSession  bool

	metaCache *lru.Cache[string, title.Title]
}

// Config bundles the knobs New needs beyond credentials, taken from the
// site-profile entry selected on the command line.
type Config struct {
	APIURL    string
	Assert    AssertMode
	BotFlag   bool
	Timeout   time.Duration
	RetryMax  int
	CacheSize int
}

// New builds a Client with a retryablehttp-backed transport (bounded
// retry/backoff honoring MediaWiki's maxlag contract) but does not log in;
// call Login before issuing any other request.
func New(cfg Config, creds Credentials, log logging.Logger) (*Client, error) {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.Logger = nil
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.CheckRetry = retryAfterMaxlagPolicy

	cache, err := lru.New[string, title.Title](cacheSizeOrDefault(cfg.CacheSize))
	if err != nil {
		return nil, err
	}

	return &Client{
		apiURL:    cfg.APIURL,
		creds:     creds,
		assert:    cfg.Assert,
		botFlag:   cfg.BotFlag,
		log:       log,
		http:      rc.StandardClient(),
		metaCache: cache,
	}, nil
}

func cacheSizeOrDefault(n int) int {
	if n <= 0 {
		return 4096
	}
	return n
}

// retryAfterMaxlagPolicy retries on 5xx, connection errors, and the
// maxlag-triggered 200 "error" body MediaWiki uses in place of a 503.
func retryAfterMaxlagPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode >= 500 {
		return true, nil
	}
	if resp.StatusCode == http.StatusOK && resp.Body != nil {
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))
		var envelope struct {
			Error *struct{ Code string `json:"code"` } `json:"error"`
		}
		if readErr == nil && json.Unmarshal(body, &envelope) == nil && envelope.Error != nil && envelope.Error.Code == "maxlag" {
			return true, nil
		}
	}
	return false, nil
}

// Login establishes a session: fetches a login token, submits
// action=login, then fetches a fresh CSRF token and the site's namespace
// table. It is safe to call again to re-establish a session after a
// keep-alive failure.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	loginToken, err := c.fetchToken(ctx, "login")
	if err != nil {
		return err
	}

	form := url.Values{
		"action":     {"login"},
		"lgname":     {c.creds.Username},
		"lgpassword": {c.creds.Password},
		"lgtoken":    {loginToken},
		"format":     {"json"},
	}
	var resp struct {
		Login struct {
			Result string `json:"result"`
			Reason string `json:"reason"`
		} `json:"login"`
	}
	if err := c.postForm(ctx, form, &resp); err != nil {
		return err
	}
	if resp.Login.Result != "Success" {
		return &ClientError{Code: "login-failed", Info: resp.Login.Reason}
	}

	csrf, err := c.fetchToken(ctx, "csrf")
	if err != nil {
		return err
	}
	ns, err := c.fetchNamespaces(ctx)
	if err != nil {
		return err
	}

	byName := make(map[string]int32, len(ns))
	for id, name := range ns {
		if name != "" {
			byName[strings.ToLower(name)] = id
		}
	}

	c.sessionMu.Lock()
	c.csrfToken = csrf
	c.namespaces = ns
	c.nsByName = byName
	c.hasSession = true
	c.sessionMu.Unlock()
	c.log.Info("gateway: session established for %s", c.creds.Username)
	return nil
}

// KeepAlive re-fetches a CSRF token to extend the session, invalidating
// the session (so subsequent operations fail with NoSessionError until
// Login is called again) if the API rejects the request.
func (c *Client) KeepAlive(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	csrf, err := c.fetchToken(ctx, "csrf")
	if err != nil {
		c.sessionMu.Lock()
		c.hasSession = false
		c.sessionMu.Unlock()
		return err
	}
	c.sessionMu.Lock()
	c.csrfToken = csrf
	c.sessionMu.Unlock()
	return nil
}

func (c *Client) requireSession() (string, error) {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	if !c.hasSession {
		return "", NoSessionError{}
	}
	return c.csrfToken, nil
}

func (c *Client) fetchToken(ctx context.Context, kind string) (string, error) {
	var resp struct {
		Query struct {
			Tokens map[string]string `json:"tokens"`
		} `json:"query"`
	}
	err := c.getRaw(ctx, url.Values{
		"action": {"query"},
		"meta":   {"tokens"},
		"type":   {kind},
		"format": {"json"},
	}, &resp)
	if err != nil {
		return "", err
	}
	tok := resp.Query.Tokens[kind+"token"]
	if tok == "" {
		return "", &ClientError{Code: "no-token", Info: "missing " + kind + "token in response"}
	}
	return tok, nil
}

func (c *Client) fetchNamespaces(ctx context.Context) (map[int32]string, error) {
	var resp struct {
		Query struct {
			Namespaces map[string]struct {
				ID   int32  `json:"id"`
				Name string `json:"name"`
			} `json:"namespaces"`
		} `json:"query"`
	}
	err := c.getRaw(ctx, url.Values{
		"action": {"query"},
		"meta":   {"siteinfo"},
		"siprop": {"namespaces"},
		"format": {"json"},
	}, &resp)
	if err != nil {
		return nil, err
	}
	out := make(map[int32]string, len(resp.Query.Namespaces))
	for _, ns := range resp.Query.Namespaces {
		out[ns.ID] = ns.Name
	}
	return out, nil
}

// NamespaceName returns the canonical namespace prefix for ns (empty
// string for the main namespace), per the site's siteinfo.
func (c *Client) NamespaceName(ns int32) string {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.namespaces[ns]
}

// decorate stamps every outgoing request with the fixed envelope params
// (format=json, formatversion=2, utf8=1) plus the configured assert/
// assertuser pair, overwriting any value a caller already set for them.
func (c *Client) decorate(params url.Values) url.Values {
	params.Set("format", "json")
	params.Set("formatversion", "2")
	params.Set("utf8", "1")
	if c.assert != "" {
		params.Set("assert", string(c.assert))
		params.Set("assertuser", c.creds.assertUser())
	}
	return params
}

func (c *Client) getRaw(ctx context.Context, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+c.decorate(params).Encode(), nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postForm(ctx context.Context, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(c.decorate(form).Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &ServerError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ServerError{Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &ServerError{Status: resp.StatusCode}
	}

	var envelope struct {
		Error *struct {
			Code string `json:"code"`
			Info string `json:"info"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return &ClientError{Code: envelope.Error.Code, Info: envelope.Error.Info}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ServerError{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// ParseTitle splits a pretty-printed title like "Category:Foo" into a
// title.Title using the session's namespace table; an unrecognized or
// absent prefix is treated as the main namespace.
func (c *Client) ParseTitle(raw string) title.Title {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()

	if i := strings.IndexByte(raw, ':'); i > 0 {
		prefix := raw[:i]
		if id, ok := c.nsByName[strings.ToLower(prefix)]; ok {
			return title.Title{NS: id, Base: raw[i+1:]}
		}
	}
	return title.Title{NS: 0, Base: raw}
}

// botFlagEnabled reports whether the site profile advertised a bot flag,
// so Edit knows whether to tag bot=1.
func (c *Client) botFlagEnabled() bool { return c.botFlag }

// Lock acquires the coarse API lock bracketing one logical batch of
// requests (e.g. one evaluator run, or one guardrail-check-then-edit
// sequence), so concurrently scheduled tasks never interleave requests on
// this Client.
func (c *Client) Lock() { c.mu.Lock() }

// Unlock releases the coarse API lock.
func (c *Client) Unlock() { c.mu.Unlock() }
