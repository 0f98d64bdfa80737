package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milkydeferwm/pagelist-bot/internal/logging"
	"github.com/milkydeferwm/pagelist-bot/internal/title"
)

func noopLogger() logging.Logger { return logging.New(discard{}, 100) }

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// fakeWiki serves just enough of the Action API surface for Login,
// NamespaceName, ParseTitle and Edit to exercise against a real HTTP
// round trip instead of a mocked Client method.
func fakeWiki(t *testing.T) (*httptest.Server, *[]url.Values) {
	t.Helper()
	var seen []url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		seen = append(seen, r.Form)

		switch {
		case r.Form.Get("meta") == "tokens" && r.Form.Get("type") == "login":
			writeJSON(w, map[string]any{
				"query": map[string]any{"tokens": map[string]any{"logintoken": "LOGINTOKEN"}},
			})
		case r.Form.Get("action") == "login":
			writeJSON(w, map[string]any{"login": map[string]any{"result": "Success"}})
		case r.Form.Get("meta") == "tokens" && r.Form.Get("type") == "csrf":
			writeJSON(w, map[string]any{
				"query": map[string]any{"tokens": map[string]any{"csrftoken": "CSRFTOKEN"}},
			})
		case r.Form.Get("meta") == "siteinfo":
			writeJSON(w, map[string]any{
				"query": map[string]any{
					"namespaces": map[string]any{
						"0": map[string]any{"id": 0, "name": ""},
						"14": map[string]any{"id": 14, "name": "Category"},
					},
				},
			})
		case r.Form.Get("action") == "edit":
			writeJSON(w, map[string]any{"edit": map[string]any{"result": "Success"}})
		default:
			t.Fatalf("unexpected request: %v", r.Form)
		}
	}))
	return srv, &seen
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, apiURL string) *Client {
	t.Helper()
	c, err := New(Config{
		APIURL:  apiURL,
		Assert:  "bot",
		BotFlag: true,
		Timeout: 5 * time.Second,
	}, Credentials{Username: "Bot@plbot", Password: "secret"}, noopLogger())
	require.NoError(t, err)
	return c
}

func TestLoginEstablishesSessionAndNamespaceTable(t *testing.T) {
	srv, _ := fakeWiki(t)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.Login(context.Background()))

	assert.Equal(t, "Category", c.NamespaceName(14))
	assert.Equal(t, "", c.NamespaceName(0))
}

func TestOperationsRequireSessionBeforeLogin(t *testing.T) {
	srv, _ := fakeWiki(t)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Edit(context.Background(), title.Title{Base: "Foo"}, "text", "summary")
	require.Error(t, err)
	assert.IsType(t, NoSessionError{}, err)
}

func TestDecorateStampsAssertAndEnvelopeParams(t *testing.T) {
	srv, seen := fakeWiki(t)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.Login(context.Background()))

	last := (*seen)[len(*seen)-1]
	assert.Equal(t, "json", last.Get("format"))
	assert.Equal(t, "2", last.Get("formatversion"))
	assert.Equal(t, "1", last.Get("utf8"))
	assert.Equal(t, "bot", last.Get("assert"))
	assert.Equal(t, "Bot", last.Get("assertuser"))
}

func TestEditTagsBotFlagAndMD5(t *testing.T) {
	srv, seen := fakeWiki(t)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.Login(context.Background()))

	res, err := c.Edit(context.Background(), title.Title{Base: "Sandbox"}, "hello", "Update query: 1 result")
	require.NoError(t, err)
	assert.False(t, res.NoChange)

	last := (*seen)[len(*seen)-1]
	assert.Equal(t, "1", last.Get("bot"))
	assert.Equal(t, "1", last.Get("nocreate"))
	assert.NotEmpty(t, last.Get("md5"))
}

func TestParseTitleResolvesKnownNamespacePrefix(t *testing.T) {
	srv, _ := fakeWiki(t)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.Login(context.Background()))

	got := c.ParseTitle("Category:Foo")
	assert.Equal(t, title.Title{NS: 14, Base: "Foo"}, got)

	got = c.ParseTitle("Unprefixed Page")
	assert.Equal(t, title.Title{NS: 0, Base: "Unprefixed Page"}, got)
}

func TestCredentialsAssertUserStripsBotPasswordSuffix(t *testing.T) {
	c := Credentials{Username: "Bot@plbot"}
	assert.Equal(t, "Bot", c.assertUser())

	c2 := Credentials{Username: "PlainUser"}
	assert.Equal(t, "PlainUser", c2.assertUser())
}

func TestRetryAfterMaxlagPolicyRetriesOn5xx(t *testing.T) {
	retry, err := retryAfterMaxlagPolicy(context.Background(), &http.Response{StatusCode: http.StatusServiceUnavailable}, nil)
	require.NoError(t, err)
	assert.True(t, retry)

	retry, err = retryAfterMaxlagPolicy(context.Background(), &http.Response{StatusCode: http.StatusOK}, nil)
	require.NoError(t, err)
	assert.False(t, retry)
}
