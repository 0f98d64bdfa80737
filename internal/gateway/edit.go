package gateway

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/url"

	"github.com/milkydeferwm/pagelist-bot/internal/title"
)

// EditResult reports what action=edit did.
type EditResult struct {
	NoChange bool
}

// Edit submits action=edit for t with the given wikitext and summary,
// tagging nocreate=1 (the Page Writer never creates a page, only updates
// an existing one), bot=1 when the site profile advertised a bot flag, and
// attaching an md5 of the submitted text so the API rejects the edit if the
// text it received does not match what was sent.
func (c *Client) Edit(ctx context.Context, t title.Title, text, summary string) (EditResult, error) {
	token, err := c.requireSession()
	if err != nil {
		return EditResult{}, err
	}

	sum := md5.Sum([]byte(text))
	form := url.Values{
		"action":   {"edit"},
		"title":    {c.fullPretty(t)},
		"text":     {text},
		"summary":  {summary},
		"md5":      {hex.EncodeToString(sum[:])},
		"nocreate": {"1"},
		"token":    {token},
	}
	if c.botFlagEnabled() {
		form.Set("bot", "1")
	}

	var resp struct {
		Edit struct {
			Result   string `json:"result"`
			NoChange *bool  `json:"nochange"`
		} `json:"edit"`
	}
	if err := c.postForm(ctx, form, &resp); err != nil {
		return EditResult{}, err
	}
	if resp.Edit.Result != "Success" {
		return EditResult{}, &ClientError{Code: "edit-failed", Info: resp.Edit.Result}
	}
	return EditResult{NoChange: resp.Edit.NoChange != nil && *resp.Edit.NoChange}, nil
}
