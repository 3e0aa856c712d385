package publish

import (
	"context"
	"net/http"
	"strings"

	"github.com/Seann-Moser/socialcast/oauth/platform"
)

var _ Publisher = &Twitter{}

// Twitter posts tweets through the v2 API.
type Twitter struct {
	tokens  TokenSource
	call    *platform.Caller
	apiBase string
}

func NewTwitter(tokens TokenSource, apiBase string, opts ...platform.Option) *Twitter {
	return &Twitter{
		tokens:  tokens,
		call:    platform.NewCaller(platform.Twitter, single(opts)...),
		apiBase: strings.TrimRight(apiBase, "/"),
	}
}

func (t *Twitter) Platform() platform.Platform { return platform.Twitter }

// Publish posts the text. Media upload needs the v1.1 endpoint with OAuth 1.0a user
// context, so an image URL is not attached.
func (t *Twitter) Publish(ctx context.Context, userID string, c Content) (*Result, error) {
	lease, err := t.tokens.Lease(ctx, userID, platform.Twitter)
	if err != nil {
		return nil, err
	}
	if c.ImageURL != "" {
		t.call.Logger().Info("image not attached to tweet", "user_id", userID)
	}
	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	req := platform.NewJSONRequest(http.MethodPost, t.apiBase+"/2/tweets", lease.AccessToken, map[string]string{"text": c.Text}, nil)
	if err := t.call.Do(ctx, req, &resp); err != nil {
		return nil, asPublishError(err)
	}
	if resp.Data.ID == "" {
		return nil, &PublishError{Platform: platform.Twitter, StatusCode: http.StatusOK, Body: "response has no tweet id"}
	}
	return &Result{
		Success:  true,
		PostID:   resp.Data.ID,
		Platform: platform.Twitter,
		URL:      "https://twitter.com/i/web/status/" + resp.Data.ID,
	}, nil
}
