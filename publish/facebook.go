package publish

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/Seann-Moser/socialcast/oauth/platform"
)

var _ Publisher = &Facebook{}

// Facebook posts to the linked page with its page token.
type Facebook struct {
	tokens TokenSource
	call   *platform.Caller
	graph  string
}

func NewFacebook(tokens TokenSource, graphBase string, opts ...platform.Option) *Facebook {
	return &Facebook{
		tokens: tokens,
		call:   platform.NewCaller(platform.Facebook, single(opts)...),
		graph:  strings.TrimRight(graphBase, "/"),
	}
}

func (f *Facebook) Platform() platform.Platform { return platform.Facebook }

// Publish posts a photo when an image url is set and a feed post otherwise.
func (f *Facebook) Publish(ctx context.Context, userID string, c Content) (*Result, error) {
	lease, err := f.tokens.Lease(ctx, userID, platform.Facebook)
	if err != nil {
		return nil, err
	}
	pageID := lease.MemberID
	if pageID == "" {
		return nil, &PublishError{Platform: platform.Facebook, Body: "facebook page id missing; reconnect the account"}
	}

	form := url.Values{"access_token": {lease.AccessToken}, "message": {c.Text}}
	endpoint := f.graph + "/" + pageID + "/feed"
	if c.ImageURL != "" {
		endpoint = f.graph + "/" + pageID + "/photos"
		form.Set("url", c.ImageURL)
	}

	var resp struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := f.call.Do(ctx, platform.NewFormRequest(endpoint, form), &resp); err != nil {
		return nil, asPublishError(err)
	}
	postID := resp.PostID
	if postID == "" {
		postID = resp.ID
	}
	if postID == "" {
		return nil, &PublishError{Platform: platform.Facebook, StatusCode: http.StatusOK, Body: "response has no post id"}
	}
	suffix := postID
	if i := strings.LastIndex(postID, "_"); i >= 0 {
		suffix = postID[i+1:]
	}
	return &Result{
		Success:  true,
		PostID:   postID,
		Platform: platform.Facebook,
		URL:      "https://www.facebook.com/" + pageID + "/posts/" + suffix,
	}, nil
}
