package publish

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/Seann-Moser/socialcast/oauth/platform"
)

var _ Publisher = &Instagram{}

// Instagram publishes single image posts on the linked business account via the
// two step container flow.
type Instagram struct {
	tokens TokenSource
	call   *platform.Caller
	graph  string
}

func NewInstagram(tokens TokenSource, graphBase string, opts ...platform.Option) *Instagram {
	return &Instagram{
		tokens: tokens,
		call:   platform.NewCaller(platform.Instagram, single(opts)...),
		graph:  strings.TrimRight(graphBase, "/"),
	}
}

func (i *Instagram) Platform() platform.Platform { return platform.Instagram }

func (i *Instagram) Publish(ctx context.Context, userID string, c Content) (*Result, error) {
	if c.ImageURL == "" {
		return nil, &ValidationError{Platform: platform.Instagram, Reason: "instagram requires an image"}
	}
	lease, err := i.tokens.Lease(ctx, userID, platform.Instagram)
	if err != nil {
		return nil, err
	}
	igID := lease.MemberID
	if igID == "" {
		return nil, &PublishError{Platform: platform.Instagram, Body: "instagram business account id missing; reconnect the account"}
	}

	var container struct {
		ID string `json:"id"`
	}
	form := url.Values{
		"image_url":    {c.ImageURL},
		"caption":      {c.Text},
		"access_token": {lease.AccessToken},
	}
	if err := i.call.Do(ctx, platform.NewFormRequest(i.graph+"/"+igID+"/media", form), &container); err != nil {
		return nil, asPublishError(err)
	}
	if container.ID == "" {
		return nil, &PublishError{Platform: platform.Instagram, StatusCode: http.StatusOK, Body: "media container response has no id"}
	}

	var published struct {
		ID string `json:"id"`
	}
	form = url.Values{"creation_id": {container.ID}, "access_token": {lease.AccessToken}}
	if err := i.call.Do(ctx, platform.NewFormRequest(i.graph+"/"+igID+"/media_publish", form), &published); err != nil {
		return nil, asPublishError(err)
	}
	if published.ID == "" {
		return nil, &PublishError{Platform: platform.Instagram, StatusCode: http.StatusOK, Body: "publish response has no media id"}
	}

	return &Result{
		Success:  true,
		PostID:   published.ID,
		Platform: platform.Instagram,
		URL:      i.permalink(ctx, published.ID, lease.AccessToken),
	}, nil
}

// permalink asks the graph for the public url and falls back to the media id.
func (i *Instagram) permalink(ctx context.Context, mediaID, token string) string {
	var media struct {
		Permalink string `json:"permalink"`
	}
	q := url.Values{"fields": {"permalink"}, "access_token": {token}}
	if err := i.call.Do(ctx, platform.NewGetRequest(i.graph+"/"+mediaID, q, ""), &media); err != nil || media.Permalink == "" {
		if err != nil {
			i.call.Logger().Debug("instagram permalink lookup failed", "media_id", mediaID, "error", err)
		}
		return "https://www.instagram.com/p/" + mediaID
	}
	return media.Permalink
}
