package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"

	"github.com/Seann-Moser/socialcast/oauth/platform"
)

const (
	maxImageBytes       = 10 << 20
	linkedInImageRecipe = "urn:li:digitalmediaRecipe:feedshare-image"
	linkedInUploadKey   = "com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"
)

var _ Publisher = &LinkedIn{}

// LinkedIn posts UGC shares authored by the linked member, optionally with one image.
type LinkedIn struct {
	tokens  TokenSource
	call    *platform.Caller
	apiBase string
	// imageHost vets the image url host before download.
	imageHost func(ctx context.Context, host string) error
}

func NewLinkedIn(tokens TokenSource, apiBase string, opts ...platform.Option) *LinkedIn {
	return &LinkedIn{
		tokens:    tokens,
		call:      platform.NewCaller(platform.LinkedIn, single(opts)...),
		apiBase:   strings.TrimRight(apiBase, "/"),
		imageHost: publicHost,
	}
}

func (l *LinkedIn) Platform() platform.Platform { return platform.LinkedIn }

type ugcMedia struct {
	Status string `json:"status"`
	Media  string `json:"media"`
}

type ugcShareContent struct {
	ShareCommentary struct {
		Text string `json:"text"`
	} `json:"shareCommentary"`
	ShareMediaCategory string     `json:"shareMediaCategory"`
	Media              []ugcMedia `json:"media,omitempty"`
}

type ugcPost struct {
	Author          string                     `json:"author"`
	LifecycleState  string                     `json:"lifecycleState"`
	SpecificContent map[string]ugcShareContent `json:"specificContent"`
	Visibility      map[string]string          `json:"visibility"`
}

func (l *LinkedIn) Publish(ctx context.Context, userID string, c Content) (*Result, error) {
	lease, err := l.tokens.Lease(ctx, userID, platform.LinkedIn)
	if err != nil {
		return nil, err
	}
	if lease.MemberID == "" {
		return nil, &PublishError{Platform: platform.LinkedIn, Body: "linkedin member id missing; reconnect the account"}
	}
	author := "urn:li:person:" + lease.MemberID

	share := ugcShareContent{ShareMediaCategory: "NONE"}
	share.ShareCommentary.Text = c.Text
	if c.ImageURL != "" {
		asset, err := l.uploadImage(ctx, lease.AccessToken, author, c.ImageURL)
		if err != nil {
			return nil, err
		}
		share.ShareMediaCategory = "IMAGE"
		share.Media = []ugcMedia{{Status: "READY", Media: asset}}
	}

	body := ugcPost{
		Author:          author,
		LifecycleState:  "PUBLISHED",
		SpecificContent: map[string]ugcShareContent{"com.linkedin.ugc.ShareContent": share},
		Visibility:      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}
	header := http.Header{"X-Restli-Protocol-Version": {"2.0.0"}}
	var resp struct {
		ID string `json:"id"`
	}
	req := platform.NewJSONRequest(http.MethodPost, l.apiBase+"/v2/ugcPosts", lease.AccessToken, body, header)
	if err := l.call.Do(ctx, req, &resp); err != nil {
		return nil, asPublishError(err)
	}
	if resp.ID == "" {
		return nil, &PublishError{Platform: platform.LinkedIn, StatusCode: http.StatusCreated, Body: "response has no post id"}
	}
	return &Result{
		Success:  true,
		PostID:   resp.ID,
		Platform: platform.LinkedIn,
		URL:      "https://www.linkedin.com/feed/update/" + resp.ID,
	}, nil
}

// uploadImage registers an asset, copies the image bytes to the upload url and returns
// the asset urn.
func (l *LinkedIn) uploadImage(ctx context.Context, token, owner, imageURL string) (string, error) {
	u, err := url.Parse(imageURL)
	if err != nil {
		return "", &ValidationError{Platform: platform.LinkedIn, Reason: "image url is not valid"}
	}
	if err := l.imageHost(ctx, u.Hostname()); err != nil {
		return "", err
	}
	register := map[string]any{
		"registerUploadRequest": map[string]any{
			"recipes": []string{linkedInImageRecipe},
			"owner":   owner,
			"serviceRelationships": []map[string]string{
				{"relationshipType": "OWNER", "identifier": "urn:li:userGeneratedContent"},
			},
		},
	}
	var reg struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	req := platform.NewJSONRequest(http.MethodPost, l.apiBase+"/v2/assets?action=registerUpload", token, register, nil)
	if err := l.call.Do(ctx, req, &reg); err != nil {
		return "", asPublishError(err)
	}
	uploadURL := reg.Value.UploadMechanism[linkedInUploadKey].UploadURL
	if uploadURL == "" || reg.Value.Asset == "" {
		return "", &PublishError{Platform: platform.LinkedIn, StatusCode: http.StatusOK, Body: "register upload response has no upload url"}
	}

	image, contentType, err := fetchImage(ctx, l.call.HTTPClient(), imageURL)
	if err != nil {
		return "", err
	}
	status, _, err := l.call.Raw(ctx, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(image))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Authorization", "Bearer "+token)
		r.Header.Set("Content-Type", contentType)
		return r, nil
	})
	if err != nil {
		return "", asPublishError(err)
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return "", &PublishError{Platform: platform.LinkedIn, StatusCode: status, Body: "unexpected image upload status"}
	}
	return reg.Value.Asset, nil
}

// publicHost rejects image hosts that resolve to non-public addresses.
func publicHost(ctx context.Context, host string) error {
	if host == "" || strings.EqualFold(host, "localhost") {
		return &ValidationError{Platform: platform.LinkedIn, Reason: "image host is not public"}
	}
	var addrs []netip.Addr
	if ip, err := netip.ParseAddr(host); err == nil {
		addrs = []netip.Addr{ip}
	} else {
		addrs, err = net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		if err != nil {
			return &ValidationError{Platform: platform.LinkedIn, Reason: fmt.Sprintf("image host lookup failed: %v", err)}
		}
	}
	for _, ip := range addrs {
		ip = ip.Unmap()
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return &ValidationError{Platform: platform.LinkedIn, Reason: "image host is not public"}
		}
	}
	return nil
}

// fetchImage downloads an image for re-upload.
func fetchImage(ctx context.Context, client *http.Client, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", &ValidationError{Platform: platform.LinkedIn, Reason: fmt.Sprintf("image download failed: %v", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", &ValidationError{Platform: platform.LinkedIn, Reason: fmt.Sprintf("image download returned %d", resp.StatusCode)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > maxImageBytes {
		return nil, "", &ValidationError{Platform: platform.LinkedIn, Reason: "image exceeds 10MB"}
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return data, ct, nil
}
