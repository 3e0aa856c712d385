package platform

import "strings"

// Descriptor is the static OAuth configuration of one platform. Descriptors are built from
// the environment and never persisted.
type Descriptor struct {
	AuthURL      string
	TokenURL     string
	Scopes       []string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// APIBaseURL is the REST root (api.twitter.com, api.linkedin.com).
	APIBaseURL string
	// GraphBaseURL is the versioned Graph API root used by Facebook and Instagram.
	GraphBaseURL string
}

// Configured reports whether client credentials are present.
func (d Descriptor) Configured() bool {
	return d.ClientID != "" && d.ClientSecret != "" && d.RedirectURL != ""
}

const graphVersion = "v18.0"

// Defaults returns the provider endpoints and scopes for p with no client credentials.
func Defaults(p Platform) Descriptor {
	switch p {
	case Twitter:
		return Descriptor{
			AuthURL:    "https://twitter.com/i/oauth2/authorize",
			TokenURL:   "https://api.twitter.com/2/oauth2/token",
			Scopes:     []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
			APIBaseURL: "https://api.twitter.com",
		}
	case LinkedIn:
		return Descriptor{
			AuthURL:    "https://www.linkedin.com/oauth/v2/authorization",
			TokenURL:   "https://www.linkedin.com/oauth/v2/accessToken",
			Scopes:     []string{"r_liteprofile", "w_member_social"},
			APIBaseURL: "https://api.linkedin.com",
		}
	case Facebook:
		return Descriptor{
			AuthURL:      "https://www.facebook.com/" + graphVersion + "/dialog/oauth",
			TokenURL:     "https://graph.facebook.com/" + graphVersion + "/oauth/access_token",
			Scopes:       []string{"pages_manage_posts", "pages_show_list", "pages_read_engagement"},
			GraphBaseURL: "https://graph.facebook.com/" + graphVersion,
		}
	case Instagram:
		return Descriptor{
			AuthURL:      "https://www.facebook.com/" + graphVersion + "/dialog/oauth",
			TokenURL:     "https://graph.facebook.com/" + graphVersion + "/oauth/access_token",
			Scopes:       []string{"instagram_basic", "instagram_content_publish", "pages_show_list", "pages_read_engagement"},
			GraphBaseURL: "https://graph.facebook.com/" + graphVersion,
		}
	}
	return Descriptor{}
}

func trimBase(u string) string { return strings.TrimRight(u, "/") }
