package urlutil

import (
	"net/url"
	"strings"
)

// LoginURL builds a provider login entry URL.
// Returns a URL like: {publicURL}/{platform}/login
func LoginURL(publicURL, platform string) string {
	return strings.TrimRight(publicURL, "/") + "/" + url.PathEscape(platform) + "/login"
}

// CallbackURL builds the OAuth redirect_uri registered with a provider.
// Returns a URL like: {publicURL}/{platform}/validate
func CallbackURL(publicURL, platform string) string {
	return strings.TrimRight(publicURL, "/") + "/" + url.PathEscape(platform) + "/validate"
}

// ChainRedirectURL builds the anchor login URL that replays back to target once
// the anchor flow completes.
// Returns a URL like: {publicURL}/{anchor}/login?redirect={target}
func ChainRedirectURL(publicURL, anchor, target string) string {
	q := url.Values{}
	q.Set("redirect", target)
	return LoginURL(publicURL, anchor) + "?" + q.Encode()
}

// RaidReportURL builds a raid.report profile URL.
// Returns a URL like: https://raid.report/{platform}/{membershipID}
func RaidReportURL(platform, membershipID string) string {
	return "https://raid.report/" + url.PathEscape(platform) + "/" + url.PathEscape(membershipID)
}

// HostOf returns the lowercased host[:port] of rawURL, or "" if it has none
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// SanitizeRedirect returns raw when it is safe to send a browser to, otherwise
// fallback. Relative paths are resolved against fallback; absolute URLs must use
// http(s) and name a host in allowedHosts.
func SanitizeRedirect(raw string, allowedHosts []string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if !u.IsAbs() {
		// "//evil.example" parses as a relative URL with a host
		if u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
			return fallback
		}
		base, err := url.Parse(fallback)
		if err != nil || !base.IsAbs() {
			return fallback
		}
		return base.ResolveReference(u).String()
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fallback
	}

	host := strings.ToLower(u.Host)
	for _, allowed := range allowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if host == allowed || strings.ToLower(u.Hostname()) == allowed {
			return u.String()
		}
	}
	return fallback
}
