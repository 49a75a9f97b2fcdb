package urlutil

import "testing"

func TestLoginAndCallbackURL(t *testing.T) {
	if got := LoginURL("https://gw.example.com/", "twitch"); got != "https://gw.example.com/twitch/login" {
		t.Errorf("LoginURL() = %v", got)
	}
	if got := CallbackURL("https://gw.example.com", "bungie"); got != "https://gw.example.com/bungie/validate" {
		t.Errorf("CallbackURL() = %v", got)
	}
}

func TestChainRedirectURL(t *testing.T) {
	got := ChainRedirectURL("https://gw.example.com", "discord", "https://gw.example.com/twitch/login?redirect=https%3A%2F%2Fexample.com%2Fprofile")
	want := "https://gw.example.com/discord/login?redirect=https%3A%2F%2Fgw.example.com%2Ftwitch%2Flogin%3Fredirect%3Dhttps%253A%252F%252Fexample.com%252Fprofile"
	if got != want {
		t.Errorf("ChainRedirectURL() = %v, want %v", got, want)
	}
}

func TestRaidReportURL(t *testing.T) {
	tests := []struct {
		platform string
		id       string
		want     string
	}{
		{"pc", "4611686018467284386", "https://raid.report/pc/4611686018467284386"},
		{"xb", "4611686018429681910", "https://raid.report/xb/4611686018429681910"},
		{"none", "1", "https://raid.report/none/1"},
	}

	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			if got := RaidReportURL(tt.platform, tt.id); got != tt.want {
				t.Errorf("RaidReportURL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSanitizeRedirect(t *testing.T) {
	allowed := []string{"example.com", "gw.example.com:8443"}
	fallback := "https://example.com"

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", fallback},
		{"allowed host", "https://example.com/profile?tab=links", "https://example.com/profile?tab=links"},
		{"allowed host with port", "https://gw.example.com:8443/twitch/login", "https://gw.example.com:8443/twitch/login"},
		{"host matches without port", "http://example.com:3000/x", "http://example.com:3000/x"},
		{"relative path", "/profile", "https://example.com/profile"},
		{"protocol relative", "//evil.example/x", fallback},
		{"backslash trick", `/\evil.example`, fallback},
		{"relative without slash", "profile", fallback},
		{"foreign host", "https://evil.example/x", fallback},
		{"javascript scheme", "javascript:alert(1)", fallback},
		{"subdomain is not allowed", "https://a.example.com/", fallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeRedirect(tt.raw, allowed, fallback); got != tt.want {
				t.Errorf("SanitizeRedirect(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestHostOf(t *testing.T) {
	if got := HostOf("https://Example.com:8080/path"); got != "example.com:8080" {
		t.Errorf("HostOf() = %v", got)
	}
	if got := HostOf("::bad"); got != "" {
		t.Errorf("HostOf() = %v, want empty", got)
	}
}
