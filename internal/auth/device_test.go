package auth

import "testing"

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name    string
		ua      string
		devType string
		browser string
		os      string
	}{
		{
			name:    "chrome on windows",
			ua:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			devType: DeviceDesktop,
			browser: "Chrome",
			os:      "Windows",
		},
		{
			name:    "safari on iphone",
			ua:      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			devType: DeviceMobile,
			browser: "Safari",
			os:      "iOS",
		},
		{
			name:    "ipad",
			ua:      "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			devType: DeviceTablet,
			browser: "Safari",
			os:      "iOS",
		},
		{
			name:    "android phone",
			ua:      "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36",
			devType: DeviceMobile,
			browser: "Chrome",
			os:      "Android",
		},
		{
			name:    "android tablet without mobile token",
			ua:      "Mozilla/5.0 (Linux; Android 14; SM-X910) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			devType: DeviceTablet,
			browser: "Chrome",
			os:      "Android",
		},
		{
			name:    "firefox on linux",
			ua:      "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			devType: DeviceDesktop,
			browser: "Firefox",
			os:      "Linux",
		},
		{
			name:    "edge on windows",
			ua:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36 Edg/120.0",
			devType: DeviceDesktop,
			browser: "Edge",
			os:      "Windows",
		},
		{
			name:    "empty agent",
			ua:      "",
			devType: DeviceUnknown,
		},
		{
			name:    "unrecognized agent",
			ua:      "curl/8.4.0",
			devType: DeviceUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ParseUserAgent(tt.ua)
			if info.Type != tt.devType {
				t.Errorf("type = %q, want %q", info.Type, tt.devType)
			}
			if info.Browser != tt.browser {
				t.Errorf("browser = %q, want %q", info.Browser, tt.browser)
			}
			if info.OS != tt.os {
				t.Errorf("os = %q, want %q", info.OS, tt.os)
			}
			if info.Name == "" {
				t.Error("name is empty")
			}
		})
	}
}

func TestParseUserAgentNameFallback(t *testing.T) {
	if got := ParseUserAgent("").Name; got != "Unknown device" {
		t.Errorf("name = %q, want Unknown device", got)
	}
	if got := ParseUserAgent("curl/8.4.0").Name; got != "Unknown device" {
		t.Errorf("name = %q, want Unknown device", got)
	}
}
