package auth

import "strings"

// ParseUserAgent derives device info from a raw User-Agent header using
// substring heuristics. Unrecognized or empty agents classify as unknown;
// parsing never fails.
func ParseUserAgent(ua string) DeviceInfo {
	lower := strings.ToLower(strings.TrimSpace(ua))
	if lower == "" {
		return DeviceInfo{Name: "Unknown device", Type: DeviceUnknown}
	}

	info := DeviceInfo{Type: DeviceDesktop}
	switch {
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		info.Type = DeviceTablet
	case strings.Contains(lower, "android") && !strings.Contains(lower, "mobile"):
		// Android without "Mobile" is the tablet form factor.
		info.Type = DeviceTablet
	case strings.Contains(lower, "mobi") || strings.Contains(lower, "iphone") || strings.Contains(lower, "android"):
		info.Type = DeviceMobile
	case strings.Contains(lower, "windows") || strings.Contains(lower, "macintosh") ||
		strings.Contains(lower, "x11") || strings.Contains(lower, "linux"):
		info.Type = DeviceDesktop
	default:
		info.Type = DeviceUnknown
	}

	switch {
	case strings.Contains(lower, "edg/") || strings.Contains(lower, "edge/"):
		info.Browser = "Edge"
	case strings.Contains(lower, "opr/") || strings.Contains(lower, "opera"):
		info.Browser = "Opera"
	case strings.Contains(lower, "chrome/") || strings.Contains(lower, "crios/"):
		info.Browser = "Chrome"
	case strings.Contains(lower, "firefox/") || strings.Contains(lower, "fxios/"):
		info.Browser = "Firefox"
	case strings.Contains(lower, "safari/"):
		info.Browser = "Safari"
	}

	switch {
	case strings.Contains(lower, "windows"):
		info.OS = "Windows"
	case strings.Contains(lower, "iphone") || strings.Contains(lower, "ipad"):
		info.OS = "iOS"
	case strings.Contains(lower, "mac os") || strings.Contains(lower, "macintosh"):
		info.OS = "macOS"
	case strings.Contains(lower, "android"):
		info.OS = "Android"
	case strings.Contains(lower, "linux"):
		info.OS = "Linux"
	}

	switch {
	case info.Browser != "" && info.OS != "":
		info.Name = info.Browser + " on " + info.OS
	case info.Browser != "":
		info.Name = info.Browser
	case info.OS != "":
		info.Name = info.OS
	default:
		info.Name = "Unknown device"
	}
	return info
}
