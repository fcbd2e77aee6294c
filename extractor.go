package rollcall

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/mssola/useragent"
)

// proxyHeaders are consulted in order when proxy headers are trusted.
var proxyHeaders = []string{"X-Forwarded-For", "X-Real-IP", "CF-Connecting-IP"}

// ExtractDeviceInfo extracts device information from an HTTP request.
// Proxy headers are only honoured when trustProxy is set; otherwise a client
// could claim any address.
func ExtractDeviceInfo(r *http.Request, trustProxy bool) DeviceInfo {
	ua := r.UserAgent()
	parsed := useragent.New(ua)

	browser, version := parsed.Browser()
	if version != "" {
		browser += " " + version
	}

	info := parsed.OSInfo()
	os := info.Name
	if info.Version != "" {
		os += " " + info.Version
	}

	return DeviceInfo{
		IP:         ClientIP(r, trustProxy),
		UserAgent:  ua,
		Browser:    browser,
		OS:         os,
		DeviceType: deviceType(parsed, ua),
	}
}

func deviceType(parsed *useragent.UserAgent, ua string) string {
	switch {
	case parsed.Bot():
		return "bot"
	case isTablet(ua):
		return "tablet"
	case parsed.Mobile():
		return "mobile"
	default:
		return "desktop"
	}
}

// ClientIP returns the client address of r. With trustProxy set, the first
// valid address found in the proxy headers wins; X-Forwarded-For contributes
// its left-most entry.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, header := range proxyHeaders {
			value := r.Header.Get(header)
			if value == "" {
				continue
			}
			first, _, _ := strings.Cut(value, ",")
			if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
				return addr.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}
	return host
}

// isTablet checks if the user agent indicates a tablet device.
func isTablet(ua string) bool {
	ua = strings.ToLower(ua)
	for _, keyword := range []string{"ipad", "tablet", "playbook", "silk"} {
		if strings.Contains(ua, keyword) {
			return true
		}
	}
	return false
}

// IsPrivateIP returns true if the IP is loopback, link-local or in a private
// range, none of which can be geolocated.
func IsPrivateIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast()
}
