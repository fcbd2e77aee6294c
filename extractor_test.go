package rollcall

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{
			name:       "remote addr with port",
			remoteAddr: "203.0.113.9:52100",
			want:       "203.0.113.9",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "203.0.113.9",
			want:       "203.0.113.9",
		},
		{
			name:       "forwarded header ignored when untrusted",
			remoteAddr: "10.0.0.2:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.4"},
			want:       "10.0.0.2",
		},
		{
			name:       "left-most forwarded address when trusted",
			remoteAddr: "10.0.0.2:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.4, 10.0.0.1"},
			trustProxy: true,
			want:       "198.51.100.4",
		},
		{
			name:       "falls through garbage to next header",
			remoteAddr: "10.0.0.2:80",
			headers: map[string]string{
				"X-Forwarded-For": "not-an-ip",
				"X-Real-IP":       "2001:db8::1",
			},
			trustProxy: true,
			want:       "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/redeem", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			if got := ClientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractDeviceInfoDeviceType(t *testing.T) {
	tests := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", "bot"},
		{"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1", "tablet"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1", "mobile"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36", "desktop"},
	}

	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("User-Agent", tt.ua)

		info := ExtractDeviceInfo(r, false)
		if info.DeviceType != tt.want {
			t.Errorf("DeviceType for %q = %q, want %q", tt.ua, info.DeviceType, tt.want)
		}
		if info.UserAgent != tt.ua {
			t.Errorf("UserAgent = %q, want %q", info.UserAgent, tt.ua)
		}
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"192.168.0.10", true},
		{"169.254.1.1", true},
		{"::1", true},
		{"8.8.8.8", false},
		{"2001:4860:4860::8888", false},
		{"garbage", false},
	}

	for _, tt := range tests {
		if got := IsPrivateIP(tt.ip); got != tt.want {
			t.Errorf("IsPrivateIP(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}
