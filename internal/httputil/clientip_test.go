package httputil

import (
	"net/http"
	"testing"
)

func request(remoteAddr, xff, xri string) *http.Request {
	r := &http.Request{RemoteAddr: remoteAddr, Header: http.Header{}}
	if xff != "" {
		r.Header.Set("X-Forwarded-For", xff)
	}
	if xri != "" {
		r.Header.Set("X-Real-IP", xri)
	}
	return r
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		trustProxy bool
		want       string
	}{
		{name: "remote addr with port", remoteAddr: "192.168.1.1:12345", want: "192.168.1.1"},
		{name: "ipv6 remote addr", remoteAddr: "[::1]:12345", want: "::1"},
		{name: "remote addr without port", remoteAddr: "192.168.1.1", want: "192.168.1.1"},
		{
			name:       "trusted XFF single entry",
			remoteAddr: "10.0.0.1:1234", xff: "1.2.3.4", trustProxy: true,
			want: "1.2.3.4",
		},
		{
			name:       "trusted XFF chain takes leftmost",
			remoteAddr: "10.0.0.3:1234", xff: "1.2.3.4, 10.0.0.1, 10.0.0.2", trustProxy: true,
			want: "1.2.3.4",
		},
		{
			name:       "trusted X-Real-IP fallback",
			remoteAddr: "10.0.0.1:1234", xri: "5.6.7.8", trustProxy: true,
			want: "5.6.7.8",
		},
		{
			name:       "XFF beats X-Real-IP",
			remoteAddr: "10.0.0.1:1234", xff: "1.2.3.4", xri: "5.6.7.8", trustProxy: true,
			want: "1.2.3.4",
		},
		{
			name:       "trusted but no headers",
			remoteAddr: "10.0.0.1:1234", trustProxy: true,
			want: "10.0.0.1",
		},
		{
			name:       "untrusted ignores spoofed headers",
			remoteAddr: "10.0.0.1:1234", xff: "1.2.3.4", xri: "5.6.7.8",
			want: "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClientIP(request(tt.remoteAddr, tt.xff, tt.xri), tt.trustProxy)
			if got != tt.want {
				t.Errorf("ClientIP(trustProxy=%v) = %q, want %q", tt.trustProxy, got, tt.want)
			}
		})
	}
}
