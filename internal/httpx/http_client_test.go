package httpx

import (
	"testing"
	"time"
)

func TestDefaultTimeoutMatchesConfigDefault(t *testing.T) {
	if got := ExternalHTTPClient().Timeout; got != 90*time.Second {
		t.Fatalf("default timeout = %s, want 90s (external_http_timeout_seconds default)", got)
	}
}

func TestConfigureExternalHTTPClient(t *testing.T) {
	original := externalHTTPClient.Timeout
	t.Cleanup(func() { externalHTTPClient.Timeout = original })

	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{seconds: 0, want: defaultExternalHTTPTimeout},
		{seconds: -3, want: defaultExternalHTTPTimeout},
		{seconds: 5, want: 5 * time.Second},
		{seconds: 300, want: 5 * time.Minute},
	}
	for _, tt := range tests {
		got := ConfigureExternalHTTPClient(tt.seconds)
		if got != tt.want {
			t.Fatalf("ConfigureExternalHTTPClient(%d) = %s, want %s", tt.seconds, got, tt.want)
		}
		// LLM and Slack clients hold the pointer, so they see the change.
		if ExternalHTTPClient().Timeout != tt.want {
			t.Fatalf("shared client timeout = %s after configuring %d", ExternalHTTPClient().Timeout, tt.seconds)
		}
	}
}

func TestExternalHTTPClientIsShared(t *testing.T) {
	if ExternalHTTPClient() != ExternalHTTPClient() {
		t.Fatal("every caller must get the same client")
	}
}
