package agent

import "testing"

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		path     string
		useSSL   bool
		want     string
	}{
		{
			name:     "just host with SSL",
			endpoint: "agent.aivory.dev",
			path:     "/v1/stream",
			useSSL:   true,
			want:     "wss://agent.aivory.dev/v1/stream",
		},
		{
			name:     "just host without SSL",
			endpoint: "localhost:8081",
			path:     "/v1/stream",
			useSSL:   false,
			want:     "ws://localhost:8081/v1/stream",
		},
		{
			name:     "just host with trailing slash",
			endpoint: "agent.aivory.dev/",
			path:     "/v1/stream",
			useSSL:   true,
			want:     "wss://agent.aivory.dev/v1/stream",
		},
		{
			name:     "ws scheme with host only",
			endpoint: "ws://localhost:8081",
			path:     "/v1/stream",
			useSSL:   true, // ignored once a scheme is present
			want:     "ws://localhost:8081/v1/stream",
		},
		{
			name:     "wss scheme with host only",
			endpoint: "wss://agent.aivory.dev",
			path:     "/v1/stream",
			useSSL:   false, // ignored once a scheme is present
			want:     "wss://agent.aivory.dev/v1/stream",
		},
		{
			name:     "full URL with existing path is re-based",
			endpoint: "https://agent.aivory.dev/old/path",
			path:     "/v1/stream",
			useSSL:   true,
			want:     "https://agent.aivory.dev/v1/stream",
		},
		{
			name:     "empty path returns base only",
			endpoint: "https://agent.aivory.dev/old/path",
			path:     "",
			useSSL:   true,
			want:     "https://agent.aivory.dev",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveEndpoint(tt.endpoint, tt.path, tt.useSSL)
			if got != tt.want {
				t.Errorf("resolveEndpoint(%q, %q, %v) = %q, want %q", tt.endpoint, tt.path, tt.useSSL, got, tt.want)
			}
		})
	}
}

func TestShouldSample(t *testing.T) {
	cfg := LoadConfig("", nil)

	cfg.SamplingRate = 1
	if !cfg.ShouldSample() {
		t.Fatal("sampling rate 1 must always sample")
	}

	cfg.SamplingRate = 0
	if cfg.ShouldSample() {
		t.Fatal("sampling rate 0 must never sample")
	}

	cfg.SamplingRate = 2 // above 1 still always samples
	if !cfg.ShouldSample() {
		t.Fatal("sampling rate above 1 must always sample")
	}
}

func TestLoadConfigThreeChannelPrecedence(t *testing.T) {
	t.Setenv("AIVORY_ENVIRONMENT", "from-env")

	cfg := LoadConfig("environment=from-arg", map[string]string{"aivory.environment": "from-property"})

	// env wins over property wins over arg, per spec.md §6.
	if cfg.Environment != "from-env" {
		t.Fatalf("expected env channel to win, got %q", cfg.Environment)
	}
}

func TestSplitPatterns(t *testing.T) {
	got := splitPatterns("com.example.*;com.other.Thing; ;")
	want := []string{"com.example.*", "com.other.Thing"}
	if len(got) != len(want) {
		t.Fatalf("splitPatterns returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitPatterns()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
