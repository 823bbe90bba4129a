package agent

import (
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config is an immutable snapshot consumed by the value serializer, the
// interception controller, and the transport controller. It is built once
// at startup (LoadConfig) and never mutated afterward.
type Config struct {
	APIKey      string
	BackendURL  string
	Environment string
	AgentID     string
	Hostname    string

	SamplingRate float64

	MaxCaptureDepth    int
	MaxStringLength    int
	MaxCollectionSize  int
	IncludePatterns    []string
	ExcludePatterns    []string

	Debug bool

	ReleaseContext *ReleaseContext

	// rngMu guards rng: *rand.Rand is not safe for concurrent use, and
	// ShouldSample is called synchronously from arbitrary application
	// goroutines via the interceptor's onException path.
	rngMu sync.Mutex
	rng   *rand.Rand
}

const (
	defaultMaxCaptureDepth   = 10
	defaultMaxStringLength   = 1000
	defaultMaxCollectionSize = 100
	defaultSamplingRate      = 1.0
)

// configKeys enumerates, per logical setting, the three lookup keys in
// override order: agent-argument key, "process property" key (the Go
// stand-in for aivory.* process properties — see SPEC_FULL.md §4.G's
// config-surface note), and environment-variable key.
type configKeys struct {
	arg      string
	property string
	env      string
}

var keyTable = map[string]configKeys{
	"api_key":          {"apikey", "aivory.api.key", "AIVORY_API_KEY"},
	"backend_url":      {"backendurl", "aivory.backend.url", "AIVORY_BACKEND_URL"},
	"environment":      {"environment", "aivory.environment", "AIVORY_ENVIRONMENT"},
	"sampling_rate":    {"samplingrate", "aivory.sampling.rate", "AIVORY_SAMPLING_RATE"},
	"max_depth":        {"maxdepth", "aivory.capture.maxDepth", "AIVORY_MAX_DEPTH"},
	"max_string":       {"", "aivory.capture.maxStringLength", "AIVORY_MAX_STRING_LENGTH"},
	"max_collection":   {"", "aivory.capture.maxCollectionSize", "AIVORY_MAX_COLLECTION_SIZE"},
	"include":          {"include", "aivory.include", "AIVORY_INCLUDE"},
	"exclude":          {"exclude", "aivory.exclude", "AIVORY_EXCLUDE"},
	"debug":            {"debug", "aivory.debug", "AIVORY_DEBUG"},
}

// resolve applies the three-channel override chain (args < properties <
// env, later wins) for one logical setting.
func resolve(args map[string]string, props map[string]string, keys configKeys) (string, bool) {
	value, ok := "", false
	if keys.arg != "" {
		if v, exists := args[keys.arg]; exists && v != "" {
			value, ok = v, true
		}
	}
	if keys.property != "" {
		if v, exists := props[keys.property]; exists && v != "" {
			value, ok = v, true
		}
	}
	if keys.env != "" {
		if v := os.Getenv(keys.env); v != "" {
			value, ok = v, true
		}
	}
	return value, ok
}

// parseArgs splits the comma-separated "k=v,k2=v2" agent-argument string
// spec.md §6 describes as the first configuration channel.
func parseArgs(raw string) map[string]string {
	out := make(map[string]string)
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return out
}

// LoadConfig builds a Config from the three-channel configuration surface
// in spec.md §6. rawArgs is the comma-separated agent-argument string;
// properties is the Go stand-in for process properties (aivory.*); the
// environment channel is read directly from the process environment.
func LoadConfig(rawArgs string, properties map[string]string) *Config {
	args := parseArgs(rawArgs)
	if properties == nil {
		properties = map[string]string{}
	}

	cfg := &Config{
		MaxCaptureDepth:   defaultMaxCaptureDepth,
		MaxStringLength:   defaultMaxStringLength,
		MaxCollectionSize: defaultMaxCollectionSize,
		SamplingRate:      defaultSamplingRate,
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if v, ok := resolve(args, properties, keyTable["api_key"]); ok {
		cfg.APIKey = v
	}
	if v, ok := resolve(args, properties, keyTable["backend_url"]); ok {
		cfg.BackendURL = v
	}
	if v, ok := resolve(args, properties, keyTable["environment"]); ok {
		cfg.Environment = v
	} else if v, ok := resolve(args, properties, configKeys{"env", "", ""}); ok {
		cfg.Environment = v
	}
	if v, ok := resolve(args, properties, keyTable["sampling_rate"]); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SamplingRate = f
		}
	}
	if v, ok := resolve(args, properties, keyTable["max_depth"]); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxCaptureDepth = n
		}
	}
	if v, ok := resolve(args, properties, keyTable["max_string"]); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxStringLength = n
		}
	}
	if v, ok := resolve(args, properties, keyTable["max_collection"]); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxCollectionSize = n
		}
	}
	if v, ok := resolve(args, properties, keyTable["include"]); ok {
		cfg.IncludePatterns = splitPatterns(v)
	}
	if v, ok := resolve(args, properties, keyTable["exclude"]); ok {
		cfg.ExcludePatterns = splitPatterns(v)
	}
	if v, ok := resolve(args, properties, keyTable["debug"]); ok {
		cfg.Debug = v == "true" || v == "1"
	}

	cfg.ReleaseContext = resolveReleaseContext(args, properties)

	if cfg.AgentID == "" {
		cfg.AgentID = newAgentID()
	}
	if cfg.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			cfg.Hostname = h
		}
	}

	return cfg
}

// splitPatterns parses the ";"-separated include/exclude pattern list from
// spec.md §6 ("*" or "prefix.*").
func splitPatterns(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ";") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ShouldSample implements spec.md §4.E step 4.b exactly: true when
// sampling_rate >= 1, false when <= 0, else true with probability
// sampling_rate drawn per call.
func (c *Config) ShouldSample() bool {
	if c.SamplingRate >= 1 {
		return true
	}
	if c.SamplingRate <= 0 {
		return false
	}
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.rng.Float64() < c.SamplingRate
}

// resolveEndpoint builds the full endpoint URL from a base endpoint and a
// path, exactly mirroring tracekit/config.go's resolveEndpoint — the
// bare-host vs. full-URL vs. trailing-slash disambiguation is identical in
// shape regardless of what protocol (OTLP vs. duplex websocket) sits behind
// it.
func resolveEndpoint(endpoint, path string, useSSL bool) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") ||
		strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://") {
		endpoint = strings.TrimSuffix(endpoint, "/")

		trimmed := endpoint
		for _, scheme := range []string{"https://", "http://", "wss://", "ws://"} {
			trimmed = strings.TrimPrefix(trimmed, scheme)
		}

		if strings.Contains(trimmed, "/") {
			base := extractBaseURL(endpoint)
			if path == "" {
				return base
			}
			return base + path
		}

		return endpoint + path
	}

	scheme := "wss://"
	if !useSSL {
		scheme = "ws://"
	}

	endpoint = strings.TrimSuffix(endpoint, "/")
	return scheme + endpoint + path
}

// extractBaseURL extracts scheme+host from a full URL, same shape as
// tracekit/config.go's extractBaseURL.
func extractBaseURL(fullURL string) string {
	var scheme string
	remaining := fullURL
	for _, s := range []string{"https://", "http://", "wss://", "ws://"} {
		if strings.HasPrefix(fullURL, s) {
			scheme = s
			remaining = strings.TrimPrefix(fullURL, s)
			break
		}
	}
	if scheme == "" {
		return fullURL
	}

	if idx := strings.Index(remaining, "/"); idx != -1 {
		return scheme + remaining[:idx]
	}
	return scheme + remaining
}
