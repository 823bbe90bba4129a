package agent

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// redactedHeaders are stripped from captured request context, mirroring
// the teacher's extractGinRequestContext redaction list.
var redactedHeaders = map[string]struct{}{
	"Authorization": {},
	"Cookie":        {},
	"X-Api-Key":     {},
}

// httpRequestContext builds the additive ExceptionCapture.RequestContext
// map out of a standard *http.Request, shared by all recover-middleware
// adapters regardless of framework.
func httpRequestContext(r *http.Request) map[string]interface{} {
	ctx := map[string]interface{}{
		"method":      r.Method,
		"path":        r.URL.Path,
		"remote_addr": ExtractClientIP(r),
		"user_agent":  r.UserAgent(),
	}

	if len(r.URL.RawQuery) > 0 {
		params := make(map[string]string)
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}
		ctx["query_params"] = params
	}

	headers := make(map[string]string)
	for key, values := range r.Header {
		if _, redacted := redactedHeaders[http.CanonicalHeaderKey(key)]; redacted {
			headers[key] = "[REDACTED]"
			continue
		}
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}
	ctx["headers"] = headers

	return ctx
}

// ExtractClientIP extracts the client IP from X-Forwarded-For/X-Real-IP
// (proxied requests) falling back to RemoteAddr, carried over from the
// teacher's http.go verbatim since this logic is protocol-agnostic.
func ExtractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			clientIP := strings.TrimSpace(ips[0])
			if net.ParseIP(clientIP) != nil {
				return clientIP
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		xri = strings.TrimSpace(xri)
		if net.ParseIP(xri) != nil {
			return xri
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if net.ParseIP(ip) != nil {
		return ip
	}
	return ""
}

// recoveredError normalizes a recover()'d panic value into an error,
// since spec.md's capture pipeline is entirely error-shaped but Go panics
// may carry any value.
func recoveredError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicValue{value: r}
}

// panicValue wraps a non-error panic value so it still satisfies error,
// preserving its original type name via exceptionTypeName's reflection.
type panicValue struct {
	value interface{}
}

func (p *panicValue) Error() string {
	if s, ok := p.value.(string); ok {
		return s
	}
	return fmt.Sprintf("panic: %v", p.value)
}
