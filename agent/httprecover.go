package agent

import "net/http"

// HTTPRecover wraps a standard http.Handler with the same recover-and-report
// shape as GinRecover, generalizing the teacher's HTTPHandler/HTTPMiddleware
// pair. operation labels the handler (route pattern or a caller-supplied
// name) for coverage-selection and method-descriptor purposes, since plain
// net/http has no route-pattern concept of its own.
func HTTPRecover(a *Agent, operation string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				desc := methodDescriptor{DeclaringType: operation, MethodName: r.Method}
				a.OnHTTPException(recoveredError(rec), desc, httpRequestContext(r))
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// HTTPRecoverMiddleware adapts HTTPRecover to the common
// func(http.Handler) http.Handler middleware-chaining shape.
func HTTPRecoverMiddleware(a *Agent, operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return HTTPRecover(a, operation, next)
	}
}
