package agent

import "github.com/labstack/echo/v4"

// EchoRecover returns an echo middleware with the same recover-and-report
// shape as GinRecover, generalized to echo's handler signature.
func EchoRecover(a *Agent) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if r := recover(); r != nil {
					desc := methodDescriptor{DeclaringType: c.Path(), MethodName: c.Request().Method}
					a.OnHTTPException(recoveredError(r), desc, httpRequestContext(c.Request()))
					_ = c.NoContent(500)
				}
			}()
			return next(c)
		}
	}
}
