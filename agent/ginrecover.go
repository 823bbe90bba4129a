package agent

import "github.com/gin-gonic/gin"

// GinRecover returns a gin middleware that recovers a panicking handler
// and reports it through the interception controller with the request
// captured the same way the teacher's extractGinRequestContext does.
// Host transparency (spec.md's I8) means the handler's panic must still
// surface as a failure to the client, so this converts it into a 500
// response rather than swallowing it — the same disposition gin's own
// Recovery() gives an unhandled panic.
func GinRecover(a *Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				desc := methodDescriptor{DeclaringType: c.FullPath(), MethodName: c.Request.Method}
				a.OnHTTPException(recoveredError(r), desc, httpRequestContext(c.Request))
				c.AbortWithStatus(500)
			}
		}()
		c.Next()
	}
}
