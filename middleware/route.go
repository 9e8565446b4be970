package middleware

import (
	midsec "ChirpChat/middleware/security"

	"github.com/gin-gonic/gin"
)

type RouteOpt struct {
	IsAuth bool
}

var authOpts *midsec.Options

// Configure sets the auth options used by the wrappers below. Call once in
// main before registering routes.
func Configure(opts *midsec.Options) { authOpts = opts }

func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.IsAuth {
		r.POST(path, midsec.Middleware(authOpts), handler)
	} else {
		r.POST(path, handler)
	}
}

func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.IsAuth {
		r.GET(path, midsec.Middleware(authOpts), handler)
	} else {
		r.GET(path, handler)
	}
}
