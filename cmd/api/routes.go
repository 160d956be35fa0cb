package main

import (
	"voice-relay/internal/httpapi"
	"voice-relay/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
//
// Every route is served at the root and again under /api, the prefix the
// dashboard frontend uses. authMW may be nil, which leaves /calls open.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	r.GET("/", h.Root)
	r.GET("/healthz", h.Healthz)

	for _, g := range []*gin.RouterGroup{r.Group(""), r.Group("/api")} {
		registerWebhookRoutes(g, h)
		registerCallRoutes(g, h, authMW)
	}
}

// Provider webhooks are public; the signature check lives in the handler.
func registerWebhookRoutes(g *gin.RouterGroup, h httpapi.Handlers) {
	wh := g.Group("/webhooks")
	wh.POST("/retell", h.RetellWebhook)
	wh.POST("/provider", h.RetellWebhook)
	wh.GET("/test", h.WebhookTest)
}

func registerCallRoutes(g *gin.RouterGroup, h httpapi.Handlers, authMW gin.HandlerFunc) {
	var readMW, writeMW []gin.HandlerFunc
	if authMW != nil {
		readMW = []gin.HandlerFunc{authMW, rbac.RequireAnyRole(rbac.RoleViewer, rbac.RoleOperator)}
		writeMW = []gin.HandlerFunc{authMW, rbac.RequireAnyRole(rbac.RoleOperator)}
	}

	readers := g.Group("/calls", readMW...)
	readers.GET("", h.ListCalls)
	readers.GET("/:call_id", h.GetCall)
	readers.GET("/:call_id/events", h.CallEvents)

	// Outside /calls so every call id stays addressable.
	g.Group("/stats", readMW...).GET("/calls", h.Stats)

	writers := g.Group("/calls", writeMW...)
	writers.POST("", h.CreateCall)
}
