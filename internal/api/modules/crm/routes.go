package crm

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeteki/outreach/pkg/sdk"
)

// RegisterRoutes registers the CRM CRUD routes. When an API key is
// configured every route in this module requires it.
func RegisterRoutes(g *gin.RouterGroup, apiKey string) {
	group := g.Group("/crm")
	if apiKey != "" {
		group.Use(requireAPIKey(apiKey))
	}

	group.GET("/pipelines", ListPipelines)
	group.POST("/pipelines", CreatePipeline)
	group.GET("/pipelines/:id", GetPipeline)

	group.GET("/contacts", ListContacts)
	group.POST("/contacts", CreateContact)
	group.GET("/contacts/:id", GetContact)
	group.PATCH("/contacts/:id", PatchContact)

	group.GET("/deals", ListDeals)
	group.POST("/deals", CreateDeal)
	group.GET("/deals/:id", GetDeal)
	group.PATCH("/deals/:id", PatchDeal)

	group.GET("/emails", ListEmails)
	group.GET("/activity", ListAIActivity)
	group.GET("/stats", GetStats)
}

// requireAPIKey rejects requests without the configured key
func requireAPIKey(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-API-KEY") != apiKey {
			c.AbortWithStatusJSON(sdk.NewErrorResponse(http.StatusUnauthorized, "Invalid API key", nil).AsGinResponse())
			return
		}
		c.Next()
	}
}
