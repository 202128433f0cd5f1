package webhooks

import (
	"github.com/gin-gonic/gin"

	"github.com/codeteki/outreach/internal/engine"
	store "github.com/codeteki/outreach/internal/stores/crm"
)

var service *Service

// Service holds the webhook module's collaborators
type Service struct {
	store  store.StoreInterface
	engine *engine.Engine
}

// Init wires the webhook module
func Init(s store.StoreInterface, e *engine.Engine) {
	service = &Service{store: s, engine: e}
}

// RegisterRoutes registers the provider-facing webhook routes. These are
// deliberately unauthenticated: providers sign nothing, so the handlers
// treat every payload as untrusted input.
func RegisterRoutes(g *gin.RouterGroup) {
	group := g.Group("/crm/webhooks")

	group.POST("/reply", PostReply)
	group.POST("/unsubscribe", PostUnsubscribe)
}
