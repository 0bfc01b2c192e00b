package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRoutes wires every transport onto the engine.
func SetupRoutes(r *gin.Engine, h *Handler, wa *WhatsAppHandler, admin *AdminHandler) {
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(10 << 20)) // 10MB max request size
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Customer-facing transports
	r.POST("/web-chat", h.HandleWebChat)
	r.POST("/web-chat/audio", h.HandleWebChatAudio)
	r.POST("/email/chat", h.HandleEmailChat)
	r.GET("/whatsapp/webhook", wa.Verify)
	r.POST("/whatsapp/webhook", wa.Receive)

	// Back office
	adminGroup := r.Group("/admin")
	{
		adminGroup.GET("/escalations", admin.ListEscalations)
		adminGroup.POST("/escalations/:id/resolve", admin.ResolveEscalation)

		adminGroup.GET("/analyses", admin.ListAnalyses)
		adminGroup.POST("/analyses", admin.CreateAnalysis)
		adminGroup.POST("/analyses/batch", admin.CreateAnalysesBatch)
		adminGroup.DELETE("/analyses/:id", admin.DeleteAnalysis)
		adminGroup.POST("/analyses/generate-contexts", admin.GenerateContexts)
		adminGroup.POST("/analyses/recompute-embeddings", admin.RecomputeEmbeddings)

		adminGroup.GET("/whatsapp/qr", admin.BridgeQR)
	}
}
