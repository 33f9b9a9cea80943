package httpapi

import "github.com/gin-gonic/gin"

// RegisterRoutes wires the gateway endpoints onto the router.
func RegisterRoutes(r *gin.Engine, h *Handler) {
	v1 := r.Group("/v1")
	{
		mmsGroup := v1.Group("/mms")
		{
			mmsGroup.POST("/send", h.Send)
			mmsGroup.POST("/download", h.Download)
		}
		v1.GET("/requests/:id", h.GetRequest)
		v1.GET("/config/:subID", h.GetConfig)
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
