package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"meteor-deploy-manager/internal/handler"
)

func RegisterRoutes(r *gin.Engine, deployHandler *handler.DeployHandler, taskHandler *handler.TaskHandler, streamHandler *handler.StreamHandler) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/deploy", deployHandler.Deploy)

		tasks := api.Group("/tasks")
		{
			tasks.GET("/:taskId", taskHandler.Progress)
			tasks.GET("/:taskId/stream", streamHandler.Stream)
		}
	}
}
