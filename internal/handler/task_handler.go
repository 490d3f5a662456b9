package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"meteor-deploy-manager/internal/model"
)

type TaskHandler struct {
	tasks TaskRunner
}

func NewTaskHandler(tasks TaskRunner) *TaskHandler {
	return &TaskHandler{
		tasks: tasks,
	}
}

func (h *TaskHandler) Progress(c *gin.Context) {
	progress, err := h.tasks.Progress(c.Param("taskId"))
	if err != nil {
		c.JSON(statusFor(err), model.ErrorResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, progress)
}
