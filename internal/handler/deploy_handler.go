package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"meteor-deploy-manager/internal/model"
	"meteor-deploy-manager/internal/service"
	"meteor-deploy-manager/pkg/utils"
)

// TaskRunner is the part of service.TaskService the handlers use.
type TaskRunner interface {
	Start(req model.DeployRequest) (string, error)
	Progress(id string) (model.ProgressResponse, error)
	Subscribe(id string) ([]model.StreamEvent, <-chan model.StreamEvent, func(), error)
}

type DeployHandler struct {
	tasks TaskRunner
}

func NewDeployHandler(tasks TaskRunner) *DeployHandler {
	return &DeployHandler{
		tasks: tasks,
	}
}

func (h *DeployHandler) Deploy(c *gin.Context) {
	var req model.DeployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	taskID, err := h.tasks.Start(req)
	if err != nil {
		c.JSON(statusFor(err), model.ErrorResponse{
			Success: false,
			Message: "Could not start task",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, model.DeployResponse{
		Success: true,
		TaskID:  taskID,
		Message: req.Action + " of " + req.Environment + " started",
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrEnvironmentBusy):
		return http.StatusConflict
	case errors.Is(err, service.ErrTaskNotFound):
		return http.StatusNotFound
	case utils.IsKind(err, utils.KindConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
