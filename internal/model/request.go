package model

type DeployRequest struct {
	Environment string `json:"environment" binding:"required"`
	Action      string `json:"action" binding:"required,oneof=deploy rollback start stop restart"`
	Verbose     bool   `json:"verbose"`
}
