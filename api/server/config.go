package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"skywidget/internal/config"
	"skywidget/internal/logger"
)

// GetConfigResponse 获取配置响应
type GetConfigResponse struct {
	Config *config.Config `json:"config"`
}

// UpdateConfigRequest 更新配置请求
type UpdateConfigRequest struct {
	Config *config.Config `json:"config" binding:"required"`
}

// getConfig 获取系统配置
func (s *Server) getConfig(c *gin.Context) {
	s.configMu.RLock()
	defer s.configMu.RUnlock()

	c.JSON(http.StatusOK, GetConfigResponse{
		Config: s.config,
	})
}

// updateConfig 更新系统配置
func (s *Server) updateConfig(c *gin.Context) {
	var req UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 验证配置
	if err := req.Config.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.configMu.Lock()
	defer s.configMu.Unlock()

	// 保存配置到文件
	if s.configPath != "" {
		if err := config.SaveToFile(s.configPath, req.Config); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to save config: %v", err)})
			return
		}
	}

	// 日志级别立即生效，其余配置重启后生效
	if req.Config.Logger.Level != s.config.Logger.Level {
		logger.SetLevel(req.Config.Logger.Level)
		s.log.Info("Log level changed", zap.String("level", req.Config.Logger.Level))
	}

	// 更新内存中的配置
	s.config = req.Config

	c.JSON(http.StatusOK, gin.H{
		"message": "Configuration updated successfully. Please restart the service for changes to take effect.",
		"config":  s.config,
	})
}
