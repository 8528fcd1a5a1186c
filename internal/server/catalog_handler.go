package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"genie/internal/model"
)

// handleGetCluster 获取集群
// @Summary 获取集群
// @Tags 目录
// @Produce json
// @Param id path string true "集群id"
// @Success 200 {object} model.Cluster "获取成功"
// @Failure 404 {object} ErrorResponse "集群不存在"
// @Router /api/v1/clusters/{id} [get]
func (s *Server) handleGetCluster(c *gin.Context) {
	cluster, err := s.catalog.Cluster(c.Param("id"))
	if err != nil {
		s.writeKindError(c, err)
		return
	}
	c.JSON(http.StatusOK, cluster)
}

// handleGetClusterCommands lists the active commands attached to a cluster.
func (s *Server) handleGetClusterCommands(c *gin.Context) {
	cmds, err := s.catalog.FindCommandsOnCluster(c.Param("id"), model.StatusActive)
	if err != nil {
		s.writeKindError(c, err)
		return
	}
	if cmds == nil {
		cmds = []*model.Command{}
	}
	c.JSON(http.StatusOK, cmds)
}

func (s *Server) handleGetCommand(c *gin.Context) {
	cmd, err := s.catalog.Command(c.Param("id"))
	if err != nil {
		s.writeKindError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmd)
}

func (s *Server) handleGetApplication(c *gin.Context) {
	app, err := s.catalog.Application(c.Param("id"))
	if err != nil {
		s.writeKindError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}
