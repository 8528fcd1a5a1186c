package server

import (
	"github.com/gin-gonic/gin"
)

func (s *Server) SetUpRouter() *gin.Engine {
	router := gin.New()
	router.Use(RequestId())
	router.Use(Logger())
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "ok",
		})
	})
	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "not found"})
	})

	apiV1 := router.Group("/api/v1")
	s.SetUpApiV1Router(apiV1)

	return router
}

func (s *Server) SetUpApiV1Router(apiV1 *gin.RouterGroup) {
	apiV1.POST("/jobs", s.handleSubmitJob)
	apiV1.GET("/jobs", s.handleListJobs)
	apiV1.GET("/jobs/:job_id", s.handleGetJob)
	apiV1.DELETE("/jobs/:job_id", s.handleKillJob)

	apiV1.GET("/clusters/:id", s.handleGetCluster)
	apiV1.GET("/clusters/:id/commands", s.handleGetClusterCommands)
	apiV1.GET("/commands/:id", s.handleGetCommand)
	apiV1.GET("/applications/:id", s.handleGetApplication)
}
