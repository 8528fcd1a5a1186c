package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"genie/internal/dao"
	"genie/internal/supervisor"
)

const defaultListLimit = 20

// handleSubmitJob 提交任务
// @Summary 提交任务
// @Description 异步提交任务, 立即返回任务id
// @Tags 任务
// @Accept json
// @Produce json
// @Param req body supervisor.JobRequest true "提交任务请求"
// @Success 202 {object} dao.SubmitJobResponse "已接受"
// @Failure 400 {object} ErrorResponse "请求参数错误"
// @Failure 409 {object} ErrorResponse "任务已存在"
// @Failure 429 {object} ErrorResponse "运行中的任务过多"
// @Router /api/v1/jobs [post]
func (s *Server) handleSubmitJob(c *gin.Context) {
	var req supervisor.JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}

	id, err := s.jobs.Submit(c.Request.Context(), &req)
	if err != nil {
		s.writeKindError(c, err)
		return
	}

	c.Header("Location", "/api/v1/jobs/"+id)
	c.JSON(http.StatusAccepted, dao.SubmitJobResponse{Id: id})
}

// handleGetJob 获取任务
// @Summary 获取任务
// @Description 根据job_id获取任务状态
// @Tags 任务
// @Produce json
// @Param job_id path string true "任务job_id"
// @Success 200 {object} dao.JobSpec "获取成功"
// @Failure 404 {object} ErrorResponse "任务不存在"
// @Router /api/v1/jobs/{job_id} [get]
func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.jobs.Status(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		s.writeKindError(c, err)
		return
	}

	spec, err := dao.FromJobModel(job)
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, spec)
}

// handleKillJob 终止任务
// @Summary 终止任务
// @Description 根据job_id终止任务, 已结束的任务不受影响
// @Tags 任务
// @Produce json
// @Param job_id path string true "任务job_id"
// @Success 202 "已接受"
// @Failure 404 {object} ErrorResponse "任务不存在"
// @Router /api/v1/jobs/{job_id} [delete]
func (s *Server) handleKillJob(c *gin.Context) {
	if err := s.jobs.Kill(c.Request.Context(), c.Param("job_id")); err != nil {
		s.writeKindError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{})
}

// handleListJobs 获取任务列表
// @Summary 获取任务列表
// @Description 按状态过滤, 按创建时间排序分页
// @Tags 任务
// @Produce json
// @Param status query []string false "任务状态"
// @Param start query int false "起始位置" default(0)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} dao.ListJobsResponse "获取成功"
// @Failure 400 {object} ErrorResponse "请求参数错误"
// @Router /api/v1/jobs [get]
func (s *Server) handleListJobs(c *gin.Context) {
	req := &dao.ListJobsRequest{}
	if err := c.ShouldBindQuery(req); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultListLimit
	}
	statuses, err := req.Statuses()
	if err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}

	jobs, err := s.history.ListJobs(c.Request.Context(), statuses...)
	if err != nil {
		s.writeKindError(c, err)
		return
	}

	total := len(jobs)
	start := min(req.Start, total)
	end := min(start+req.Limit, total)
	items := make([]dao.JobSpec, 0, end-start)
	for _, job := range jobs[start:end] {
		spec, err := dao.FromJobModel(job)
		if err != nil {
			s.writeError(c, http.StatusInternalServerError, err)
			return
		}
		items = append(items, *spec)
	}

	c.JSON(http.StatusOK, dao.ListJobsResponse{
		Items: items,
		Total: int64(total),
	})
}
