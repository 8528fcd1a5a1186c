package server

import (
	"context"
	goerrors "errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"genie/internal/catalog"
	"genie/internal/config"
	"genie/internal/errs"
	"genie/internal/model"
	"genie/internal/supervisor"
	"genie/pkg/log"
)

// JobService is the part of the supervisor the HTTP layer drives.
type JobService interface {
	Submit(ctx context.Context, req *supervisor.JobRequest) (string, error)
	Status(ctx context.Context, id string) (*model.Job, error)
	Kill(ctx context.Context, id string) error
}

type JobHistory interface {
	ListJobs(ctx context.Context, statuses ...model.JobStatus) ([]*model.Job, error)
}

type Server struct {
	conf       *config.Config
	jobs       JobService
	history    JobHistory
	catalog    catalog.Reader
	httpServer *http.Server
	logger     *logrus.Entry
}

func NewServer(ctx context.Context, conf *config.Config, jobs JobService, history JobHistory, cat catalog.Reader) (*Server, error) {
	s := &Server{
		conf:    conf,
		jobs:    jobs,
		history: history,
		catalog: cat,
		logger:  log.GetLogger(ctx).WithField("component", "server"),
	}
	return s, nil
}

func RequestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestId := c.GetHeader(log.HttpXRequestId)
		if requestId == "" {
			requestId = strings.ReplaceAll(uuid.New().String(), "-", "")
		}
		c.Header(log.HttpXRequestId, requestId)
		c.Request = c.Request.WithContext(log.WithRequestId(c.Request.Context(), requestId))
		c.Next()
	}
}

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		t := time.Now()
		c.Next()
		latency := time.Since(t)
		status := c.Writer.Status()

		log.GetLogger(c.Request.Context()).Info("ip: ", c.ClientIP(), " method: ", c.Request.Method, " path: ",
			c.Request.URL.Path, " status: ", status, " latency: ", latency)
	}
}

func (s *Server) Start() {
	gin.SetMode(gin.ReleaseMode)
	router := s.SetUpRouter()
	pprof.Register(router)
	s.httpServer = &http.Server{
		Addr:    s.conf.Addr,
		Handler: router,
	}

	s.logger.Infof("start http server on %s", s.conf.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !goerrors.Is(err, http.ErrServerClosed) {
		s.logger.Fatal(err)
	}
}

func (s *Server) Shutdown(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Errorf("server forced to shutdown: %v", err)
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindPrecondition:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindDuplicate:
		return http.StatusConflict
	case errs.KindAdmission:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(c *gin.Context, code int, err error) {
	resp := ErrorResponse{Error: err.Error()}
	if kind := errs.KindOf(err); kind != errs.KindUnknown {
		resp.Kind = string(kind)
	}
	c.JSON(code, resp)
}

func (s *Server) writeKindError(c *gin.Context, err error) {
	s.writeError(c, statusFor(err), err)
}

var jobIdPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("jobid", func(fl validator.FieldLevel) bool {
			id := fl.Field().String()
			return jobIdPattern.MatchString(id) && id != "." && id != ".."
		})
	}
}
