package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"taskdesk/internal/domain"
	"taskdesk/internal/metrics"
	"taskdesk/internal/service"
	"taskdesk/internal/session"
)

// Config carries the collaborators and switches of the HTTP layer.
type Config struct {
	Tasks    service.TaskService
	Users    service.UserService
	Sessions *session.Manager
	// Redis backs the auth rate limiter; nil disables limiting.
	Redis  *redis.Client
	Logger *logrus.Logger
	// Ping reports database health for /health.
	Ping func(ctx context.Context) error

	SecureCookies  bool
	ProtectTasks   bool
	AuthRateLimit  int
	AuthRateWindow time.Duration
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	tasks    service.TaskService
	users    service.UserService
	sessions *session.Manager
	redis    *redis.Client
	logger   *logrus.Logger
	ping     func(ctx context.Context) error

	secureCookies  bool
	protectTasks   bool
	authRateLimit  int
	authRateWindow time.Duration
}

func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.AuthRateLimit <= 0 {
		cfg.AuthRateLimit = 5
	}
	if cfg.AuthRateWindow <= 0 {
		cfg.AuthRateWindow = time.Minute
	}
	return &Handler{
		tasks:          cfg.Tasks,
		users:          cfg.Users,
		sessions:       cfg.Sessions,
		redis:          cfg.Redis,
		logger:         cfg.Logger,
		ping:           cfg.Ping,
		secureCookies:  cfg.SecureCookies,
		protectTasks:   cfg.ProtectTasks,
		authRateLimit:  cfg.AuthRateLimit,
		authRateWindow: cfg.AuthRateWindow,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(loadTemplates())
	router.Use(corsMiddleware(), requestLogger(h.logger), metricsMiddleware())

	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	tasks := router.Group("/")
	if h.protectTasks {
		tasks.Use(h.requireSession())
	}
	{
		tasks.GET("/", h.listTasks)
		tasks.POST("/creation", h.createTask)
		tasks.PUT("/modifier/:id", h.updateTask)
		tasks.DELETE("/supprimer/:id", h.deleteTask)
	}

	authLimit := h.rateLimit(h.authRateLimit, h.authRateWindow)
	router.GET("/register", h.registerForm)
	router.POST("/register", authLimit, h.register)
	router.GET("/login", h.loginForm)
	router.POST("/login", authLimit, h.login)
	router.Any("/logout", h.logout)
}

// TaskResponse is the listed projection of a task.
type TaskResponse struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func taskToResponse(task domain.Task) TaskResponse {
	return TaskResponse{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
	}
}

func (h *Handler) listTasks(c *gin.Context) {
	tasks, err := h.tasks.ListTasks(c.Request.Context())
	if err != nil {
		h.writeTaskError(c, err)
		return
	}

	resp := make([]TaskResponse, len(tasks))
	for i := range tasks {
		resp[i] = taskToResponse(tasks[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) createTask(c *gin.Context) {
	var req service.TaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	task, err := h.tasks.CreateTask(c.Request.Context(), req)
	if err != nil {
		h.writeTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "task created", "id": task.ID})
}

func (h *Handler) updateTask(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	var req service.TaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	if _, err := h.tasks.UpdateTask(c.Request.Context(), id, req); err != nil {
		h.writeTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "task updated"})
}

func (h *Handler) deleteTask(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	if err := h.tasks.DeleteTask(c.Request.Context(), id); err != nil {
		h.writeTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "task deleted"})
}

func parseTaskID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid task id"})
		return 0, false
	}
	return id, true
}

// writeTaskError maps service errors to statuses. Internal error text stays in the log.
func (h *Handler) writeTaskError(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"message": "validation failed", "errors": verr.Fields})
	case errors.Is(err, service.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "task not found"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "storage unavailable"})
	}
}

func (h *Handler) health(c *gin.Context) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			h.logger.WithError(err).Warn("health check: database ping failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
