package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"taskdesk/internal/metrics"
	"taskdesk/internal/service"
)

const ctxUserID = "user_id"

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})
		if uid, ok := c.Get(ctxUserID); ok {
			entry = entry.WithField("user_id", uid)
		}
		switch {
		case len(c.Errors) > 0:
			entry.Error(c.Errors.String())
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Warn("request failed")
		default:
			entry.Info("request")
		}
	}
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// rateLimit is a fixed-window limiter keyed by route and client IP.
// Without Redis, or on Redis errors, requests pass.
func (h *Handler) rateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.redis == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := "rl:" + c.FullPath() + ":" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + c.ClientIP()

		val, err := h.redis.Incr(ctx, key).Result()
		if err != nil {
			h.logger.WithError(err).Warn("rate limiter unavailable")
			c.Next()
			return
		}
		if val == 1 {
			if err := h.redis.Expire(ctx, key, window).Err(); err != nil {
				h.logger.WithError(err).WithField("key", key).Warn("rate limiter: set expiry")
			}
		}

		if val > int64(maxRequests) {
			// every counter must expire
			if ttl, err := h.redis.TTL(ctx, key).Result(); err == nil && ttl < 0 {
				if err := h.redis.Expire(ctx, key, window).Err(); err != nil {
					h.logger.WithError(err).WithField("key", key).Warn("rate limiter: repair expiry")
				}
			}
			metrics.RateLimited.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// requireSession rejects requests without a valid, unrevoked session cookie
// whose user still exists.
func (h *Handler) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := h.currentSession(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
			return
		}
		uid, _ := claims.UserID()

		user, err := h.users.GetByID(c.Request.Context(), uid)
		if err != nil {
			if errors.Is(err, service.ErrUserNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
				return
			}
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "storage unavailable"})
			return
		}

		c.Set(ctxUserID, user.ID)
		c.Next()
	}
}
