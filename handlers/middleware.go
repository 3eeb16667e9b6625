package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"sentinel-edge/logger"
	"sentinel-edge/metrics"
	"sentinel-edge/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

const userIDKey = "user_id"

// RequestLogger logs every request and counts it by route and status
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()

		entry := logger.Log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   status,
			"duration": time.Since(start).Round(time.Microsecond),
			"client":   c.ClientIP(),
		})
		if status >= http.StatusInternalServerError {
			entry.Error("request failed")
		} else {
			entry.Info("request")
		}
	}
}

// RateLimit rejects requests once the token bucket is empty
func RateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			abortError(c, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, retry shortly")
			return
		}
		c.Next()
	}
}

// UserLookup finds API users by email
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// BasicAuth checks HTTP basic credentials against bcrypt password hashes
func BasicAuth(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, password, ok := c.Request.BasicAuth()
		if !ok {
			unauthorized(c)
			return
		}

		user, err := users.GetByEmail(c.Request.Context(), email)
		if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
			unauthorized(c)
			return
		}

		c.Set(userIDKey, user.ID)
		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", `Basic realm="sentinel-edge"`)
	abortError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Valid credentials are required")
}

// userID returns the authenticated user, if any
func userID(c *gin.Context) *uuid.UUID {
	v, ok := c.Get(userIDKey)
	if !ok {
		return nil
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}
