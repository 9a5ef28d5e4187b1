package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rssreader/internal/cache"
	"rssreader/internal/models"
	"rssreader/internal/security"
	"rssreader/internal/syncer"
)

func (s *Server) startSync(c *gin.Context) {
	syncID, err := s.deps.Sync.Start(c.Request.Context(), syncer.TriggerManual)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"sync_id": syncID,
		"status":  models.SyncPending,
	})
}

func (s *Server) syncStatus(c *gin.Context) {
	status, err := s.deps.Sync.Status(c.Param("syncId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Usage moves with every upstream call, so it is cached only briefly.
const usageCacheTTL = 30 * time.Second

func (s *Server) lastSync(c *gin.Context) {
	last, err := s.lastSyncResult(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, last)
}

// lastSyncResult is cached until the next sync finishes.
func (s *Server) lastSyncResult(ctx context.Context) (*syncer.LastSync, error) {
	if cached, ok := s.deps.Cache.Get(cache.KeyLastSync); ok {
		if last, ok := cached.(*syncer.LastSync); ok {
			return last, nil
		}
	}

	last, err := s.deps.Sync.LastResult(ctx)
	if err != nil {
		return nil, err
	}
	s.deps.Cache.Set(cache.KeyLastSync, last, s.cacheTTL)
	return last, nil
}

func (s *Server) apiUsage(c *gin.Context) {
	if cached, ok := s.deps.Cache.Get(cache.KeyAPIUsage); ok {
		if usage, ok := cached.(models.UsageReport); ok {
			c.JSON(http.StatusOK, usage)
			return
		}
	}

	usage, err := s.deps.Usage.Usage(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.deps.Cache.Set(cache.KeyAPIUsage, usage, usageCacheTTL)
	c.JSON(http.StatusOK, usage)
}

func (s *Server) schedule(c *gin.Context) {
	if s.deps.Scheduler == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false, "jobs": []interface{}{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"enabled": s.deps.Scheduler.IsRunning(),
		"jobs":    s.deps.Scheduler.Jobs(),
	})
}

func (s *Server) triggerJob(c *gin.Context) {
	if s.deps.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Scheduler disabled",
			"message": "scheduled jobs are not running on this instance",
		})
		return
	}

	job := c.Param("job")
	if err := s.deps.Scheduler.Trigger(job); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job, "status": "triggered"})
}

func (s *Server) runCleanup(c *gin.Context) {
	result, err := s.deps.Cleanup.Run(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) getPreferences(c *gin.Context) {
	prefs, err := s.deps.Store.GetPreferences(c.Request.Context(), security.UserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (s *Server) updatePreferences(c *gin.Context) {
	var update models.PreferencesUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	if err := update.Validate(); err != nil {
		badRequest(c, "%v", err)
		return
	}

	ctx := c.Request.Context()
	userID := security.UserID(c)

	current, err := s.deps.Store.GetPreferences(ctx, userID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	prefs := current.Apply(update)
	if err := s.deps.Store.SavePreferences(ctx, userID, prefs); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}
