package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rssreader/internal/cache"
	"rssreader/internal/logging"
	"rssreader/internal/models"
)

type addFeedRequest struct {
	URL string `json:"url" binding:"required"`
}

func (s *Server) listFeeds(c *gin.Context) {
	key := cache.Key(cache.PrefixFeeds, "all")
	if cached, ok := s.deps.Cache.Get(key); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	feeds, err := s.deps.Store.ListFeeds(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := gin.H{"feeds": feeds, "count": len(feeds)}
	s.deps.Cache.Set(key, resp, s.cacheTTL)
	c.JSON(http.StatusOK, resp)
}

// addFeed validates the URL as a feed before subscribing upstream, so a
// typo does not spend a write call.
func (s *Server) addFeed(c *gin.Context) {
	var req addFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}

	ctx := c.Request.Context()
	preview, err := s.deps.Fetcher.ValidateFeed(ctx, req.URL)
	if err != nil {
		s.writeError(c, err)
		return
	}

	added, err := s.deps.Subscriptions.QuickAdd(ctx, req.URL)
	if err != nil {
		s.writeError(c, err)
		return
	}

	title := added.StreamName
	if title == "" {
		title = preview.Title
	}
	feed := models.Feed{
		InoreaderID: added.StreamID,
		Title:       title,
		URL:         req.URL,
		SiteURL:     preview.SiteURL,
	}
	ids, err := s.deps.Store.UpsertFeeds(ctx, []models.Feed{feed})
	if err != nil {
		s.writeError(c, err)
		return
	}

	stored, err := s.deps.Store.GetFeed(ctx, ids[feed.InoreaderID])
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.deps.Cache.DeletePrefix(cache.PrefixFeeds)
	logging.FromContext(ctx).Info("subscribed to feed", "url", req.URL, "stream_id", added.StreamID)
	c.JSON(http.StatusCreated, gin.H{"feed": stored, "preview": preview})
}

func (s *Server) deleteFeed(c *gin.Context) {
	ctx := c.Request.Context()

	feed, err := s.deps.Store.GetFeed(ctx, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.deps.Subscriptions.Unsubscribe(ctx, feed.InoreaderID); err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.deps.Store.DeleteFeed(ctx, feed.ID); err != nil {
		s.writeError(c, err)
		return
	}

	s.deps.Cache.InvalidateArticles()
	logging.FromContext(ctx).Info("unsubscribed from feed", "feed_id", feed.ID, "stream_id", feed.InoreaderID)
	c.Status(http.StatusNoContent)
}

func (s *Server) listTags(c *gin.Context) {
	key := cache.Key(cache.PrefixTags, "all")
	if cached, ok := s.deps.Cache.Get(key); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	tags, err := s.deps.Store.ListTags(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := gin.H{"tags": tags, "count": len(tags)}
	s.deps.Cache.Set(key, resp, s.cacheTTL)
	c.JSON(http.StatusOK, resp)
}
