package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rssreader/internal/cache"
	"rssreader/internal/logging"
	"rssreader/internal/models"
)

const defaultPageLimit = 50

type articleList struct {
	Articles []models.Article `json:"articles"`
	Count    int              `json:"count"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

type markReadRequest struct {
	IDs    []string `json:"ids"`
	FeedID string   `json:"feed_id"`
}

func (s *Server) listArticles(c *gin.Context) {
	query := models.ArticleQuery{
		FeedID:     c.Query("feed_id"),
		TagID:      c.Query("tag_id"),
		Folder:     c.Query("folder"),
		UnreadOnly: queryBool(c, "unread"),
		Starred:    queryBool(c, "starred"),
		Limit:      queryInt(c, "limit", defaultPageLimit),
		Offset:     queryInt(c, "offset", 0),
	}

	key := cache.Key(cache.PrefixArticles, query.FeedID, query.TagID, query.Folder,
		query.UnreadOnly, query.Starred, query.Limit, query.Offset)
	if cached, ok := s.deps.Cache.Get(key); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	articles, total, err := s.deps.Store.ListArticles(c.Request.Context(), query)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := articleList{
		Articles: articles,
		Count:    len(articles),
		Total:    total,
		Limit:    query.Limit,
		Offset:   query.Offset,
	}
	s.deps.Cache.Set(key, resp, s.cacheTTL)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getArticle(c *gin.Context) {
	article, err := s.deps.Store.GetArticle(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

// updateArticle changes read/star state locally and queues the change for
// the next sync.
func (s *Server) updateArticle(c *gin.Context) {
	var update models.ArticleStateUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	if update.Empty() {
		badRequest(c, "nothing to update: provide is_read and/or is_starred")
		return
	}

	article, err := s.deps.Store.UpdateArticleState(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.deps.Cache.InvalidateArticles()
	c.JSON(http.StatusOK, article)
}

func (s *Server) markRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}

	ctx := c.Request.Context()
	var (
		updated int
		err     error
	)
	switch {
	case len(req.IDs) > 0:
		updated, err = s.deps.Store.MarkArticlesRead(ctx, req.IDs)
	case req.FeedID != "":
		updated, err = s.deps.Store.MarkFeedRead(ctx, req.FeedID)
	default:
		badRequest(c, "provide ids or feed_id")
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.deps.Cache.InvalidateArticles()
	logging.FromContext(ctx).Info("marked articles read", "count", updated, "feed_id", req.FeedID)
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (s *Server) fetchContent(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	article, err := s.deps.Store.GetArticle(ctx, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if article.URL == "" {
		badRequest(c, "article has no URL")
		return
	}

	html, err := s.deps.Fetcher.FetchFullContent(ctx, article.URL)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.deps.Store.SaveFullContent(ctx, id, html); err != nil {
		s.writeError(c, err)
		return
	}
	s.deps.Cache.InvalidateArticles()

	article.FullContent = html
	article.HasFullContent = true
	c.JSON(http.StatusOK, article)
}

func queryBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(c.Query(key))
	return err == nil && v
}

func queryInt(c *gin.Context, key string, defaultVal int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return defaultVal
}
