// Package mockapi serves a stand-in for the public LeetCode proxy API so the
// notifier can be exercised locally and in tests without network access.
package mockapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Shape selects which of the upstream submission payload layouts is served.
type Shape string

const (
	ShapeSubmission Shape = "submission"
	ShapeData       Shape = "data"
	ShapeArray      Shape = "array"
)

type Submission struct {
	Title     string `json:"title"`
	TitleSlug string `json:"titleSlug"`
	Timestamp string `json:"timestamp"`
}

type Server struct {
	mu          sync.Mutex
	title       string
	slug        string
	legacyDaily bool
	shape       Shape
	users       map[string][]Submission
	failing     bool
	delay       time.Duration
}

func New(title, slug string) *Server {
	return &Server{
		title: title,
		slug:  slug,
		shape: ShapeSubmission,
		users: map[string][]Submission{},
	}
}

func (s *Server) AddUser(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		s.users[username] = nil
	}
}

// Solve records an accepted submission for username at the given time.
func (s *Server) Solve(username, slug string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = append([]Submission{{
		Title:     slug,
		TitleSlug: slug,
		Timestamp: strconv.FormatInt(at.Unix(), 10),
	}}, s.users[username]...)
}

func (s *Server) SetShape(shape Shape)     { s.mu.Lock(); s.shape = shape; s.mu.Unlock() }
func (s *Server) SetLegacyDaily(v bool)    { s.mu.Lock(); s.legacyDaily = v; s.mu.Unlock() }
func (s *Server) SetFailing(v bool)        { s.mu.Lock(); s.failing = v; s.mu.Unlock() }
func (s *Server) SetDelay(d time.Duration) { s.mu.Lock(); s.delay = d; s.mu.Unlock() }
func (s *Server) SetDaily(title, slug string) {
	s.mu.Lock()
	s.title, s.slug = title, slug
	s.mu.Unlock()
}

func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.fault)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/daily", s.handleDaily)
	r.GET("/:username", s.handleUser)
	r.GET("/:username/acSubmission", s.handleSubmissions)

	admin := r.Group("/admin")
	{
		admin.POST("/daily", s.handleSetDaily)
		admin.POST("/solve", s.handleSolve)
	}
	return r
}

func (s *Server) fault(c *gin.Context) {
	s.mu.Lock()
	failing, delay := s.failing, s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-c.Request.Context().Done():
			c.Abort()
			return
		}
	}
	if failing && c.FullPath() != "/health" {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "upstream unavailable"})
		return
	}
	c.Next()
}

func (s *Server) handleDaily(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.legacyDaily {
		c.JSON(http.StatusOK, gin.H{"title": s.title, "titleSlug": s.slug})
		return
	}
	c.JSON(http.StatusOK, gin.H{"questionTitle": s.title, "titleSlug": s.slug, "difficulty": "Medium"})
}

func (s *Server) handleUser(c *gin.Context) {
	s.mu.Lock()
	_, ok := s.users[c.Param("username")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"errors": []string{"That user does not exist."}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": c.Param("username")})
}

func (s *Server) handleSubmissions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	s.mu.Lock()
	subs, ok := s.users[c.Param("username")]
	shape := s.shape
	if len(subs) > limit {
		subs = subs[:limit]
	}
	subs = append([]Submission(nil), subs...)
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if subs == nil {
		subs = []Submission{}
	}

	switch shape {
	case ShapeArray:
		c.JSON(http.StatusOK, subs)
	case ShapeData:
		c.JSON(http.StatusOK, gin.H{"count": len(subs), "data": subs})
	default:
		c.JSON(http.StatusOK, gin.H{"count": len(subs), "submission": subs})
	}
}

func (s *Server) handleSetDaily(c *gin.Context) {
	var req struct {
		Title string `json:"title" binding:"required"`
		Slug  string `json:"slug" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.SetDaily(req.Title, req.Slug)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSolve(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Slug     string `json:"slug" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.Solve(req.Username, req.Slug, time.Now())
	c.Status(http.StatusNoContent)
}
