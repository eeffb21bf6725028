// Package httpapi exposes the login driver over HTTP: start an attempt, see
// it suspend on a verification challenge, answer the challenge later, and
// walk away with an access token once the upstream accepts.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	perch "github.com/perchlabs/perch"
)

// Server binds HTTP handlers to a [perch.Driver].
type Server struct {
	driver *perch.Driver
	tokens *TokenIssuer
}

// NewServer creates a Server. Both arguments are required.
func NewServer(driver *perch.Driver, tokens *TokenIssuer) *Server {
	return &Server{
		driver: driver,
		tokens: tokens,
	}
}

// Router assembles the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.Healthz)

	auth := router.Group("/auth")
	{
		auth.POST("/start", s.Start)
		auth.POST("/challenge", s.Challenge)
		auth.DELETE("/session/:token", s.RemoveSession)
		auth.DELETE("/cookies/:id", s.RemoveCookies)
	}

	api := router.Group("/api")
	api.Use(s.authMiddleware())
	{
		api.GET("/me", s.Me)
	}

	return router
}

// Healthz reports liveness.
func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start begins a login attempt for the posted credentials.
func (s *Server) Start(c *gin.Context) {
	var req struct {
		Identity string `json:"identity" binding:"required"`
		Secret   string `json:"secret" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	token := uuid.NewString()
	ctx := perch.WithClientIP(c.Request.Context(), c.ClientIP())

	result, err := s.driver.Begin(ctx, token, req.Identity, req.Secret)
	if err != nil {
		s.driver.RemoveSession(token)
		writeDriverError(c, err)
		return
	}

	s.finishAttempt(c, token, req.Identity, result)
}

// Challenge answers a pending verification challenge and resumes the attempt.
func (s *Server) Challenge(c *gin.Context) {
	var req struct {
		SessionToken string `json:"session_token" binding:"required"`
		Answer       string `json:"answer" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	info, err := s.driver.Session(req.SessionToken)
	if err != nil {
		writeDriverError(c, err)
		return
	}

	ctx := perch.WithClientIP(c.Request.Context(), c.ClientIP())
	result, err := s.driver.Resume(ctx, req.SessionToken, req.Answer)
	if err != nil {
		writeDriverError(c, err)
		return
	}

	s.finishAttempt(c, req.SessionToken, info.Identity, result)
}

// RemoveSession discards an in-flight session.
func (s *Server) RemoveSession(c *gin.Context) {
	if !s.driver.RemoveSession(c.Param("token")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown session"})
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveCookies evicts an identity's cached credential blob from both tiers.
func (s *Server) RemoveCookies(c *gin.Context) {
	s.driver.Cookies().Delete(c.Request.Context(), c.Param("id"))
	c.Status(http.StatusNoContent)
}

// Me returns the identity behind the presented access token.
func (s *Server) Me(c *gin.Context) {
	identity, exists := c.Get("identity")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Identity not found in context"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": identity})
}

// finishAttempt renders a driver outcome. On success the cookie blob is
// persisted remotely (best-effort), the session is discarded, and an access
// token is minted; on suspension the challenge goes back to the caller with
// the token they must resume under.
func (s *Server) finishAttempt(c *gin.Context, token, identity string, result *perch.AttemptResult) {
	if result.Suspended() {
		c.JSON(http.StatusAccepted, gin.H{
			"status":        "suspended",
			"session_token": token,
			"challenge": gin.H{
				"kind":    result.Challenge.Kind,
				"message": result.Challenge.Message,
				"hint":    result.Challenge.Hint,
			},
		})
		return
	}

	s.driver.Cookies().Save(c.Request.Context(), identity, false)
	s.driver.RemoveSession(token)

	accessToken, err := s.tokens.IssueAccessToken(identity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue access token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"access_token": accessToken,
		"token_type":   "Bearer",
	})
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if len(auth) < 8 || auth[:7] != "Bearer " {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		identity, err := s.tokens.ParseAccessToken(auth[7:])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set("identity", identity)
		c.Next()
	}
}

func writeDriverError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, perch.ErrSessionExists):
		c.JSON(http.StatusConflict, gin.H{"error": "Session already exists"})
	case errors.Is(err, perch.ErrSessionExpired):
		c.JSON(http.StatusGone, gin.H{"error": "Session expired"})
	case errors.Is(err, perch.ErrInvalidSession):
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown session"})
	case errors.Is(err, perch.ErrUnexpectedPrompt), errors.Is(err, perch.ErrUpstreamLogin):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream login failed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Authentication failed"})
	}
}
