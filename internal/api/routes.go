package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lastping/lastpingd/internal/liveness"
	"github.com/lastping/lastpingd/internal/principal"
)

// httpStatus maps registry rejections onto response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, liveness.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, liveness.ErrAlreadyExists), errors.Is(err, liveness.ErrNotExpired):
		return http.StatusConflict
	case errors.Is(err, liveness.ErrNotOwner), errors.Is(err, liveness.ErrNotBackup):
		return http.StatusForbidden
	case errors.Is(err, liveness.ErrInvalidBackup), errors.Is(err, liveness.ErrInvalidTimeout):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func reject(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{"error": err.Error()})
}

func (s *Server) pathPrincipal(c *gin.Context) (principal.Principal, bool) {
	p, err := principal.Parse(c.Param("principal"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return principal.Principal{}, false
	}
	return p, true
}

func (s *Server) handleExists(c *gin.Context) {
	target, ok := s.pathPrincipal(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"principal": target.Text(),
		"exists":    s.Registry.Exists(target),
	})
}

func (s *Server) handleStatusOf(c *gin.Context) {
	target, ok := s.pathPrincipal(c)
	if !ok {
		return
	}
	view, err := s.Registry.Status(target)
	if err != nil {
		reject(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "account": view})
}

func (s *Server) handleStatusSelf(c *gin.Context) {
	view, err := s.Registry.Status(s.caller(c))
	if err != nil {
		reject(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "account": view})
}

func (s *Server) handleInitialize(c *gin.Context) {
	caller := s.caller(c)
	view, err := s.Registry.Initialize(caller)
	if err != nil {
		reject(c, err)
		return
	}
	log.Info().
		Str("node", s.ID).
		Str("principal", caller.Text()).
		Msg("account_initialized")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "account": view})
}

func (s *Server) handlePing(c *gin.Context) {
	view, err := s.Registry.Ping(s.caller(c))
	if err != nil {
		reject(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "account": view})
}

type setBackupRequest struct {
	Backup string `json:"backup"`
}

func (s *Server) handleSetBackup(c *gin.Context) {
	var req setBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	backup, err := principal.Parse(req.Backup)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, err := s.Registry.SetBackup(s.caller(c), backup)
	if err != nil {
		reject(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "account": view})
}

type setTimeoutRequest struct {
	TimeoutNS int64 `json:"timeout_ns"`
}

func (s *Server) handleSetTimeout(c *gin.Context) {
	var req setTimeoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	view, err := s.Registry.SetTimeout(s.caller(c), time.Duration(req.TimeoutNS))
	if err != nil {
		reject(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "account": view})
}

func (s *Server) handleClaim(c *gin.Context) {
	caller := s.caller(c)
	target, ok := s.pathPrincipal(c)
	if !ok {
		return
	}
	if !s.ClaimLimits.Allow(caller.Text(), s.Clock()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "claim rate limit exceeded"})
		return
	}
	view, err := s.Registry.Claim(caller, target)
	if err != nil {
		reject(c, err)
		return
	}
	log.Info().
		Str("node", s.ID).
		Str("principal", target.Text()).
		Str("new_owner", caller.Text()).
		Msg("account_claimed")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "account": view})
}
