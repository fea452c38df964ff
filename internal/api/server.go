// Package api provides the ops/control HTTP surface for schedulerd:
// health, metrics, trigger webhooks, approval resolution, run
// cancellation, and agent registration, heartbeat and deregistration.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeready-toolchain/orcaci/internal/domain"
	"github.com/codeready-toolchain/orcaci/internal/scheduler"
)

// Server is the schedulerd ops HTTP server.
type Server struct {
	engine    *gin.Engine
	scheduler *scheduler.Scheduler
	agents    scheduler.AgentRepository
	pool      Pinger
}

// Pinger is satisfied by the storage layer's connection pool, kept
// minimal so the api package doesn't need to import postgres directly.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewServer builds the router and registers every route.
func NewServer(sched *scheduler.Scheduler, agents scheduler.AgentRepository, pool Pinger) *Server {
	s := &Server{engine: gin.New(), scheduler: sched, agents: agents, pool: pool}
	s.engine.Use(gin.Recovery(), gin.Logger())
	s.setupRoutes()
	return s
}

// Engine exposes the underlying router, e.g. for http.Server wiring.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.POST("/triggers/:pipeline", s.handleTrigger)
	s.engine.POST("/approvals/:id/approve", s.handleApprovalDecision(true))
	s.engine.POST("/approvals/:id/reject", s.handleApprovalDecision(false))
	s.engine.POST("/runs/:id/cancel", s.handleCancelRun)
	s.engine.POST("/agents/register", s.handleAgentRegister)
	s.engine.POST("/agents/:id/heartbeat", s.handleAgentHeartbeat)
	s.engine.DELETE("/agents/:id", s.handleAgentDeregister)
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Database: err.Error()})
		return
	}
	c.JSON(http.StatusOK, healthResponse{Status: "healthy", Database: "ok"})
}

type triggerRequest struct {
	Type         string            `json:"type" binding:"required"`
	Branch       string            `json:"branch"`
	Tag          string            `json:"tag"`
	ChangedPaths []string          `json:"changed_paths"`
	GitRef       string            `json:"git_ref"`
	GitSHA       string            `json:"git_sha"`
	Author       string            `json:"author"`
	Metadata     map[string]string `json:"metadata"`
}

// handleTrigger implements the webhook entry point into
// Scheduler.HandleTrigger.
func (s *Server) handleTrigger(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event := domain.TriggerEvent{
		Type:         domain.TriggerType(req.Type),
		Branch:       req.Branch,
		Tag:          req.Tag,
		ChangedPaths: req.ChangedPaths,
		GitRef:       req.GitRef,
		GitSHA:       req.GitSHA,
		Author:       req.Author,
		Metadata:     req.Metadata,
	}
	if err := s.scheduler.HandleTrigger(c.Request.Context(), event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

type approvalDecisionRequest struct {
	User string `json:"user" binding:"required"`
}

func (s *Server) handleApprovalDecision(approve bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		gateID, err := domain.ParseID(c.Param("id"), domain.KindApproval)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var req approvalDecisionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := s.scheduler.ResolveApproval(c.Request.Context(), gateID, req.User, approve); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "resolved"})
	}
}

type agentRegisterRequest struct {
	Name              string              `json:"name" binding:"required"`
	Labels            []string            `json:"labels"`
	Capabilities      []domain.Capability `json:"capabilities"`
	OS                string              `json:"os"`
	Arch              string              `json:"arch"`
	MaxConcurrentJobs int                 `json:"max_concurrent_jobs"`
}

// handleAgentRegister implements the executor-side registration call,
// returning the freshly minted agent ID.
func (s *Server) handleAgentRegister(c *gin.Context) {
	var req agentRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	agent := &domain.Agent{
		ID:                domain.NewID(domain.KindAgent),
		Name:              req.Name,
		Labels:            req.Labels,
		Capabilities:      req.Capabilities,
		OS:                req.OS,
		Arch:              req.Arch,
		MaxConcurrentJobs: req.MaxConcurrentJobs,
		Status:            domain.AgentIdle,
		RegisteredAt:      time.Now(),
	}
	if err := s.agents.Register(c.Request.Context(), agent); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"agent_id": agent.ID.String()})
}

type agentHeartbeatRequest struct {
	Metrics map[string]float64 `json:"metrics"`
}

func (s *Server) handleAgentHeartbeat(c *gin.Context) {
	agentID, err := domain.ParseID(c.Param("id"), domain.KindAgent)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req agentHeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.agents.Heartbeat(c.Request.Context(), agentID, req.Metrics); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAgentDeregister(c *gin.Context) {
	agentID, err := domain.ParseID(c.Param("id"), domain.KindAgent)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.agents.Deregister(c.Request.Context(), agentID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deregistered"})
}

func (s *Server) handleCancelRun(c *gin.Context) {
	runID, err := domain.ParseID(c.Param("id"), domain.KindRun)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.scheduler.CancelRun(c.Request.Context(), runID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}
