package http

import (
	"context"
	"net/http"
	"time"

	"ozzus/netcheck-agent/internal/domain"

	"github.com/gin-gonic/gin"
)

// StatusProvider is the read-only view of the agent the HTTP API serves.
type StatusProvider interface {
	HealthCheck(ctx context.Context) error
	Ready(ctx context.Context) error
	GetStatus() domain.AgentStatus
}

type HealthController struct {
	agent   StatusProvider
	agentID string
	now     func() time.Time
}

func NewHealthController(agent StatusProvider, agentID string) *HealthController {
	return &HealthController{
		agent:   agent,
		agentID: agentID,
		now:     time.Now,
	}
}

// Health отвечает 200, пока сервис агента запущен
func (h *HealthController) Health(c *gin.Context) {
	resp := domain.HealthResponse{
		Status:    domain.HealthStatusHealthy,
		Timestamp: h.now(),
		AgentID:   h.agentID,
	}

	code := http.StatusOK
	if err := h.agent.HealthCheck(c.Request.Context()); err != nil {
		code = http.StatusServiceUnavailable
		resp.Status = domain.HealthStatusUnhealthy
		resp.Message = err.Error()
	}

	c.JSON(code, resp)
}

// Ready отвечает 200 только при установленной сессии с координатором
func (h *HealthController) Ready(c *gin.Context) {
	resp := domain.ReadinessResponse{
		Status:    domain.ReadinessReady,
		Agent:     h.agentID,
		Session:   h.agent.GetStatus().Session,
		Timestamp: h.now(),
	}

	code := http.StatusOK
	if err := h.agent.Ready(c.Request.Context()); err != nil {
		code = http.StatusServiceUnavailable
		resp.Status = domain.ReadinessNotReady
		resp.Message = err.Error()
	}

	c.JSON(code, resp)
}

func (h *HealthController) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.agent.GetStatus())
}

func (h *HealthController) Info(c *gin.Context) {
	st := h.agent.GetStatus()

	c.JSON(http.StatusOK, domain.AgentInfo{
		Agent:        h.agentID,
		Version:      st.Version,
		InstanceID:   st.InstanceID,
		Capabilities: domain.Capabilities,
		StartedAt:    st.StartedAt,
		Timestamp:    h.now(),
	})
}
