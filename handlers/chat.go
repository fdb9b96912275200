package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/betterocean/betterocean/api-service/internal/chat"
)

// ChatHandler proxies the dashboard chat widget to the Gradient agent.
type ChatHandler struct {
	svc *chat.Service
}

func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{svc: svc}
}

func (h *ChatHandler) Register(g gin.IRouter) {
	g.POST("/chat/message", h.Message)
}

// Message forwards the conversation to the agent and returns the reply text.
// Upstream error statuses are passed through so the client can show rate
// limits and auth failures distinctly.
func (h *ChatHandler) Message(c *gin.Context) {
	if !h.svc.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": chat.ErrNotConfigured.Error()})
		return
	}

	var req struct {
		Messages []chat.Message `json:"messages"`
	}
	_ = c.ShouldBindJSON(&req)
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must include a non-empty messages array."})
		return
	}

	reply, err := h.svc.Complete(c.Request.Context(), req.Messages)
	if err != nil {
		if status, message, ok := chat.UpstreamStatus(err); ok {
			c.JSON(status, gin.H{"error": message})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}
