package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/models"
	"github.com/chatform/chatform/internal/resolution"
	"github.com/chatform/chatform/internal/tools"
)

const processingApology = "I'm sorry, but I encountered an issue processing your message. Please try again."

type chatInitRequest struct {
	RedFlag         models.RedFlag              `json:"redFlag"`
	ApplicationData *models.ApplicationSnapshot `json:"applicationData"`
}

type chatMessageRequest struct {
	Message             string                      `json:"message"`
	RedFlag             models.RedFlag              `json:"redFlag"`
	ApplicationData     *models.ApplicationSnapshot `json:"applicationData"`
	ConversationHistory []models.ChatMessage        `json:"conversationHistory"`
}

type chatResponse struct {
	Role            models.Role                 `json:"role"`
	Content         string                      `json:"content"`
	Timestamp       time.Time                   `json:"timestamp"`
	Status          string                      `json:"status"`
	Error           string                      `json:"error,omitempty"`
	Action          *models.ResolutionAction    `json:"action,omitempty"`
	ToolNotes       []string                    `json:"toolNotes,omitempty"`
	State           string                      `json:"state,omitempty"`
	ApplicationData *models.ApplicationSnapshot `json:"applicationData,omitempty"`
	Audit           *models.AuditRecord         `json:"audit,omitempty"`
}

type preScreeningChatRequest struct {
	Message             string               `json:"message"`
	ConversationHistory []models.ChatMessage `json:"conversationHistory"`
}

type preScreeningCompleteRequest struct {
	Message             string               `json:"message"`
	ConversationHistory []models.ChatMessage `json:"conversationHistory"`
}

type messageResponse struct {
	Role      models.Role `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "ChatForm API is running", "version": s.deps.Version})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleValidate(c *gin.Context) {
	if s.deps.Rules == nil {
		abortWithError(c, errors.ConfigError("rule engine is not configured"))
		return
	}
	var app models.ApplicationSnapshot
	if err := c.ShouldBindJSON(&app); err != nil {
		badRequest(c, err)
		return
	}

	flags, err := s.deps.Rules.Validate(c.Request.Context(), &app)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if flags == nil {
		flags = []models.RedFlag{}
	}
	logger(c).Info("application validated", "red_flags", len(flags))
	c.JSON(http.StatusOK, gin.H{"red_flags": flags})
}

// engine rebuilds the conversation of flag over app
func (s *Server) engine(flag models.RedFlag, app *models.ApplicationSnapshot) (*resolution.Engine, *resolution.Ledger) {
	ledger := resolution.NewLedger(app, s.deps.Audit)
	deps := resolution.Deps{Model: s.deps.Model, Tools: s.deps.Tools, Builder: s.builder}
	return resolution.NewEngine(flag, ledger, deps, s.deps.Options), ledger
}

func (s *Server) requireModel(c *gin.Context) bool {
	if s.deps.Model == nil {
		abortWithError(c, errors.ConfigError("no language model is configured"))
		return false
	}
	return true
}

func (s *Server) handleChatInit(c *gin.Context) {
	if !s.requireModel(c) {
		return
	}
	var req chatInitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := models.Validate(&req.RedFlag); err != nil {
		abortWithError(c, err)
		return
	}

	e, _ := s.engine(req.RedFlag, req.ApplicationData)
	msg, err := e.Initialize(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, chatResponse{
		Role:      msg.Role,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
		Status:    "success",
		Action:    msg.Action,
		ToolNotes: msg.ToolNotes,
		State:     e.State().String(),
	})
}

// handleChatMessage runs one turn. A failed model call is reported in the
// body with status "error", so the client keeps the conversation open and
// lets the applicant resend.
func (s *Server) handleChatMessage(c *gin.Context) {
	if !s.requireModel(c) {
		return
	}
	var req chatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := models.Validate(&req.RedFlag); err != nil {
		abortWithError(c, err)
		return
	}

	e, ledger := s.engine(req.RedFlag, req.ApplicationData)
	if len(req.ConversationHistory) > 0 {
		if err := e.RestoreMessages(req.ConversationHistory); err != nil {
			abortWithError(c, err)
			return
		}
	}

	turn, err := e.SendMessage(c.Request.Context(), req.Message)
	if err != nil {
		if errors.GetType(err) != errors.ErrorTypeMessageProcessing {
			abortWithError(c, err)
			return
		}
		logger(c).Warn("chat turn failed", "rule", req.RedFlag.Rule, "error", err)
		c.JSON(http.StatusOK, chatResponse{
			Role:      models.RoleAssistant,
			Content:   processingApology,
			Timestamp: time.Now().UTC(),
			Status:    "error",
			Error:     err.Error(),
			State:     e.State().String(),
		})
		return
	}

	c.JSON(http.StatusOK, chatResponse{
		Role:            turn.Message.Role,
		Content:         turn.Message.Content,
		Timestamp:       turn.Message.Timestamp,
		Status:          "success",
		Action:          &turn.Action,
		ToolNotes:       turn.Message.ToolNotes,
		State:           turn.State.String(),
		ApplicationData: ledger.Snapshot(),
		Audit:           turn.Audit,
	})
}

func (s *Server) handlePreScreeningStart(c *gin.Context) {
	q, err := resolution.PreScreeningOpening()
	if err != nil {
		abortWithError(c, errors.InternalErrorf("pre-screening opening: %v", err))
		return
	}
	c.JSON(http.StatusOK, messageResponse{Role: models.RoleAssistant, Content: q, Timestamp: time.Now().UTC()})
}

func (s *Server) handlePreScreeningChat(c *gin.Context) {
	if !s.requireModel(c) {
		return
	}
	var req preScreeningChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := s.prescreen.Reply(c.Request.Context(), req.ConversationHistory, req.Message)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Role: msg.Role, Content: msg.Content, Timestamp: msg.Timestamp})
}

func (s *Server) handlePreScreeningComplete(c *gin.Context) {
	var req preScreeningCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := models.ValidateTranscript(req.ConversationHistory); err != nil {
		abortWithError(c, err)
		return
	}
	result := resolution.FinishPreScreening(req.ConversationHistory, req.Message, time.Now().UTC())
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleTools(c *gin.Context) {
	rule := models.RuleID(c.Query("rule"))
	var descs []tools.Descriptor
	if rule == "" {
		for _, name := range s.deps.Tools.Names() {
			if d, ok := s.deps.Tools.Describe(name); ok {
				descs = append(descs, d)
			}
		}
	} else {
		descs = s.deps.Tools.ToolsForRule(rule)
	}
	if descs == nil {
		descs = []tools.Descriptor{}
	}
	c.JSON(http.StatusOK, gin.H{"rule": rule, "tools": descs})
}
