package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/danieldreier/mcp-lumi/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Sender is the set of emails the service can send.
type Sender interface {
	SendVerification(ctx context.Context, to, name, link string) (string, error)
	SendPasswordReset(ctx context.Context, to, name, link string) (string, error)
	SendFriendInvitation(ctx context.Context, to, inviterName, link string) (string, error)
	SendTest(ctx context.Context, to string) (string, error)
}

type verificationRequest struct {
	Email            string `json:"email" binding:"required,email"`
	Name             string `json:"name"`
	VerificationLink string `json:"verificationLink" binding:"required,url"`
}

type passwordResetRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Name      string `json:"name"`
	ResetLink string `json:"resetLink" binding:"required,url"`
}

type friendInvitationRequest struct {
	Email       string `json:"email" binding:"required,email"`
	InviterName string `json:"inviterName" binding:"required"`
	InviteLink  string `json:"inviteLink" binding:"required,url"`
}

type testEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type sendResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

const userIDKey = "user_id"

// newRouter wires the mail endpoints. POST routes require a Supabase bearer token when jwtSecret is set.
func newRouter(sender Sender, jwtSecret string, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/")
	if jwtSecret != "" {
		api.Use(supabaseAuth([]byte(jwtSecret), logger))
	}

	api.POST("/send-verification", func(c *gin.Context) {
		var req verificationRequest
		if !bind(c, &req) {
			return
		}
		id, err := sender.SendVerification(c.Request.Context(), req.Email, displayName(req.Name, req.Email), req.VerificationLink)
		respond(c, id, err)
	})

	api.POST("/send-password-reset", func(c *gin.Context) {
		var req passwordResetRequest
		if !bind(c, &req) {
			return
		}
		id, err := sender.SendPasswordReset(c.Request.Context(), req.Email, displayName(req.Name, req.Email), req.ResetLink)
		respond(c, id, err)
	})

	api.POST("/send-friend-invitation", func(c *gin.Context) {
		var req friendInvitationRequest
		if !bind(c, &req) {
			return
		}
		id, err := sender.SendFriendInvitation(c.Request.Context(), req.Email, req.InviterName, req.InviteLink)
		respond(c, id, err)
	})

	api.POST("/test-email", func(c *gin.Context) {
		var req testEmailRequest
		if !bind(c, &req) {
			return
		}
		id, err := sender.SendTest(c.Request.Context(), req.Email)
		respond(c, id, err)
	})

	return r
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, sendResponse{Error: err.Error()})
		return false
	}
	return true
}

func respond(c *gin.Context, id string, err error) {
	if err != nil {
		c.JSON(http.StatusBadGateway, sendResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, sendResponse{Success: true, MessageID: id})
}

// displayName falls back to the local part of the address.
func displayName(name, email string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}

// supabaseAuth accepts "Bearer <jwt>" signed with the project's HS256 secret and stores the sub claim.
func supabaseAuth(secret []byte, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, sendResponse{Error: "Unauthorized"})
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			logger.Warn("Rejected bearer token",
				zap.String("path", c.FullPath()),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, sendResponse{Error: "Unauthorized"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, sendResponse{Error: "Unauthorized"})
			return
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, sendResponse{Error: "Unauthorized"})
			return
		}
		c.Set(userIDKey, sub)
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()))
	}
}
