package handler

import (
	"net/http"
	"time"

	"idportal/internal/middleware"
	"idportal/internal/service"
	"idportal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService  service.AuthService
	parser       middleware.IdentityParser
	tokenTTL     time.Duration
	secureCookie bool
	log          *zap.Logger
}

func NewAuthHandler(authService service.AuthService, parser middleware.IdentityParser, tokenTTL time.Duration, secureCookie bool, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{authService: authService, parser: parser, tokenTTL: tokenTTL, secureCookie: secureCookie, log: log}
}

func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/auth/login", h.Login)
	router.POST("/auth/verify", h.Verify)
	router.POST("/logout", h.Logout)
	router.GET("/me", middleware.RequireRole(h.parser), h.GetMe)
}

// Login mails a sign-in link
// @Summary      Request a sign-in link
// @Description  Mails a single-use sign-in link to an admin, HR or vendor account. Unknown accounts get the same answer.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginRequest  true  "Email and role"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Failure      502      {object}  response.Response
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	if err := h.authService.RequestLogin(c.Request.Context(), req); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{
		"message": "If the account exists, a sign-in link has been sent.",
	}))
}

// Verify redeems a sign-in link
// @Summary      Verify a sign-in link
// @Description  Consumes the link token, sets the access_token cookie and returns the identity and JWT
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.VerifyRequest  true  "Link token"
// @Success      200      {object}  response.Response{data=service.VerifyResponse}
// @Failure      401      {object}  response.Response
// @Router       /auth/verify [post]
func (h *AuthHandler) Verify(c *gin.Context) {
	var req service.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	res, err := h.authService.Verify(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	middleware.SetTokenCookie(c, res.Token, h.tokenTTL, h.secureCookie)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// GetMe returns the signed-in identity
// @Summary      Get current user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200      {object}  response.Response{data=service.Profile}
// @Failure      401      {object}  response.Response
// @Router       /me [get]
func (h *AuthHandler) GetMe(c *gin.Context) {
	p, err := h.authService.Me(c.Request.Context(), actor(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p))
}

// Logout clears the access token cookie
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Success      200      {object}  response.Response
// @Router       /logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	middleware.ClearTokenCookie(c, h.secureCookie)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Logged out successfully"}))
}
