package handler

import (
	"net/http"
	"strings"

	"idportal/internal/middleware"
	"idportal/internal/model"
	"idportal/internal/service"
	"idportal/pkg/pagination"
	"idportal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StaffHandler serves the /admin and /hr account directories.
type StaffHandler struct {
	staffService service.StaffService
	authService  service.AuthService
	parser       middleware.IdentityParser
	log          *zap.Logger
}

func NewStaffHandler(staffService service.StaffService, authService service.AuthService, parser middleware.IdentityParser, log *zap.Logger) *StaffHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &StaffHandler{staffService: staffService, authService: authService, parser: parser, log: log}
}

type sendEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (h *StaffHandler) RegisterRoutes(router *gin.RouterGroup) {
	for _, role := range []model.Role{model.RoleAdmin, model.RoleHR} {
		group := router.Group("/" + strings.ToLower(string(role)))
		group.Use(middleware.RequireRole(h.parser, model.RoleAdmin))
		{
			group.POST("/create", h.create(role))
			group.GET("/list", h.list(role))
			group.DELETE("/delete/:id", h.delete(role))
			group.POST("/send-email", h.sendEmail(role))
		}
	}
}

// create adds a staff account
// @Summary      Create a staff account
// @Description  Creates an ADMIN (/admin/create) or HR (/hr/create) account
// @Tags         staff
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateStaffRequest  true  "Name and email"
// @Success      201      {object}  response.Response{data=model.User}
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /hr/create [post]
func (h *StaffHandler) create(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.CreateStaffRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request payload: "+err.Error())
			return
		}
		user, err := h.staffService.Create(c.Request.Context(), actor(c), role, req)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusCreated, response.Success(http.StatusCreated, user))
	}
}

// list pages through staff accounts of one role
// @Summary      List staff accounts
// @Tags         staff
// @Produce      json
// @Security     BearerAuth
// @Param        search  query     string  false  "Name or email"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 20)"
// @Success      200     {object}  response.Response{data=pagination.Page[model.User]}
// @Router       /hr/list [get]
func (h *StaffHandler) list(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := pagination.Parse(c)
		page, err := h.staffService.List(c.Request.Context(), role, c.Query("search"), p.Page, p.Limit)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, response.Success(http.StatusOK, page))
	}
}

// delete removes a staff account
// @Summary      Delete a staff account
// @Tags         staff
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /hr/delete/{id} [delete]
func (h *StaffHandler) delete(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		if err := h.staffService.Delete(c.Request.Context(), actor(c), role, id); err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Deleted successfully"}))
	}
}

// sendEmail mails a sign-in link to a staff account
// @Summary      Send a sign-in link
// @Tags         staff
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      sendEmailRequest  true  "Account email"
// @Success      200      {object}  response.Response{data=service.NotificationStatus}
// @Router       /hr/send-email [post]
func (h *StaffHandler) sendEmail(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendEmailRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request payload: "+err.Error())
			return
		}
		status, err := h.authService.SendLoginLink(c.Request.Context(), actor(c), role, req.Email)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, response.Success(http.StatusOK, status))
	}
}
