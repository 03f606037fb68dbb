package handler

import (
	"net/http"

	"idportal/internal/middleware"
	"idportal/internal/model"
	"idportal/internal/service"
	"idportal/pkg/pagination"
	"idportal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LocationHandler serves the /location directory.
type LocationHandler struct {
	locationService service.LocationService
	parser          middleware.IdentityParser
	log             *zap.Logger
}

func NewLocationHandler(locationService service.LocationService, parser middleware.IdentityParser, log *zap.Logger) *LocationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LocationHandler{locationService: locationService, parser: parser, log: log}
}

func (h *LocationHandler) RegisterRoutes(router *gin.RouterGroup) {
	staff := middleware.RequireRole(h.parser, model.RoleAdmin, model.RoleHR)
	admin := middleware.RequireRole(h.parser, model.RoleAdmin)

	group := router.Group("/location")
	{
		group.GET("/list", staff, h.List)
		group.GET("/suggest", staff, h.Suggest)
		group.POST("/create", admin, h.Create)
		group.PATCH("/update/:id", admin, h.Update)
		group.DELETE("/delete/:id", admin, h.Delete)
	}
}

// Create adds a location
// @Summary      Create a location
// @Tags         location
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.LocationRequest  true  "Location"
// @Success      201      {object}  response.Response{data=model.Location}
// @Failure      409      {object}  response.Response
// @Router       /location/create [post]
func (h *LocationHandler) Create(c *gin.Context) {
	var req service.LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	loc, err := h.locationService.Create(c.Request.Context(), actor(c), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, loc))
}

// List pages through locations
// @Summary      List locations
// @Tags         location
// @Produce      json
// @Security     BearerAuth
// @Param        search  query     string  false  "Slug or address"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 20)"
// @Success      200     {object}  response.Response{data=pagination.Page[model.Location]}
// @Router       /location/list [get]
func (h *LocationHandler) List(c *gin.Context) {
	p := pagination.Parse(c)
	page, err := h.locationService.List(c.Request.Context(), c.Query("search"), p.Page, p.Limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, page))
}

// @Summary      Suggest locations
// @Tags         location
// @Produce      json
// @Security     BearerAuth
// @Param        search  query     string  false  "Prefix"
// @Success      200     {object}  response.Response{data=[]model.Location}
// @Router       /location/suggest [get]
func (h *LocationHandler) Suggest(c *gin.Context) {
	locs, err := h.locationService.Suggest(c.Request.Context(), c.Query("search"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, locs))
}

// @Summary      Update a location
// @Tags         location
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                         true  "Location ID"
// @Param        payload  body      service.UpdateLocationRequest  true  "Fields to change"
// @Success      200      {object}  response.Response{data=model.Location}
// @Router       /location/update/{id} [patch]
func (h *LocationHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	loc, err := h.locationService.Update(c.Request.Context(), actor(c), id, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, loc))
}

// Delete removes a location that no open submission references
// @Summary      Delete a location
// @Tags         location
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Location ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /location/delete/{id} [delete]
func (h *LocationHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.locationService.Delete(c.Request.Context(), actor(c), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Deleted successfully"}))
}
