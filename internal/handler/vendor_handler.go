package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"idportal/internal/middleware"
	"idportal/internal/model"
	"idportal/internal/service"
	"idportal/pkg/pagination"
	"idportal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// VendorHandler serves the vendor directory and the vendor's own work queue.
type VendorHandler struct {
	vendorService service.VendorService
	submissions   service.SubmissionService
	batch         *service.BatchService
	authService   service.AuthService
	parser        middleware.IdentityParser
	log           *zap.Logger
}

func NewVendorHandler(vendorService service.VendorService, submissions service.SubmissionService, batch *service.BatchService, authService service.AuthService, parser middleware.IdentityParser, log *zap.Logger) *VendorHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &VendorHandler{
		vendorService: vendorService,
		submissions:   submissions,
		batch:         batch,
		authService:   authService,
		parser:        parser,
		log:           log,
	}
}

type idsRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

func (h *VendorHandler) RegisterRoutes(router *gin.RouterGroup) {
	admin := middleware.RequireRole(h.parser, model.RoleAdmin)
	staff := middleware.RequireRole(h.parser, model.RoleAdmin, model.RoleHR)
	vendor := middleware.RequireRole(h.parser, model.RoleVendor)
	cards := middleware.RequireRole(h.parser, model.RoleVendor, model.RoleAdmin)

	group := router.Group("/vendor")
	{
		group.POST("/create", admin, h.Create)
		group.GET("/list", admin, h.List)
		group.PATCH("/update/:id", admin, h.Update)
		group.DELETE("/delete/:id", admin, h.Delete)
		group.GET("/suggest", staff, h.Suggest)
		group.POST("/send-email", admin, h.SendEmail)

		group.GET("/assigned-candidates", vendor, h.queue(model.StageVendor, model.StatusApproved))
		group.GET("/assigned-completed-submissions", vendor, h.queue(model.StageVendor, model.StatusDone))
		group.PATCH("/mark-completed/:id", vendor, h.MarkCompleted)

		group.GET("/download-card/:id", cards, h.DownloadCard)
		group.POST("/download-cards", cards, h.DownloadCards)
		group.POST("/download-mark-done", vendor, h.DownloadAndMarkDone)
	}
}

// Create adds a vendor
// @Summary      Create a vendor
// @Tags         vendor
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateVendorRequest  true  "Vendor"
// @Success      201      {object}  response.Response{data=model.Vendor}
// @Failure      409      {object}  response.Response
// @Router       /vendor/create [post]
func (h *VendorHandler) Create(c *gin.Context) {
	var req service.CreateVendorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	v, err := h.vendorService.Create(c.Request.Context(), actor(c), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, v))
}

// @Summary      List vendors
// @Tags         vendor
// @Produce      json
// @Security     BearerAuth
// @Param        search  query     string  false  "Name or email"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 20)"
// @Success      200     {object}  response.Response{data=pagination.Page[model.Vendor]}
// @Router       /vendor/list [get]
func (h *VendorHandler) List(c *gin.Context) {
	p := pagination.Parse(c)
	page, err := h.vendorService.List(c.Request.Context(), c.Query("search"), p.Page, p.Limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, page))
}

// Update changes contact details. The email is fixed once created.
// @Summary      Update a vendor
// @Tags         vendor
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                       true  "Vendor ID"
// @Param        payload  body      service.UpdateVendorRequest  true  "Fields to change"
// @Success      200      {object}  response.Response{data=model.Vendor}
// @Failure      422      {object}  response.Response
// @Router       /vendor/update/{id} [patch]
func (h *VendorHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateVendorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	v, err := h.vendorService.Update(c.Request.Context(), actor(c), id, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, v))
}

// @Summary      Delete a vendor
// @Tags         vendor
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Vendor ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /vendor/delete/{id} [delete]
func (h *VendorHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.vendorService.Delete(c.Request.Context(), actor(c), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Deleted successfully"}))
}

// @Summary      Suggest vendors
// @Tags         vendor
// @Produce      json
// @Security     BearerAuth
// @Param        search  query     string  false  "Prefix"
// @Success      200     {object}  response.Response{data=[]model.Vendor}
// @Router       /vendor/suggest [get]
func (h *VendorHandler) Suggest(c *gin.Context) {
	vendors, err := h.vendorService.Suggest(c.Request.Context(), c.Query("search"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, vendors))
}

// SendEmail mails a sign-in link to a vendor
// @Summary      Send a vendor sign-in link
// @Tags         vendor
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      sendEmailRequest  true  "Vendor email"
// @Success      200      {object}  response.Response{data=service.NotificationStatus}
// @Router       /vendor/send-email [post]
func (h *VendorHandler) SendEmail(c *gin.Context) {
	var req sendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	status, err := h.authService.SendLoginLink(c.Request.Context(), actor(c), model.RoleVendor, req.Email)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, status))
}

// queue lists the signed-in vendor's own assignments.
// @Summary      Vendor work queue
// @Tags         vendor
// @Produce      json
// @Security     BearerAuth
// @Param        search  query     string  false  "Name, email or employee ID"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 20)"
// @Success      200     {object}  response.Response{data=pagination.Page[model.Submission]}
// @Router       /vendor/assigned-candidates [get]
func (h *VendorHandler) queue(stage model.Stage, status model.Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, ok := parseQuery(c)
		if !ok {
			return
		}
		q.Stage, q.Status = stage, status
		page, err := h.submissions.List(c.Request.Context(), actor(c), q)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, response.Success(http.StatusOK, page))
	}
}

// MarkCompleted records that a card has been produced
// @Summary      Mark a card completed
// @Tags         vendor
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                   true   "Submission ID"
// @Param        payload  body      service.TransitionInput  false  "expectedVersion"
// @Success      200      {object}  response.Response{data=service.TransitionResult}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /vendor/mark-completed/{id} [patch]
func (h *VendorHandler) MarkCompleted(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in service.TransitionInput
	if !bindOptionalJSON(c, &in) {
		return
	}
	res, err := h.submissions.Transition(c.Request.Context(), actor(c), id, service.ActionMarkCompleted, in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// DownloadCard renders one card as PDF
// @Summary      Download a card
// @Tags         vendor
// @Produce      application/pdf
// @Security     BearerAuth
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {file}    binary
// @Failure      403  {object}  response.Response
// @Failure      502  {object}  response.Response
// @Router       /vendor/download-card/{id} [get]
func (h *VendorHandler) DownloadCard(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	data, name, err := h.batch.DownloadCard(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Header("Content-Disposition", attachment(name))
	c.Data(http.StatusOK, "application/pdf", data)
}

// DownloadCards bundles the requested cards into a ZIP
// @Summary      Download cards
// @Description  Per-item outcomes are in results.json inside the archive
// @Tags         vendor
// @Accept       json
// @Produce      application/zip
// @Security     BearerAuth
// @Param        payload  body      idsRequest  true  "Submission ids"
// @Success      200      {file}    binary
// @Router       /vendor/download-cards [post]
func (h *VendorHandler) DownloadCards(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	archive, err := h.batch.DownloadCards(c.Request.Context(), actor(c), req.IDs)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.sendArchive(c, "cards", archive)
}

// DownloadAndMarkDone renders each card and moves it to DONE
// @Summary      Download cards and mark them done
// @Description  Only cards that rendered are marked DONE; results.json lists every item
// @Tags         vendor
// @Accept       json
// @Produce      application/zip
// @Security     BearerAuth
// @Param        payload  body      idsRequest  true  "Submission ids"
// @Success      200      {file}    binary
// @Router       /vendor/download-mark-done [post]
func (h *VendorHandler) DownloadAndMarkDone(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	archive, err := h.batch.DownloadAndMarkDone(c.Request.Context(), actor(c), req.IDs)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.sendArchive(c, "cards-done", archive)
}

func (h *VendorHandler) sendArchive(c *gin.Context, prefix string, archive *service.CardArchive) {
	name := fmt.Sprintf("%s-%s.zip", prefix, time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", attachment(name))
	c.Header("X-Batch-Succeeded", strconv.Itoa(archive.Result.Succeeded))
	c.Header("X-Batch-Failed", strconv.Itoa(archive.Result.Failed))
	c.Data(http.StatusOK, "application/zip", archive.Data)
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}
