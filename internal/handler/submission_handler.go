package handler

import (
	"net/http"
	"strconv"

	"idportal/internal/apperr"
	"idportal/internal/middleware"
	"idportal/internal/model"
	"idportal/internal/service"
	"idportal/pkg/pagination"
	"idportal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubmissionHandler serves the /candidate routes.
type SubmissionHandler struct {
	submissions service.SubmissionService
	batch       *service.BatchService
	parser      middleware.IdentityParser
	log         *zap.Logger
}

func NewSubmissionHandler(submissions service.SubmissionService, batch *service.BatchService, parser middleware.IdentityParser, log *zap.Logger) *SubmissionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SubmissionHandler{submissions: submissions, batch: batch, parser: parser, log: log}
}

type verifyTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type sendToVendorRequest struct {
	IDs      []string   `json:"ids" binding:"required"`
	VendorID *uuid.UUID `json:"vendorId"`
}

func (h *SubmissionHandler) RegisterRoutes(router *gin.RouterGroup) {
	staff := middleware.RequireRole(h.parser, model.RoleHR, model.RoleAdmin)
	admin := middleware.RequireRole(h.parser, model.RoleAdmin)

	group := router.Group("/candidate")
	{
		// candidate link holders
		group.POST("/verify-token", h.VerifyToken)
		group.POST("/submit-form/:id", middleware.OptionalAuth(h.parser), h.SubmitForm)

		group.POST("/create", staff, h.Create)
		group.GET("/list", staff, h.List)
		group.GET("/approved-submissions", staff, h.queue(model.StageAdmin, model.StatusApproved))
		group.GET("/assigned-candidates", staff, h.queue(model.StageVendor, model.StatusApproved))
		group.GET("/completed-submissions", staff, h.queue("", model.StatusDone))
		group.GET("/:id", staff, h.Get)
		group.GET("/:id/history", staff, h.History)
		group.PATCH("/update/:id", staff, h.Update)
		group.POST("/resend-invite/:id", staff, h.ResendInvite)

		group.POST("/request-changes/:id", staff, h.transition(service.ActionRequestChanges))
		group.PATCH("/approve/:id", staff, h.transition(service.ActionApprove))
		group.PATCH("/reject/:id", admin, h.transition(service.ActionReject))
		group.POST("/reopen/:id", admin, h.transition(service.ActionReopen))
		group.POST("/send-to-vendor", admin, h.SendToVendor)
	}
}

// Create opens a submission
// @Summary      Create a submission
// @Description  Opens a NEW_APPLICATION (the candidate is emailed an invite link) or a LOST_AND_FOUND walk-in
// @Tags         candidate
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateSubmissionRequest  true  "Candidate details"
// @Success      201      {object}  response.Response{data=service.TransitionResult}
// @Failure      403      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /candidate/create [post]
func (h *SubmissionHandler) Create(c *gin.Context) {
	var req service.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	res, err := h.submissions.Create(c.Request.Context(), actor(c), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// List searches submissions
// @Summary      List submissions
// @Tags         candidate
// @Produce      json
// @Security     BearerAuth
// @Param        search      query     string  false  "Name, email or employee ID"
// @Param        status      query     string  false  "PENDING, APPROVED, NEED_CHANGES, DONE or REJECTED"
// @Param        stage       query     string  false  "CANDIDATE, HR, ADMIN or VENDOR"
// @Param        type        query     string  false  "NEW_APPLICATION or LOST_AND_FOUND"
// @Param        locationId  query     string  false  "Location ID"
// @Param        vendorId    query     string  false  "Vendor ID"
// @Param        page        query     int     false  "Page number (default 1)"
// @Param        limit       query     int     false  "Items per page (default 20)"
// @Success      200         {object}  response.Response{data=pagination.Page[model.Submission]}
// @Router       /candidate/list [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	q, ok := parseQuery(c)
	if !ok {
		return
	}
	h.respondList(c, q)
}

// queue is a fixed-filter view of the listing.
func (h *SubmissionHandler) queue(stage model.Stage, status model.Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, ok := parseQuery(c)
		if !ok {
			return
		}
		q.Stage, q.Status = stage, status
		h.respondList(c, q)
	}
}

func (h *SubmissionHandler) respondList(c *gin.Context, q service.SubmissionQuery) {
	page, err := h.submissions.List(c.Request.Context(), actor(c), q)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, page))
}

func parseQuery(c *gin.Context) (service.SubmissionQuery, bool) {
	p := pagination.Parse(c)
	q := service.SubmissionQuery{
		Search: c.Query("search"),
		Status: model.Status(c.Query("status")),
		Stage:  model.Stage(c.Query("stage")),
		Type:   model.SubmissionType(c.Query("type")),
		Page:   p.Page,
		Limit:  p.Limit,
	}
	var ok bool
	if q.LocationID, ok = queryUUID(c, "locationId"); !ok {
		return q, false
	}
	if q.VendorID, ok = queryUUID(c, "vendorId"); !ok {
		return q, false
	}
	return q, true
}

// Get fetches one submission
// @Summary      Get a submission
// @Description  Returns the submission and the actions the caller may take on it
// @Tags         candidate
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response{data=service.SubmissionView}
// @Failure      404  {object}  response.Response
// @Router       /candidate/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	view, err := h.submissions.Get(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, view))
}

// History lists the audit entries of one submission
// @Summary      Submission history
// @Tags         candidate
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response{data=[]model.AuditLog}
// @Router       /candidate/{id}/history [get]
func (h *SubmissionHandler) History(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	logs, err := h.submissions.History(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, logs))
}

// Update edits candidate details
// @Summary      Edit submission details
// @Description  Changes name, email, employee ID or location without moving the submission
// @Tags         candidate
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                           true  "Submission ID"
// @Param        payload  body      service.UpdateSubmissionRequest  true  "Fields to change"
// @Success      200      {object}  response.Response{data=model.Submission}
// @Failure      409      {object}  response.Response
// @Router       /candidate/update/{id} [patch]
func (h *SubmissionHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	sub, err := h.submissions.UpdateDetails(c.Request.Context(), actor(c), id, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, sub))
}

// ResendInvite mails the candidate a fresh link
// @Summary      Resend the candidate invite
// @Tags         candidate
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response{data=service.TransitionResult}
// @Failure      409  {object}  response.Response
// @Router       /candidate/resend-invite/{id} [post]
func (h *SubmissionHandler) ResendInvite(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.submissions.ResendInvite(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// transition applies one lifecycle action. The body is optional and carries
// comment, vendorId, locationId, stage and expectedVersion as the action needs.
// @Summary      Apply a lifecycle transition
// @Tags         candidate
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                   true   "Submission ID"
// @Param        payload  body      service.TransitionInput  false  "Transition inputs"
// @Success      200      {object}  response.Response{data=service.TransitionResult}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /candidate/approve/{id} [patch]
func (h *SubmissionHandler) transition(action service.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var in service.TransitionInput
		if !bindOptionalJSON(c, &in) {
			return
		}
		res, err := h.submissions.Transition(c.Request.Context(), actor(c), id, action, in)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
	}
}

// SendToVendor assigns approved submissions to a vendor
// @Summary      Send submissions to a vendor
// @Description  Applies SEND_TO_VENDOR to every id independently; the result lists each item's outcome
// @Tags         candidate
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      sendToVendorRequest  true  "Submission ids and vendor"
// @Success      200      {object}  response.Response{data=service.BatchResult}
// @Failure      404      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /candidate/send-to-vendor [post]
func (h *SubmissionHandler) SendToVendor(c *gin.Context) {
	var req sendToVendorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	res, err := h.batch.SendToVendor(c.Request.Context(), actor(c), req.IDs, req.VendorID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// VerifyToken resolves a candidate link
// @Summary      Verify a candidate link
// @Description  Returns the submission the link belongs to without consuming the link
// @Tags         candidate
// @Accept       json
// @Produce      json
// @Param        payload  body      verifyTokenRequest  true  "Candidate link token"
// @Success      200      {object}  response.Response{data=service.SubmissionView}
// @Failure      401      {object}  response.Response
// @Router       /candidate/verify-token [post]
func (h *SubmissionHandler) VerifyToken(c *gin.Context) {
	var req verifyTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	view, err := h.submissions.VerifyCandidateToken(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, view))
}

// SubmitForm uploads the photo and submits the application
// @Summary      Submit the candidate form
// @Description  Candidates authenticate with the link token; HR and admins may submit walk-ins with their session
// @Tags         candidate
// @Accept       multipart/form-data
// @Produce      json
// @Param        id               path      string  true   "Submission ID"
// @Param        token            formData  string  false  "Candidate link token"
// @Param        employeeID       formData  string  false  "Employee ID"
// @Param        expectedVersion  formData  int     false  "Version the form was loaded at"
// @Param        profileImage     formData  file    false  "Photo (JPEG, PNG or WebP)"
// @Success      200              {object}  response.Response{data=service.TransitionResult}
// @Failure      401              {object}  response.Response
// @Failure      422              {object}  response.Response
// @Router       /candidate/submit-form/{id} [post]
func (h *SubmissionHandler) SubmitForm(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	req := service.SubmitFormRequest{
		Token:      c.PostForm("token"),
		EmployeeID: c.PostForm("employeeID"),
	}
	if raw := c.PostForm("expectedVersion"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, h.log, apperr.Validation("expectedVersion", "expectedVersion must be a number"))
			return
		}
		req.ExpectedVersion = &v
	}

	if fh, err := c.FormFile("profileImage"); err == nil {
		f, err := fh.Open()
		if err != nil {
			respondError(c, h.log, apperr.Validation("profileImage", "the uploaded photo could not be read"))
			return
		}
		defer f.Close()
		req.Photo = f
	}

	var staff *model.Identity
	if who, ok := middleware.IdentityFromContext(c); ok {
		staff = &who
	}

	res, err := h.submissions.Submit(c.Request.Context(), staff, id, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}
