package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/knowhub/backend/internal/audit"
	"github.com/knowhub/backend/internal/models"
	"github.com/knowhub/backend/internal/services"
)

type ResourceHandler struct {
	service   *services.ResourceService
	audit     *audit.Logger
	validator *services.ValidationHelper
}

func NewResourceHandler(service *services.ResourceService, auditLogger *audit.Logger) *ResourceHandler {
	return &ResourceHandler{
		service:   service,
		audit:     auditLogger,
		validator: services.NewValidationHelper(),
	}
}

// currentUser rebuilds the caller from the claims the auth middleware parked
// in the context. Nil when the route allows anonymous access.
func currentUser(r *http.Request) *models.User {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		return nil
	}
	role, _ := r.Context().Value("userRole").(string)
	return &models.User{ID: userID, Role: role}
}

// List returns published resources
// @Summary List resources
// @Description List published resources with optional filters
// @Tags resources
// @Produce json
// @Param categoryId query int false "Filter by category"
// @Param isFree query bool false "Filter by free flag"
// @Param search query string false "Title search"
// @Param featured query bool false "Filter by featured flag"
// @Param pinned query bool false "Filter by pinned flag"
// @Success 200 {object} object{resources=[]models.Resource,count=int}
// @Failure 500 {object} services.ErrorResponse
// @Router /resources [get]
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := services.ResourceFilter{
		Search: r.URL.Query().Get("search"),
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("categoryId")); err == nil {
		filter.CategoryID = v
	}
	if v, err := strconv.ParseBool(r.URL.Query().Get("isFree")); err == nil {
		filter.IsFree = &v
	}
	if v, err := strconv.ParseBool(r.URL.Query().Get("featured")); err == nil {
		filter.IsFeatured = &v
	}
	if v, err := strconv.ParseBool(r.URL.Query().Get("pinned")); err == nil {
		filter.IsPinned = &v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("skip")); err == nil && v > 0 {
		filter.Skip = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		filter.Limit = v
	}

	resources, err := h.service.List(r.Context(), filter)
	if err != nil {
		log.Printf("[RESOURCE] Listing failed: %v", err)
		services.SendErrorResponse(w, "Failed to list resources", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{
		"resources": resources,
		"count":     len(resources),
	})
}

// Hot returns homepage resources
// @Summary Hot resources
// @Description Return pinned, featured and most downloaded resources
// @Tags resources
// @Produce json
// @Param limit query int false "Result count"
// @Success 200 {object} object{resources=[]models.Resource}
// @Router /resources/hot [get]
func (h *ResourceHandler) Hot(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	resources, err := h.service.Hot(r.Context(), limit)
	if err != nil {
		log.Printf("[RESOURCE] Hot listing failed: %v", err)
		services.SendErrorResponse(w, "Failed to list resources", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

// Get returns one resource
// @Summary Get resource
// @Description Retrieve a resource by ID, with the caller's purchase flag
// @Tags resources
// @Produce json
// @Param resourceId path string true "Resource ID"
// @Success 200 {object} models.Resource
// @Failure 404 {object} services.ErrorResponse
// @Router /resources/{resourceId} [get]
func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "resourceId")

	resource, err := h.service.GetForUser(r.Context(), resourceID, currentUser(r))
	if errors.Is(err, services.ErrResourceNotFound) {
		services.SendErrorResponse(w, "Resource not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[RESOURCE] Fetch failed for %s: %v", resourceID, err)
		services.SendErrorResponse(w, "Failed to fetch resource", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, resource)
}

// Create creates a resource (admin)
// @Summary Create resource
// @Description Create a published resource (admin only)
// @Tags resources
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.ResourceInput true "Resource fields"
// @Success 201 {object} models.Resource
// @Failure 400 {object} services.ErrorResponse
// @Router /resources [post]
func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var input services.ResourceInput
	if err := services.DecodeJSONBody(w, r, &input); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&input); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	resource, err := h.service.Create(r.Context(), user.ID, &input)
	if errors.Is(err, services.ErrInvalidPricing) {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err != nil {
		log.Printf("[RESOURCE] Create failed: %v", err)
		services.SendErrorResponse(w, "Failed to create resource", http.StatusInternalServerError, nil)
		return
	}

	h.audit.LogOperation(user.ID, audit.ActionResourceCreate, "resource", resource.ID, r.RemoteAddr, r.UserAgent(), "")
	services.SendJSON(w, http.StatusCreated, resource)
}

// Update updates a resource (admin)
// @Summary Update resource
// @Description Update a resource's fields (admin only)
// @Tags resources
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param resourceId path string true "Resource ID"
// @Param request body services.ResourceInput true "Resource fields"
// @Success 200 {object} models.Resource
// @Failure 404 {object} services.ErrorResponse
// @Router /resources/{resourceId} [put]
func (h *ResourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	resourceID := chi.URLParam(r, "resourceId")

	var input services.ResourceInput
	if err := services.DecodeJSONBody(w, r, &input); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&input); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	resource, err := h.service.Update(r.Context(), resourceID, &input)
	switch {
	case errors.Is(err, services.ErrResourceNotFound):
		services.SendErrorResponse(w, "Resource not found", http.StatusNotFound, nil)
		return
	case errors.Is(err, services.ErrInvalidPricing):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	case err != nil:
		log.Printf("[RESOURCE] Update failed for %s: %v", resourceID, err)
		services.SendErrorResponse(w, "Failed to update resource", http.StatusInternalServerError, nil)
		return
	}

	h.audit.LogOperation(user.ID, audit.ActionResourceUpdate, "resource", resourceID, r.RemoteAddr, r.UserAgent(), "")
	services.SendJSON(w, http.StatusOK, resource)
}

// Delete deletes a resource (admin)
// @Summary Delete resource
// @Description Delete a resource (admin only)
// @Tags resources
// @Security BearerAuth
// @Param resourceId path string true "Resource ID"
// @Success 204 "Deleted"
// @Failure 404 {object} services.ErrorResponse
// @Router /resources/{resourceId} [delete]
func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	resourceID := chi.URLParam(r, "resourceId")

	err := h.service.Delete(r.Context(), resourceID)
	if errors.Is(err, services.ErrResourceNotFound) {
		services.SendErrorResponse(w, "Resource not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[RESOURCE] Delete failed for %s: %v", resourceID, err)
		services.SendErrorResponse(w, "Failed to delete resource", http.StatusInternalServerError, nil)
		return
	}

	h.audit.LogOperation(user.ID, audit.ActionResourceDelete, "resource", resourceID, r.RemoteAddr, r.UserAgent(), "")
	w.WriteHeader(http.StatusNoContent)
}

// Download runs the access gate and returns a delivery URL
// @Summary Download resource
// @Description Charge points when needed and return the download URL
// @Tags resources
// @Produce json
// @Security BearerAuth
// @Param resourceId path string true "Resource ID"
// @Success 200 {object} services.DownloadResult
// @Failure 402 {object} services.ErrorResponse "Insufficient points"
// @Failure 404 {object} services.ErrorResponse
// @Router /resources/{resourceId}/download [post]
func (h *ResourceHandler) Download(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	resourceID := chi.URLParam(r, "resourceId")

	result, decision, err := h.service.Download(r.Context(), user, resourceID)
	switch {
	case errors.Is(err, services.ErrResourceNotFound):
		services.SendErrorResponse(w, "Resource not found", http.StatusNotFound, nil)
		return
	case errors.Is(err, services.ErrFileMissing):
		services.SendErrorResponse(w, "File not found", http.StatusNotFound, nil)
		return
	case err != nil:
		log.Printf("[RESOURCE] Download failed for %s: %v", resourceID, err)
		services.SendErrorResponse(w, "Failed to process download", http.StatusInternalServerError, nil)
		return
	}

	if !decision.Granted {
		// Expected outcome, not an incident: the client prompts a top-up.
		services.SendErrorResponse(w, "Insufficient points", http.StatusPaymentRequired, nil)
		return
	}

	h.audit.LogOperation(user.ID, audit.ActionResourceDownload, "resource", resourceID, r.RemoteAddr, r.UserAgent(), decision.Reason)
	services.SendJSON(w, http.StatusOK, result)
}

// ServeFile resolves a download token minted by Download
// @Summary Fetch file by token
// @Description Redirect a short-lived download token to the stored file
// @Tags resources
// @Param token path string true "Download token"
// @Success 302 "Redirect to file"
// @Failure 404 {object} services.ErrorResponse
// @Router /resources/files/{token} [get]
func (h *ResourceHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	fileURL, err := h.service.ResolveDownloadToken(r.Context(), token)
	if err != nil {
		services.SendErrorResponse(w, "Invalid or expired download token", http.StatusNotFound, nil)
		return
	}

	http.Redirect(w, r, fileURL, http.StatusFound)
}
