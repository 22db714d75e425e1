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

type RechargeHandler struct {
	service   *services.RechargeService
	audit     *audit.Logger
	validator *services.ValidationHelper
}

type orderStatusRequest struct {
	Status    string `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	AdminNote string `json:"adminNote" validate:"max=500"`
}

func NewRechargeHandler(service *services.RechargeService, auditLogger *audit.Logger) *RechargeHandler {
	return &RechargeHandler{
		service:   service,
		audit:     auditLogger,
		validator: services.NewValidationHelper(),
	}
}

// ListPlans returns recharge plans
// @Summary List recharge plans
// @Description List active recharge plans; admins may include inactive ones
// @Tags recharge
// @Produce json
// @Param includeInactive query bool false "Include inactive plans"
// @Success 200 {object} object{plans=[]models.RechargePlan}
// @Router /recharge/plans [get]
func (h *RechargeHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("includeInactive"))

	plans, err := h.service.ListPlans(r.Context(), includeInactive)
	if err != nil {
		log.Printf("[RECHARGE] Plan listing failed: %v", err)
		services.SendErrorResponse(w, "Failed to list plans", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{"plans": plans})
}

// CreatePlan creates a plan (admin)
// @Summary Create recharge plan
// @Tags recharge
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.PlanInput true "Plan fields"
// @Success 201 {object} models.RechargePlan
// @Failure 400 {object} services.ErrorResponse
// @Router /recharge/plans [post]
func (h *RechargeHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var input services.PlanInput
	if err := services.DecodeJSONBody(w, r, &input); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&input); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	plan, err := h.service.CreatePlan(r.Context(), &input)
	if err != nil {
		log.Printf("[RECHARGE] Plan creation failed: %v", err)
		services.SendErrorResponse(w, "Failed to create plan", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSON(w, http.StatusCreated, plan)
}

// UpdatePlan updates a plan (admin)
// @Summary Update recharge plan
// @Tags recharge
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param planId path int true "Plan ID"
// @Param request body services.PlanInput true "Plan fields"
// @Success 200 {object} models.RechargePlan
// @Failure 404 {object} services.ErrorResponse
// @Router /recharge/plans/{planId} [put]
func (h *RechargeHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	planID, err := strconv.Atoi(chi.URLParam(r, "planId"))
	if err != nil {
		services.SendErrorResponse(w, "Invalid plan ID", http.StatusBadRequest, nil)
		return
	}

	var input services.PlanInput
	if err := services.DecodeJSONBody(w, r, &input); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&input); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	plan, err := h.service.UpdatePlan(r.Context(), planID, &input)
	if errors.Is(err, services.ErrPlanNotFound) {
		services.SendErrorResponse(w, "Plan not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[RECHARGE] Plan update failed for %d: %v", planID, err)
		services.SendErrorResponse(w, "Failed to update plan", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, plan)
}

// DeletePlan deletes a plan (admin)
// @Summary Delete recharge plan
// @Tags recharge
// @Security BearerAuth
// @Param planId path int true "Plan ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} services.ErrorResponse
// @Router /recharge/plans/{planId} [delete]
func (h *RechargeHandler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	planID, err := strconv.Atoi(chi.URLParam(r, "planId"))
	if err != nil {
		services.SendErrorResponse(w, "Invalid plan ID", http.StatusBadRequest, nil)
		return
	}

	err = h.service.DeletePlan(r.Context(), planID)
	if errors.Is(err, services.ErrPlanNotFound) {
		services.SendErrorResponse(w, "Plan not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[RECHARGE] Plan delete failed for %d: %v", planID, err)
		services.SendErrorResponse(w, "Failed to delete plan", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]string{"message": "Plan deleted successfully"})
}

// CreateOrder opens a recharge order
// @Summary Create recharge order
// @Description Open a pending top-up order for the authenticated user
// @Tags recharge
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.OrderInput true "Order fields"
// @Success 201 {object} models.RechargeOrder
// @Failure 400 {object} services.ErrorResponse
// @Router /recharge/orders [post]
func (h *RechargeHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var input services.OrderInput
	if err := services.DecodeJSONBody(w, r, &input); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&input); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), user.ID, &input)
	switch {
	case errors.Is(err, services.ErrPlanNotFound):
		services.SendErrorResponse(w, "Plan not found", http.StatusNotFound, nil)
		return
	case errors.Is(err, services.ErrInvalidAmount):
		services.SendErrorResponse(w, "Order must carry a positive point amount", http.StatusBadRequest, nil)
		return
	case err != nil:
		log.Printf("[RECHARGE] Order creation failed for user %s: %v", user.ID, err)
		services.SendErrorResponse(w, "Failed to create order", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSON(w, http.StatusCreated, order)
}

// PaymentQR returns the payment QR for a pending order
// @Summary Order payment QR
// @Description Render the payment QR code for one of the caller's pending orders
// @Tags recharge
// @Produce json
// @Security BearerAuth
// @Param orderId path int true "Order ID"
// @Success 200 {object} object{qrImage=string}
// @Failure 404 {object} services.ErrorResponse
// @Router /recharge/orders/{orderId}/qr [get]
func (h *RechargeHandler) PaymentQR(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderId"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid order ID", http.StatusBadRequest, nil)
		return
	}

	qrImage, err := h.service.PaymentQR(r.Context(), user.ID, orderID)
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		services.SendErrorResponse(w, "Order not found", http.StatusNotFound, nil)
		return
	case errors.Is(err, services.ErrOrderNotPending):
		services.SendErrorResponse(w, "Order is not pending", http.StatusConflict, nil)
		return
	case err != nil:
		log.Printf("[RECHARGE] QR generation failed for order %d: %v", orderID, err)
		services.SendErrorResponse(w, "Failed to generate payment QR", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{"qrImage": qrImage})
}

// MyOrders lists the caller's orders
// @Summary My recharge orders
// @Tags recharge
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{orders=[]models.RechargeOrder}
// @Router /recharge/orders/my [get]
func (h *RechargeHandler) MyOrders(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	orders, err := h.service.ListUserOrders(r.Context(), user.ID)
	if err != nil {
		log.Printf("[RECHARGE] Order listing failed for user %s: %v", user.ID, err)
		services.SendErrorResponse(w, "Failed to list orders", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// ListOrders lists all orders (admin)
// @Summary List recharge orders
// @Tags recharge
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status"
// @Success 200 {object} object{orders=[]models.RechargeOrder}
// @Router /recharge/orders [get]
func (h *RechargeHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		log.Printf("[RECHARGE] Admin order listing failed: %v", err)
		services.SendErrorResponse(w, "Failed to list orders", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// UpdateOrder approves or rejects a pending order (admin)
// @Summary Update recharge order
// @Description Approve (credits points) or reject a pending order
// @Tags recharge
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orderId path int true "Order ID"
// @Param request body object{status=string,adminNote=string} true "Status transition"
// @Success 200 {object} models.RechargeOrder
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse "Order already settled"
// @Router /recharge/orders/{orderId} [put]
func (h *RechargeHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	admin := currentUser(r)
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderId"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid order ID", http.StatusBadRequest, nil)
		return
	}

	var req orderStatusRequest
	if err := services.DecodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	order, err := h.service.ApproveOrder(r.Context(), orderID, admin.ID, req.Status, req.AdminNote)
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		services.SendErrorResponse(w, "Order not found", http.StatusNotFound, nil)
		return
	case errors.Is(err, services.ErrOrderNotPending):
		services.SendErrorResponse(w, "Order is not pending", http.StatusConflict, nil)
		return
	case err != nil:
		log.Printf("[RECHARGE] Order update failed for %d: %v", orderID, err)
		services.SendErrorResponse(w, "Failed to update order", http.StatusInternalServerError, nil)
		return
	}

	if order.Status == models.OrderCompleted {
		h.audit.LogOperation(admin.ID, audit.ActionOrderApprove, "recharge_order",
			order.OrderNo, r.RemoteAddr, r.UserAgent(),
			"Credited "+strconv.FormatInt(order.Points, 10)+" points")
	}

	services.SendJSON(w, http.StatusOK, order)
}
