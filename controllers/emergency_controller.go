package controllers

import (
	"net/http"
	"strconv"

	"helpnet/models"
	"helpnet/services"
	"helpnet/utils"

	"github.com/gin-gonic/gin"
)

type EmergencyController struct {
	emergencyService *services.EmergencyService
	discoveryService *services.DiscoveryService
}

func NewEmergencyController(emergencyService *services.EmergencyService, discoveryService *services.DiscoveryService) *EmergencyController {
	return &EmergencyController{
		emergencyService: emergencyService,
		discoveryService: discoveryService,
	}
}

// =================== LIFECYCLE ===================

// CreateEmergency opens a new emergency for the caller.
func (ec *EmergencyController) CreateEmergency(c *gin.Context) {
	userID := utils.GetUserID(c)
	if userID == "" {
		utils.ErrorResponse(c, http.StatusUnauthorized, utils.ErrCodeUnauthorized, "User not authenticated", nil)
		return
	}

	var req models.CreateEmergencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", nil)
		return
	}

	emergency, err := ec.emergencyService.CreateEmergency(c.Request.Context(), userID, req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, "Emergency created successfully", emergency)
}

// GetEmergency returns one emergency as seen by the caller.
func (ec *EmergencyController) GetEmergency(c *gin.Context) {
	userID := utils.GetUserID(c)
	emergencyID := c.Param("emergencyId")

	view, err := ec.emergencyService.GetEmergency(c.Request.Context(), userID, emergencyID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Emergency retrieved successfully", view)
}

// GetHistory returns the caller's own emergencies.
func (ec *EmergencyController) GetHistory(c *gin.Context) {
	userID := utils.GetUserID(c)
	limit := parseLimit(c, 20, 100)

	views, err := ec.emergencyService.GetHistory(c.Request.Context(), userID, limit)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Emergency history retrieved successfully", views)
}

// ResolveEmergency closes the emergency as handled.
func (ec *EmergencyController) ResolveEmergency(c *gin.Context) {
	userID := utils.GetUserID(c)
	emergencyID := c.Param("emergencyId")

	var req models.ResolveEmergencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", nil)
		return
	}

	emergency, err := ec.emergencyService.ResolveEmergency(c.Request.Context(), userID, emergencyID, req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Emergency resolved successfully", emergency)
}

// CancelEmergency closes the emergency as a false alarm.
func (ec *EmergencyController) CancelEmergency(c *gin.Context) {
	userID := utils.GetUserID(c)
	emergencyID := c.Param("emergencyId")

	var req models.CancelEmergencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", nil)
		return
	}

	emergency, err := ec.emergencyService.CancelEmergency(c.Request.Context(), userID, emergencyID, req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Emergency cancelled successfully", emergency)
}

// =================== RESPONDERS ===================

// AddResponder registers the caller as a helper on the emergency.
func (ec *EmergencyController) AddResponder(c *gin.Context) {
	userID := utils.GetUserID(c)
	emergencyID := c.Param("emergencyId")

	var req models.AddResponderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", nil)
		return
	}

	responder, err := ec.emergencyService.AddResponder(c.Request.Context(), userID, emergencyID, req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, "Responder added successfully", responder)
}

// UpdateResponderStatus mutates the caller's own responder entry.
func (ec *EmergencyController) UpdateResponderStatus(c *gin.Context) {
	userID := utils.GetUserID(c)
	emergencyID := c.Param("emergencyId")

	var req models.UpdateResponderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", nil)
		return
	}

	if err := ec.emergencyService.UpdateResponderStatus(c.Request.Context(), userID, emergencyID, req); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Responder status updated successfully", nil)
}

// ReportResponder flags a helper's conduct on the caller's emergency.
func (ec *EmergencyController) ReportResponder(c *gin.Context) {
	userID := utils.GetUserID(c)
	emergencyID := c.Param("emergencyId")
	helperID := c.Param("helperId")

	var req models.ReportResponderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", nil)
		return
	}

	if err := ec.emergencyService.ReportResponder(c.Request.Context(), userID, emergencyID, helperID, req); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Responder reported successfully", nil)
}

// =================== DISCOVERY ===================

// GetNearbyEmergencies returns open emergencies around a point. Discovery
// is best effort and answers with an empty list on any fault.
func (ec *EmergencyController) GetNearbyEmergencies(c *gin.Context) {
	userID := utils.GetUserID(c)

	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lon, lonErr := strconv.ParseFloat(c.Query("lon"), 64)
	if latErr != nil || lonErr != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, utils.ErrCodeValidation, "lat and lon query parameters are required", nil)
		return
	}

	radiusKm := 5.0
	if raw := c.Query("radiusKm"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			radiusKm = parsed
		}
	}

	limit := parseLimit(c, 100, 100)

	views := ec.discoveryService.NearbyActive(c.Request.Context(), userID, lat, lon, radiusKm, limit)
	utils.SuccessResponse(c, "Nearby emergencies retrieved successfully", views)
}

// GetPendingEmergencies returns open emergencies the caller could join.
func (ec *EmergencyController) GetPendingEmergencies(c *gin.Context) {
	userID := utils.GetUserID(c)

	views := ec.discoveryService.PendingForHelper(c.Request.Context(), userID)
	utils.SuccessResponse(c, "Pending emergencies retrieved successfully", views)
}

func parseLimit(c *gin.Context, fallback, max int64) int64 {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
