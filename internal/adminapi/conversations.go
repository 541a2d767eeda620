package adminapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/wappzakelijk/console/internal/domain"
	"github.com/wappzakelijk/console/internal/webserver"
)

type conversationStatusPayload struct {
	Status string `json:"status" validate:"required,oneof=open closed"`
}

type conversationAssignPayload struct {
	AssignedTo *string `json:"assigned_to" validate:"omitempty,max=64"`
}

type conversationCreatePayload struct {
	ContactID string `json:"contact_id" validate:"required,min=1,max=64"`
}

// registerConversationRoutes registers inbox thread routes
func registerConversationRoutes() {
	webserver.ApiGET("/conversations", listConversations)
	webserver.ApiGET("/conversations/:id", getConversation)
	webserver.ApiPOST("/conversations", createConversation)
	webserver.ApiPUT("/conversations/:id/status", updateConversationStatus)
	webserver.ApiPUT("/conversations/:id/assign", assignConversation)
	webserver.ApiDELETE("/conversations/:id", deleteConversation)
	webserver.ApiPUT("/inbox/filter", setInboxFilter)
	webserver.ApiPOST("/inbox/refresh", refreshInbox)
}

func listConversations(c echo.Context) error {
	page, pageSize := parsePagination(c)

	db := GetDB(c).Model(&domain.Conversation{}).Where("company_id = ?", companyID)
	if status := strings.TrimSpace(c.QueryParam("status")); status != "" {
		db = db.Where("status = ?", status)
	}
	if agent := strings.TrimSpace(c.QueryParam("assigned_to")); agent != "" {
		db = db.Where("assigned_to = ?", agent)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query conversations", err.Error())
	}

	var items []domain.Conversation
	err := db.Preload("Contact").
		Order("last_message_at DESC NULLS LAST").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&items).Error
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query conversations", err.Error())
	}

	return paged(c, items, total, page, pageSize)
}

func getConversation(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID", nil)
	}

	conv, err := appStore.GetConversation(c.Request().Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "Conversation not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query conversation", err.Error())
	}

	return ok(c, conv)
}

func createConversation(c echo.Context) error {
	var payload conversationCreatePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse conversation parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	ctx := c.Request().Context()
	if _, err := appStore.GetContact(ctx, payload.ContactID); errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "CONTACT_NOT_FOUND", "Contact not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query contact", err.Error())
	}

	conv, err := appStore.FindOrCreateConversation(ctx, companyID, payload.ContactID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create conversation", err.Error())
	}

	return ok(c, conv)
}

func updateConversationStatus(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID", nil)
	}

	var payload conversationStatusPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse status", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	conv, err := appStore.UpdateConversationStatus(c.Request().Context(), id, payload.Status)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "Conversation not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update conversation", err.Error())
	}

	return ok(c, conv)
}

func assignConversation(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID", nil)
	}

	var payload conversationAssignPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse assignment", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	conv, err := appStore.AssignConversation(c.Request().Context(), id, payload.AssignedTo)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "Conversation not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to assign conversation", err.Error())
	}

	return ok(c, conv)
}

func deleteConversation(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID", nil)
	}

	err = appStore.DeleteConversation(c.Request().Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "Conversation not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete conversation", err.Error())
	}

	return ok(c, map[string]interface{}{"id": id})
}

func setInboxFilter(c echo.Context) error {
	var payload struct {
		Filter string `json:"filter" validate:"omitempty,oneof=open closed"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse filter", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	if err := inboxSvc.SetFilter(c.Request().Context(), payload.Filter); err != nil {
		return fail(c, http.StatusInternalServerError, "SYNC_ERROR", "Failed to switch inbox filter", err.Error())
	}

	return ok(c, map[string]interface{}{"filter": payload.Filter})
}

func refreshInbox(c echo.Context) error {
	if err := inboxSvc.Refresh(c.Request().Context()); err != nil {
		return fail(c, http.StatusInternalServerError, "SYNC_ERROR", "Failed to refresh inbox", err.Error())
	}
	view, err := inboxSvc.Conversations()
	if err != nil {
		return fail(c, http.StatusInternalServerError, "SYNC_ERROR", "Inbox not available", err.Error())
	}
	return ok(c, view)
}
