package adminapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/wappzakelijk/console/internal/domain"
	"github.com/wappzakelijk/console/internal/webserver"
)

type messageSendPayload struct {
	Content string `json:"content" validate:"required,min=1,max=4096"`
}

type messageStatusPayload struct {
	Status string `json:"status" validate:"required,oneof=pending sent delivered read failed"`
}

// registerMessageRoutes registers message routes
func registerMessageRoutes() {
	webserver.ApiGET("/conversations/:id/messages", listMessages)
	webserver.ApiPOST("/conversations/:id/messages", sendMessage)
	webserver.ApiPOST("/conversations/:id/messages/:temp_id/retry", retryMessage)
	webserver.ApiDELETE("/conversations/:id/messages/:temp_id", discardMessage)
	webserver.ApiPUT("/messages/:id/status", updateMessageStatus)
}

func listMessages(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID", nil)
	}

	db := GetDB(c).Model(&domain.Message{}).Where("conversation_id = ?", id)
	if since := strings.TrimSpace(c.QueryParam("since")); since != "" {
		t, err := dateparse.ParseAny(since)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse since parameter", nil)
		}
		db = db.Where("created_at >= ?", t)
	}

	var items []domain.Message
	if err := db.Order("created_at ASC").Order("id ASC").Find(&items).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query messages", err.Error())
	}

	return ok(c, items)
}

// sendMessage submits an outbound message through the optimistic write
// path. The response carries the temporary identity; the confirmed row
// arrives over the change feed.
func sendMessage(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID", nil)
	}

	var payload messageSendPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse message", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	ctx := c.Request().Context()
	thread, err := inboxSvc.OpenConversation(ctx, id)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "SYNC_ERROR", "Failed to open conversation", err.Error())
	}

	h, err := thread.Send(ctx, payload.Content)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_MESSAGE", err.Error(), nil)
	}

	return ok(c, map[string]interface{}{
		"temp_id": h.TempID,
		"token":   h.Token,
		"status":  domain.MessagePending,
	})
}

func retryMessage(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID", nil)
	}
	tempID, err := parseIDParam(c, "temp_id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid message ID", nil)
	}

	ctx := c.Request().Context()
	thread, err := inboxSvc.OpenConversation(ctx, id)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "SYNC_ERROR", "Failed to open conversation", err.Error())
	}

	h, err := thread.Retry(ctx, tempID)
	if err != nil {
		return fail(c, http.StatusConflict, "RETRY_REJECTED", err.Error(), nil)
	}

	return ok(c, map[string]interface{}{
		"temp_id": h.TempID,
		"status":  domain.MessagePending,
	})
}

func discardMessage(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID", nil)
	}
	tempID, err := parseIDParam(c, "temp_id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid message ID", nil)
	}

	thread, err := inboxSvc.OpenConversation(c.Request().Context(), id)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "SYNC_ERROR", "Failed to open conversation", err.Error())
	}
	thread.Discard(tempID)

	return ok(c, map[string]interface{}{"temp_id": tempID})
}

// updateMessageStatus records a delivery transition, normally fed by the
// gateway callback.
func updateMessageStatus(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid message ID", nil)
	}

	var payload messageStatusPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse status", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	msg, err := appStore.UpdateMessageStatus(c.Request().Context(), id, payload.Status)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "MESSAGE_NOT_FOUND", "Message not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update message", err.Error())
	}

	return ok(c, msg)
}
