package adminapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	syncpkg "github.com/wappzakelijk/console/internal/sync"
	"github.com/wappzakelijk/console/internal/webserver"
)

type broadcastPayload struct {
	Name     string `json:"name" validate:"required,min=1,max=128"`
	Template string `json:"template" validate:"required,min=1,max=4096"`
}

// registerBroadcastRoutes registers campaign routes
func registerBroadcastRoutes() {
	webserver.ApiGET("/broadcasts", listBroadcasts)
	webserver.ApiGET("/broadcasts/:id", getBroadcast)
	webserver.ApiPOST("/broadcasts", createBroadcast)
	webserver.ApiPOST("/broadcasts/:id/dispatch", dispatchBroadcast)
	webserver.ApiDELETE("/broadcasts/:id", deleteBroadcast)
}

func listBroadcasts(c echo.Context) error {
	items, err := appStore.ListBroadcasts(c.Request().Context(), companyID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query broadcasts", err.Error())
	}
	return ok(c, items)
}

func getBroadcast(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid broadcast ID", nil)
	}

	b, err := appStore.GetBroadcast(c.Request().Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "BROADCAST_NOT_FOUND", "Broadcast not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query broadcast", err.Error())
	}

	return ok(c, b)
}

func createBroadcast(c echo.Context) error {
	var payload broadcastPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse broadcast parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	b, err := broadcastSvc.CreateDraft(c.Request().Context(), payload.Name, payload.Template)
	if err != nil {
		if syncpkg.IsValidation(err) {
			return fail(c, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error(), nil)
		}
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create broadcast", err.Error())
	}

	return ok(c, b)
}

func dispatchBroadcast(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid broadcast ID", nil)
	}

	b, err := broadcastSvc.Dispatch(c.Request().Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "BROADCAST_NOT_FOUND", "Broadcast not found", nil)
	} else if err != nil {
		if syncpkg.IsValidation(err) {
			return fail(c, http.StatusConflict, "DISPATCH_REJECTED", err.Error(), nil)
		}
		return fail(c, http.StatusInternalServerError, "DISPATCH_ERROR", "Failed to dispatch broadcast", err.Error())
	}

	return ok(c, b)
}

func deleteBroadcast(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid broadcast ID", nil)
	}

	err = appStore.DeleteBroadcast(c.Request().Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "BROADCAST_NOT_FOUND", "Broadcast not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete broadcast", err.Error())
	}

	return ok(c, map[string]interface{}{"id": id})
}
