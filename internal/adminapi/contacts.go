package adminapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/wappzakelijk/console/internal/domain"
	"github.com/wappzakelijk/console/internal/webserver"
	"github.com/wappzakelijk/console/pkg/common"
)

type contactPayload struct {
	Name  *string `json:"name" validate:"omitempty,max=128"`
	Phone string  `json:"phone" validate:"required,min=5,max=32"`
	OptIn bool    `json:"opt_in"`
}

type contactOptInPayload struct {
	OptIn bool `json:"opt_in"`
}

type contactCsvRow struct {
	Name  string `csv:"name"`
	Phone string `csv:"phone"`
	OptIn string `csv:"opt_in"`
}

// registerContactRoutes registers contact routes
func registerContactRoutes() {
	webserver.ApiGET("/contacts", listContacts)
	webserver.ApiGET("/contacts/:id", getContact)
	webserver.ApiPOST("/contacts", upsertContact)
	webserver.ApiPOST("/contacts/import", importContacts)
	webserver.ApiPUT("/contacts/:id/optin", setContactOptIn)
	webserver.ApiDELETE("/contacts/:id", deleteContact)
}

func listContacts(c echo.Context) error {
	items, err := appStore.ListContacts(c.Request().Context(), companyID, c.QueryParam("q"))
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query contacts", err.Error())
	}
	return ok(c, items)
}

func getContact(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid contact ID", nil)
	}

	contact, err := appStore.GetContact(c.Request().Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "CONTACT_NOT_FOUND", "Contact not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query contact", err.Error())
	}

	return ok(c, contact)
}

func upsertContact(c echo.Context) error {
	var payload contactPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse contact parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	contact, err := appStore.UpsertContact(c.Request().Context(), domain.Contact{
		CompanyID: companyID,
		Name:      payload.Name,
		Phone:     payload.Phone,
		OptIn:     payload.OptIn,
	})
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to save contact", err.Error())
	}

	return ok(c, contact)
}

// importContacts loads a CSV upload with name, phone and opt_in columns.
// Rows without a phone number are skipped and reported.
func importContacts(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Missing CSV file upload", nil)
	}
	src, err := file.Open()
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to open CSV upload", nil)
	}
	defer src.Close()

	var rows []contactCsvRow
	if err := gocsv.Unmarshal(src, &rows); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_CSV", "Unable to parse CSV file", err.Error())
	}

	ctx := c.Request().Context()
	imported, skipped := 0, 0
	for _, row := range rows {
		phone := common.TrimPhone(row.Phone)
		if phone == "" {
			skipped++
			continue
		}
		contact := domain.Contact{
			CompanyID: companyID,
			Phone:     phone,
			OptIn:     strings.EqualFold(strings.TrimSpace(row.OptIn), "true") || row.OptIn == "1",
		}
		if name := strings.TrimSpace(row.Name); name != "" {
			contact.Name = &name
		}
		if _, err := appStore.UpsertContact(ctx, contact); err != nil {
			skipped++
			continue
		}
		imported++
	}

	return ok(c, map[string]interface{}{"imported": imported, "skipped": skipped})
}

func setContactOptIn(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid contact ID", nil)
	}

	var payload contactOptInPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse opt-in", nil)
	}

	contact, err := appStore.SetContactOptIn(c.Request().Context(), id, payload.OptIn)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "CONTACT_NOT_FOUND", "Contact not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update contact", err.Error())
	}

	return ok(c, contact)
}

func deleteContact(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid contact ID", nil)
	}

	// Prevent deletion while conversations still reference the contact
	var inUse int64
	GetDB(c).Model(&domain.Conversation{}).Where("contact_id = ?", id).Count(&inUse)
	if inUse > 0 {
		return fail(c, http.StatusConflict, "CONTACT_IN_USE", "Contact has conversations and cannot be deleted", map[string]interface{}{"conversations": inUse})
	}

	err = appStore.DeleteContact(c.Request().Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "CONTACT_NOT_FOUND", "Contact not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete contact", err.Error())
	}

	return ok(c, map[string]interface{}{"id": id})
}
