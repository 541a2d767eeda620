package adminapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/wappzakelijk/console/internal/payment"
	syncpkg "github.com/wappzakelijk/console/internal/sync"
	"github.com/wappzakelijk/console/internal/webserver"
)

type paymentPayload struct {
	Amount      int64  `json:"amount" validate:"required"`
	Description string `json:"description" validate:"required,min=1,max=256"`
	Phone       string `json:"phone" validate:"omitempty,max=32"`
}

// registerPaymentRoutes registers payment link routes
func registerPaymentRoutes() {
	webserver.ApiGET("/payments", listPayments)
	webserver.ApiGET("/payments/:id", getPayment)
	webserver.ApiPOST("/payments", createPayment)
	webserver.ApiPUT("/payments/:id/paid", markPaymentPaid)
}

func listPayments(c echo.Context) error {
	items, err := appStore.ListPaymentLinks(c.Request().Context(), companyID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query payment links", err.Error())
	}
	return ok(c, items)
}

func getPayment(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid payment ID", nil)
	}

	p, err := appStore.GetPaymentLink(c.Request().Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "PAYMENT_NOT_FOUND", "Payment link not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query payment link", err.Error())
	}

	return ok(c, p)
}

func createPayment(c echo.Context) error {
	var payload paymentPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse payment parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	link, err := paymentSvc.Create(c.Request().Context(), payment.Request{
		Amount:      payload.Amount,
		Description: payload.Description,
		Phone:       payload.Phone,
	})
	switch {
	case err == nil:
		return ok(c, link)
	case syncpkg.IsValidation(err):
		return fail(c, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error(), nil)
	case syncpkg.IsTransport(err) && link.ID != "":
		// link recorded without a URL; the provider call failed
		return fail(c, http.StatusBadGateway, "PROVIDER_ERROR", "Payment provider unavailable", map[string]interface{}{"payment_id": link.ID})
	default:
		return fail(c, http.StatusInternalServerError, "PAYMENT_ERROR", "Failed to create payment link", err.Error())
	}
}

func markPaymentPaid(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid payment ID", nil)
	}

	p, err := paymentSvc.MarkPaid(c.Request().Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "PAYMENT_NOT_FOUND", "Payment link not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update payment link", err.Error())
	}

	return ok(c, p)
}
