package adminapi

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
	"gorm.io/gorm"

	"github.com/wappzakelijk/console/internal/broadcast"
	"github.com/wappzakelijk/console/internal/inbox"
	"github.com/wappzakelijk/console/internal/payment"
	"github.com/wappzakelijk/console/internal/store"
)

var (
	appStore     *store.Store
	inboxSvc     *inbox.Service
	broadcastSvc *broadcast.Service
	paymentSvc   *payment.Service
	companyID    string
)

// Init wires the handler dependencies and registers all console routes.
func Init(company string, st *store.Store, ib *inbox.Service, bc *broadcast.Service, pay *payment.Service) {
	companyID = company
	appStore = st
	inboxSvc = ib
	broadcastSvc = bc
	paymentSvc = pay

	registerConversationRoutes()
	registerMessageRoutes()
	registerContactRoutes()
	registerBroadcastRoutes()
	registerPaymentRoutes()
	registerMetricsRoutes()
}

// GetDB returns the request-scoped database handle set by the web server.
func GetDB(c echo.Context) *gorm.DB {
	return c.Get("db").(*gorm.DB)
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code": 0,
		"data": data,
	})
}

func fail(c echo.Context, status int, code, msg string, detail interface{}) error {
	return c.JSON(status, map[string]interface{}{
		"code":   1,
		"error":  code,
		"msg":    msg,
		"detail": detail,
	})
}

func paged(c echo.Context, items interface{}, total int64, page, pageSize int) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":      0,
		"data":      items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func parsePagination(c echo.Context) (page, pageSize int) {
	page = cast.ToInt(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize = cast.ToInt(c.QueryParam("page_size"))
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func parseIDParam(c echo.Context, name string) (string, error) {
	id := strings.TrimSpace(c.Param(name))
	if id == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "missing "+name)
	}
	return id, nil
}

func handleValidationError(c echo.Context, err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return fail(c, http.StatusUnprocessableEntity, "VALIDATION_FAILED",
			"Invalid request parameters", map[string]interface{}{"fields": fields})
	}
	return fail(c, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Invalid request parameters", nil)
}
