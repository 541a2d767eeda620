package webserver

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v4"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wappzakelijk/console/config"
)

// AuthFunc checks console credentials for token issuance.
type AuthFunc func(username, password string) bool

type apiRoute struct {
	method  string
	path    string
	handler echo.HandlerFunc
}

type WebServer struct {
	root   *echo.Echo
	config *config.AppConfig
	db     *gorm.DB
	auth   AuthFunc
}

var (
	server    *WebServer
	routeMu   sync.Mutex
	apiRoutes []apiRoute
)

type payloadValidator struct {
	validate *validator.Validate
}

func (v *payloadValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// Init builds the global web server. Route registrations made before Init
// are mounted under /api when Listen starts.
func Init(cfg *config.AppConfig, db *gorm.DB, auth AuthFunc) *WebServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &payloadValidator{validate: validator.New()}
	e.Use(middleware.Recover())
	e.Use(accessLogger())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("db", db.WithContext(c.Request().Context()))
			return next(c)
		}
	})

	server = &WebServer{root: e, config: cfg, db: db, auth: auth}
	server.mountAuth()
	server.mountAPI()
	return server
}

func accessLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			zap.L().Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", status),
				zap.Duration("elapsed", time.Since(start)))
			return err
		}
	}
}

func (s *WebServer) mountAuth() {
	s.root.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{"status": "ok"})
	})
	s.root.POST("/auth/token", s.issueToken)
}

func (s *WebServer) issueToken(c echo.Context) error {
	var form struct {
		Username string `json:"username" form:"username"`
		Password string `json:"password" form:"password"`
	}
	if err := c.Bind(&form); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"code": 1, "msg": "invalid request"})
	}
	if s.auth == nil || !s.auth(strings.TrimSpace(form.Username), form.Password) {
		return c.JSON(http.StatusUnauthorized, map[string]interface{}{"code": 1, "msg": "invalid username or password"})
	}
	claims := jwt.MapClaims{
		"sub": form.Username,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Web.Secret))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"code": 1, "msg": "token signing failed"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"code": 0, "access_token": signed})
}

func (s *WebServer) mountAPI() {
	api := s.root.Group("/api")
	api.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(s.config.Web.Secret),
	}))

	routeMu.Lock()
	defer routeMu.Unlock()
	for _, r := range apiRoutes {
		api.Add(r.method, r.path, r.handler)
	}
}

// Listen starts the HTTP listener and blocks.
func (s *WebServer) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Web.Host, s.config.Web.Port)
	zap.L().Info("web server listening", zap.String("addr", addr))
	return s.root.Start(addr)
}

func (s *WebServer) Shutdown() error {
	return s.root.Close()
}

func registerAPI(method, path string, h echo.HandlerFunc) {
	routeMu.Lock()
	defer routeMu.Unlock()
	apiRoutes = append(apiRoutes, apiRoute{method: method, path: path, handler: h})
}

func ApiGET(path string, h echo.HandlerFunc)    { registerAPI(http.MethodGet, path, h) }
func ApiPOST(path string, h echo.HandlerFunc)   { registerAPI(http.MethodPost, path, h) }
func ApiPUT(path string, h echo.HandlerFunc)    { registerAPI(http.MethodPut, path, h) }
func ApiDELETE(path string, h echo.HandlerFunc) { registerAPI(http.MethodDelete, path, h) }
