package controllers

import (
	"net/http"

	"tryonapi/config"
	"tryonapi/services"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// Inline images arrive base64 encoded inside the JSON body.
const maxBodySize = "25M"

func SetupServer(
	cfg *config.Config,
	gateway services.InferenceGateway,
	resolver services.ImageResolverProvider,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	tryOnController := TryOnController{Config: cfg, Gateway: gateway, Resolver: resolver}
	apiGroup := e.Group("/api")
	tryOnController.TryOnRoutes(apiGroup)

	// pre-made outfits and other public images
	if cfg.AssetRoot != "" {
		e.Static("/", cfg.AssetRoot)
	}

	return e
}
