package controllers

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"tryonapi/config"
	"tryonapi/models"
	"tryonapi/services"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

const missingImagesMessage = "Missing user_image or garment_image"

type TryOnIn struct {
	UserImage    string `json:"user_image" validate:"required"`
	GarmentImage string `json:"garment_image" validate:"required"`
}

type TryOnResponse struct {
	ResultURL string `json:"result_url"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// tryOnStage names the step a request is in, failures are tagged with it.
type tryOnStage string

const (
	stageValidating tryOnStage = "validating"
	stageResolving  tryOnStage = "resolving"
	stageInvoking   tryOnStage = "invoking"
	stageExtracting tryOnStage = "extracting"
)

type TryOnController struct {
	Config   *config.Config
	Gateway  services.InferenceGateway
	Resolver services.ImageResolverProvider
}

func (controller *TryOnController) TryOnRoutes(g *echo.Group) {
	g.POST("/try-on", controller.GenerateTryOn)
}

// GenerateTryOn runs one try-on generation synchronously. The response is
// either {result_url} or {error}, nothing else.
func (controller *TryOnController) GenerateTryOn(c echo.Context) error {
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)

	if !controller.Config.HasCredential() {
		return controller.fail(c, stageValidating, services.NewMissingCredentialError(config.AccessTokenKey))
	}

	var req TryOnIn
	if err := c.Bind(&req); err != nil {
		return controller.fail(c, stageValidating, fmt.Errorf("invalid request body: %s", bindErrorMessage(err)))
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: missingImagesMessage})
	}

	ctx := c.Request().Context()
	if controller.Config.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, controller.Config.GenerationTimeout)
		defer cancel()
	}

	userRef := models.ParseImageReference(req.UserImage)
	garmentRef := models.ParseImageReference(req.GarmentImage)
	log.Printf("[TryOn %s] Resolving images (user: %s, garment: %s)", requestID, userRef.Kind(), garmentRef.Kind())

	var userPayload, garmentPayload models.ResolvedPayload
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		userPayload, err = controller.Resolver.Resolve(groupCtx, userRef)
		return err
	})
	group.Go(func() error {
		var err error
		garmentPayload, err = controller.Resolver.Resolve(groupCtx, garmentRef)
		return err
	})
	if err := group.Wait(); err != nil {
		return controller.fail(c, stageResolving, err)
	}
	log.Printf("[TryOn %s] Images prepared (%d and %d bytes)", requestID, userPayload.Size(), garmentPayload.Size())

	params := services.BuildTryOnParams(userPayload, garmentPayload)

	log.Printf("[TryOn %s] Calling /%s", requestID, services.TryOnProcedure)
	result, err := controller.Gateway.Invoke(ctx, params)
	if err != nil {
		return controller.fail(c, stageInvoking, err)
	}

	resultURL, err := services.ExtractResultLocation(result)
	if err != nil {
		return controller.fail(c, stageExtracting, err)
	}

	log.Printf("[TryOn %s] Generation finished: %s", requestID, resultURL)
	return c.JSON(http.StatusOK, TryOnResponse{ResultURL: resultURL})
}

// fail reports err and writes the uniform 500 response.
func (controller *TryOnController) fail(c echo.Context, stage tryOnStage, err error) error {
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	kind := services.ErrorKind(err)
	log.Printf("[TryOn %s] Failed while %s (%s): %v", requestID, stage, kind, err)

	hub := sentryecho.GetHubFromContext(c)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("stage", string(stage))
		scope.SetTag("error_kind", kind)
		scope.SetExtra("request_id", requestID)
		hub.CaptureException(err)
	})

	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: fmt.Sprintf("Generation failed: %s", err.Error()),
	})
}

func bindErrorMessage(err error) string {
	if httpErr, ok := err.(*echo.HTTPError); ok {
		return fmt.Sprint(httpErr.Message)
	}
	return err.Error()
}
