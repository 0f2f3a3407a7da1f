package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	problem "github.com/sugarlabs/bundle-uploader/pkg/bundle_api/helpers/problem"
	"github.com/sugarlabs/bundle-uploader/pkg/bundle_api/models"
	"github.com/sugarlabs/bundle-uploader/pkg/bundle_api/repositories"
	"github.com/sugarlabs/bundle-uploader/pkg/bundle_api/services"
)

// BundlesAPIController binds HTTP requests to the BundleService
type BundlesAPIController struct {
	Service   *services.BundleService
	Retention time.Duration
}

// NewBundlesAPIController creates a new controller
func NewBundlesAPIController(s *services.BundleService, retention time.Duration) *BundlesAPIController {
	return &BundlesAPIController{Service: s, Retention: retention}
}

// Upload handles POST /upload. The multipart field name and the
// redirect to the info page are part of the inherited contract.
func (c *BundlesAPIController) Upload(ctx *gin.Context) {
	file, _, err := ctx.Request.FormFile("file")
	if err != nil {
		renderProblem(ctx, problem.NewBadRequest("file", "multipart field 'file' is required"))
		return
	}
	defer file.Close()

	bundle, err := c.Service.Upload(ctx.Request.Context(), file)
	if errors.Is(err, services.ErrInvalidBundle) {
		renderProblem(ctx, problem.NewUnsupportedMediaType("uploaded file is not a valid .xo bundle"))
		return
	}
	if err != nil {
		renderProblem(ctx, problem.NewInternalServerError(err.Error()))
		return
	}

	ctx.Redirect(http.StatusFound, "/bundle/"+bundle.Filename)
}

// Download handles GET /raw/:filename. Records pointing at a mirror
// answer with a permanent redirect; everything else streams the local
// file.
func (c *BundlesAPIController) Download(ctx *gin.Context) {
	filename := ctx.Param("filename")

	bundle, err := c.Service.Lookup(ctx.Request.Context(), filename)
	if errors.Is(err, repositories.ErrNotFound) {
		renderProblem(ctx, problem.NewNotFound(filename, "bundle not found"))
		return
	}
	if err != nil {
		renderProblem(ctx, problem.NewInternalServerError(err.Error()))
		return
	}

	if bundle.Redirect != "" {
		ctx.Redirect(http.StatusMovedPermanently, c.Service.RedirectTarget(bundle))
		return
	}
	// A file the sweeper removed mid-flight surfaces as 404 here.
	ctx.File(c.Service.FilePath(filename))
}

// Info handles GET /bundle/:filename
func (c *BundlesAPIController) Info(ctx *gin.Context, params *models.BundleParams) (*models.BundleInfo, error) {
	info, err := c.Service.Info(ctx.Request.Context(), params.Filename)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, problem.NewNotFound(params.Filename, "bundle not found")
	}
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Mirror handles GET /mirror/:filename/:target. A mutation behind a
// read verb, kept because stored corpora and mirror tooling link to
// this URL shape.
func (c *BundlesAPIController) Mirror(ctx *gin.Context) {
	filename := ctx.Param("filename")
	target := ctx.Param("target")

	err := c.Service.SetMirror(ctx.Request.Context(), filename, target)
	if errors.Is(err, repositories.ErrNotFound) {
		renderProblem(ctx, problem.NewNotFound(filename, "bundle not found"))
		return
	}
	if err != nil {
		renderProblem(ctx, problem.NewInternalServerError(err.Error()))
		return
	}

	ctx.String(http.StatusOK, "OK")
}

// Sweep handles GET /delete: run the retention pass now. The contract
// acknowledges success regardless of how many records were swept.
func (c *BundlesAPIController) Sweep(ctx *gin.Context) {
	swept, err := c.Service.SweepExpired(ctx.Request.Context(), time.Now(), c.Retention)
	if err != nil {
		log.Printf("[sweep] triggered pass: %v", err)
	}
	if swept > 0 {
		log.Printf("[sweep] expired %d bundle(s)", swept)
	}

	ctx.String(http.StatusOK, "OK")
}

// Index handles GET /
func (c *BundlesAPIController) Index(ctx *gin.Context) (*models.ServiceIndex, error) {
	return &models.ServiceIndex{
		Upload:   "/upload",
		Download: "/raw/{filename}",
		Info:     "/bundle/{filename}",
	}, nil
}

func renderProblem(ctx *gin.Context, apiErr problem.APIError) {
	ctx.Header("Content-Type", "application/problem+json")
	ctx.AbortWithStatusJSON(apiErr.Status, apiErr)
}
