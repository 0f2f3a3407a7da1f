package bundle_api

import (
	"errors"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/loopfz/gadgeto/tonic"
	"github.com/sugarlabs/bundle-uploader/pkg/bundle_api/handler"
	problem "github.com/sugarlabs/bundle-uploader/pkg/bundle_api/helpers/problem"
	"github.com/wI2L/fizz"
	"github.com/wI2L/fizz/openapi"
)

var errorHookOnce sync.Once

// setupErrorHook maps errors leaving tonic handlers onto RFC 7807
// problem documents: binding failures become 400, APIError passes
// through, anything else is a 500.
func setupErrorHook() {
	errorHookOnce.Do(func() {
		tonic.SetErrorHook(func(c *gin.Context, err error) (int, interface{}) {
			var be tonic.BindError
			var verrs validator.ValidationErrors
			if errors.As(err, &be) || errors.As(err, &verrs) {
				apiErr := problem.NewBadRequest("request", err.Error())
				c.Header("Content-Type", "application/problem+json")
				return apiErr.Status, apiErr
			}

			if apiErr, ok := err.(problem.APIError); ok {
				c.Header("Content-Type", "application/problem+json")
				return apiErr.Status, apiErr
			}

			internal := problem.NewInternalServerError(err.Error())
			c.Header("Content-Type", "application/problem+json")
			return internal.Status, internal
		})
	})
}

// NewRouter wires the inherited URL contract. JSON endpoints go through
// tonic so they land in the generated OpenAPI document; upload,
// download, mirror and sweep handle the request/response bytes
// themselves and register straight on the engine.
func NewRouter(controller *handler.BundlesAPIController) *fizz.Fizz {
	setupErrorHook()

	g := gin.Default()
	f := fizz.NewFromEngine(g)

	info := &openapi.Info{
		Title:       "Bundle uploader API",
		Description: "Upload, serve and expire Sugar activity bundles (.xo)",
		Version:     "1.0.0",
	}

	f.GET("/",
		[]fizz.OperationOption{
			fizz.Summary("Service index"),
		},
		tonic.Handler(controller.Index, 200),
	)

	f.GET("/bundle/:filename",
		[]fizz.OperationOption{
			fizz.Summary("Metadata of a stored bundle"),
		},
		tonic.Handler(controller.Info, 200),
	)

	// Inherited contract: mirror and delete mutate state behind GET
	// verbs. The URL shapes predate this implementation and existing
	// tooling links to them, so they stay.
	g.POST("/upload", controller.Upload)
	g.GET("/raw/:filename", controller.Download)
	g.GET("/mirror/:filename/:target", controller.Mirror)
	g.GET("/delete", controller.Sweep)

	f.GET("/openapi.json", nil, f.OpenAPI(info, "json"))

	return f
}
