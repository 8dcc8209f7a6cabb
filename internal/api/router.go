package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/geoimport/internal/api/handler"
	"github.com/timmy/geoimport/internal/api/middleware"
	"github.com/timmy/geoimport/internal/config"
	"github.com/timmy/geoimport/internal/importer"
	"github.com/timmy/geoimport/internal/logger"
	"github.com/timmy/geoimport/internal/storage"
)

// Dependencies are the services the HTTP layer is built on. Runner, Runs,
// Mirror and Catalog may be nil.
type Dependencies struct {
	Manager *importer.Manager
	Runner  *importer.Runner
	Runs    handler.RunHistory
	Catalog handler.CatalogReader
	Mirror  *storage.Mirror
	Health  map[string]handler.HealthCheck
	Logger  *logger.Logger

	CORS           config.CORSConfig
	UploadDir      string
	MaxUploadBytes int64
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps *Dependencies, mode string) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	log := deps.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(deps.CORS))

	healthHandler := handler.NewHealthHandler(deps.Health)
	importHandler := handler.NewImportHandler(deps.Manager, deps.Runner, deps.Runs, deps.Mirror, &handler.ImportHandlerConfig{
		UploadDir:      deps.UploadDir,
		MaxUploadBytes: deps.MaxUploadBytes,
	})

	r.GET("/health", healthHandler.Health)

	rest := r.Group("/rest")
	{
		rest.POST("/imports", importHandler.CreateImport)
		rest.GET("/imports", importHandler.ListImports)
		rest.GET("/imports/:id", importHandler.GetImport)
		rest.POST("/imports/:id", importHandler.RunImport)
		rest.DELETE("/imports/:id", importHandler.DeleteImport)
		rest.GET("/imports/:id/runs", importHandler.ListRuns)
		rest.GET("/imports/:id/sources", importHandler.ListSources)

		rest.POST("/imports/:id/tasks", importHandler.UploadTasks)
		rest.PUT("/imports/:id/tasks/:task", importHandler.PutTask)
		rest.GET("/imports/:id/tasks/:task", importHandler.GetTask)

		rest.GET("/imports/:id/tasks/:task/items/:item", importHandler.GetItem)
		rest.PUT("/imports/:id/tasks/:task/items/:item", importHandler.UpdateItem)

		if deps.Catalog != nil {
			catalogHandler := handler.NewCatalogHandler(deps.Catalog)
			rest.GET("/workspaces", catalogHandler.ListWorkspaces)
			rest.GET("/workspaces/:ws/layers", catalogHandler.ListLayers)
			rest.GET("/workspaces/:ws/layers/:layer", catalogHandler.GetLayer)
			rest.GET("/workspaces/:ws/layers/:layer/features", catalogHandler.ListFeatures)
		}
	}

	return r
}
