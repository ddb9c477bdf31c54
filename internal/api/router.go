package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/relay/internal/api/handler"
	"github.com/timmy/relay/internal/api/middleware"
	"github.com/timmy/relay/internal/jobstore"
	"github.com/timmy/relay/internal/logger"
	"github.com/timmy/relay/internal/provider"
	"github.com/timmy/relay/internal/relay"
)

// RouterDeps carries the wired services the router exposes.
type RouterDeps struct {
	Processor   *relay.Processor
	Store       *jobstore.Store
	Synthesizer *relay.Synthesizer
	Registry    *provider.Registry
	Logger      *logger.Logger
	CORS        middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps, mode string) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.CORS(deps.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler(deps.Store)
	jobHandler := handler.NewJobHandler(deps.Processor, deps.Store, deps.Registry)
	speechHandler := handler.NewSpeechHandler(deps.Synthesizer, deps.Registry)
	transcribeHandler := handler.NewTranscribeHandler(deps.Registry)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Async translation jobs
		v1.POST("/jobs/translations", jobHandler.Submit)
		v1.GET("/jobs/translations/:id", jobHandler.Poll)

		// Speech synthesis
		v1.POST("/speech/segments", speechHandler.SynthesizeSegments)
		v1.POST("/speech", speechHandler.Speak)

		// Transcription passthrough
		v1.POST("/audio/transcriptions", transcribeHandler.Transcribe)
	}

	return r
}
