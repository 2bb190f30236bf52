package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/shinoburc/driving-report-go/internal/config"
	"github.com/shinoburc/driving-report-go/internal/handler"
	"github.com/shinoburc/driving-report-go/internal/middleware"
	"github.com/shinoburc/driving-report-go/internal/service"
	"github.com/shinoburc/driving-report-go/internal/session"
)

// SetupRouter assembles the HTTP API around the session engine and the
// trip read side.
func SetupRouter(cfg *config.Config, engine *session.Engine, trips *service.TripService, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Driving Report API is running",
		})
	})

	sessionHandler := handler.NewSessionHandler(engine)
	tripHandler := handler.NewTripHandler(trips)

	api := r.Group("/api/v1")
	if cfg.AuthEnabled {
		api.Use(middleware.Auth(cfg.JWTSecret))
	}
	{
		sess := api.Group("/session")
		{
			sess.GET("", sessionHandler.State)
			sess.POST("/start", sessionHandler.Start)
			sess.POST("/pause", sessionHandler.Pause)
			sess.POST("/resume", sessionHandler.Resume)
			sess.POST("/complete", sessionHandler.Complete)
			sess.POST("/cancel", sessionHandler.Cancel)
			sess.POST("/waypoints", sessionHandler.AddWaypoint)
			sess.DELETE("/errors/:index", sessionHandler.DismissError)
			sess.GET("/recoverable", sessionHandler.Recoverable)
			sess.POST("/recover", sessionHandler.Recover)
		}

		trips := api.Group("/trips")
		{
			trips.GET("", tripHandler.ListTrips)
			trips.GET("/:id", tripHandler.GetTripByID)
		}
	}

	return r
}
