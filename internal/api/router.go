package api

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/arvales/mailindex/internal/database"
	"github.com/arvales/mailindex/internal/email"
	"github.com/arvales/mailindex/internal/index"
	"github.com/arvales/mailindex/internal/secrets"
)

// Deps wires the control plane's collaborators
type Deps struct {
	DB       *database.DB
	Registry *email.Registry
	Gateway  *index.Gateway
	Codec    *secrets.Codec
	Logger   *slog.Logger
}

// NewRouter builds the gin router with all control plane routes
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	h := newHandler(deps)

	router.GET("/health", h.health)

	router.POST("/accounts", h.createAccount)
	router.GET("/accounts", h.listAccounts)
	router.POST("/accounts/:id/disable", h.disableAccount)
	router.POST("/accounts/:id/enable", h.enableAccount)
	router.DELETE("/accounts/:id", h.deleteAccount)
	router.GET("/accounts/:id/status", h.accountStatus)

	router.GET("/search", h.search)
	router.GET("/documents/:id", h.getDocument)

	return router
}
