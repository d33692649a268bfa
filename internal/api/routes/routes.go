package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/linguacall/linguacall/internal/api/handlers"
	"github.com/linguacall/linguacall/internal/api/middleware"
)

type Deps struct {
	Profile *handlers.ProfileHandler
	History *handlers.HistoryHandler
	Relay   *handlers.RelayHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// the socket authenticates itself via ?token= before upgrading
	r.GET("/ws/call", d.Relay.CallWS)

	auth := r.Group("/", middleware.JWTAuth())
	{
		auth.GET("/profile/me", d.Profile.Me)
		auth.PUT("/profile/update", d.Profile.Update)
		auth.GET("/call/:call_id/captions", d.History.Captions)
	}
}
