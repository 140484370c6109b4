package api

import (
	"github.com/gin-gonic/gin"

	"github.com/openportal/twofa/internal/auth/challenge"
	"github.com/openportal/twofa/internal/directory"
	"github.com/openportal/twofa/internal/handlers"
	"github.com/openportal/twofa/internal/notifications"
)

func registerMFARoutes(r *gin.Engine, service *challenge.Service, dir directory.Finder, notifier notifications.Notifier) error {
	handler, err := handlers.NewMFAHandler(service, dir, notifier)
	if err != nil {
		return err
	}

	mfa := r.Group("/api/mfa")
	{
		mfa.GET("/setup/:user", handler.Setup)
		mfa.POST("/setup/:user/test", handler.TestCode)
		mfa.POST("/setup/:user/regenerate", handler.Regenerate)
		mfa.POST("/send-code", handler.SendCode)
		mfa.POST("/verify", handler.Verify)
	}

	return nil
}
