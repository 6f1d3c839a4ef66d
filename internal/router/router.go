package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kedaiservis/repair-service/api"
	"github.com/kedaiservis/repair-service/internal/handler"
)

const pathSwagger = "/swagger"

func New(ticketHandler *handler.TicketHandler, webhookHandler *handler.WebhookHandler) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", gin.WrapF(handler.Health))
	r.GET("/ready", gin.WrapF(handler.Ready))
	r.GET(pathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, pathSwagger+"/") })
	r.GET(pathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = pathSwagger + "/index.html"
			c.Request.RequestURI = pathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/openapi.json"))(c)
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/wa/webhook", webhookHandler.Inbound)
		v1.POST("/wa/events", webhookHandler.Event)
		v1.GET("/wa/sessions/:id/messages", webhookHandler.Session)

		v1.POST("/tickets/intake", ticketHandler.Intake)
		v1.GET("/tickets", ticketHandler.List)
		v1.GET("/tickets/:id", ticketHandler.Get)
		v1.POST("/tickets/:id/diagnose", ticketHandler.Diagnose)
		v1.POST("/tickets/:id/updates", ticketHandler.AddUpdate)
		v1.POST("/tickets/:id/pickup", ticketHandler.Pickup)
		v1.POST("/tickets/:id/invoices", ticketHandler.CreateInvoice)
	}

	return r
}
