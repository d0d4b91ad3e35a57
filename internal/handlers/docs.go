package handlers

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "telemetry-pipeline/internal/docs" // registers the OpenAPI description
)

// RegisterDocs serves the Swagger UI and doc.json under /swagger/.
func RegisterDocs(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
