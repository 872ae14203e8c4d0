package main

import (
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/shiyuan-lin/carpool-api/config"
	"github.com/shiyuan-lin/carpool-api/controllers"
	"github.com/shiyuan-lin/carpool-api/middleware"
	"github.com/shiyuan-lin/carpool-api/models"
	"github.com/shiyuan-lin/carpool-api/services"
)

func main() {
	// Basic logging
	log.Println("Starting Carpool API server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	if err := config.ConnectDatabase(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto-migrate database models
	db := config.GetDB()
	if err := db.AutoMigrate(
		&models.User{},
		&models.Vehicle{},
		&models.Order{},
		&models.OrderParticipant{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migration completed successfully")

	// Attachment storage is optional; text-only deployments run without it.
	if cfg.AWSS3Bucket != "" {
		if _, err := services.InitS3Service(); err != nil {
			log.Fatalf("Failed to initialize attachment storage: %v", err)
		}
		log.Printf("Attachment storage ready on bucket %s", cfg.AWSS3Bucket)
	} else {
		log.Println("AWS_S3_BUCKET not set, attachment uploads disabled")
	}

	router := setupRouter()

	// Start server
	port := ":" + cfg.Port
	log.Printf("Server is running on http://localhost%s", port)
	if err := router.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupRouter builds the Gin engine with all middleware and routes.
// Configuration must be loaded (or set) before calling it.
func setupRouter() *gin.Engine {
	cfg := config.GetConfig()
	if cfg == nil {
		log.Fatal("configuration must be loaded before building the router")
	}

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	tokens := services.NewTokenService(cfg)

	// Websocket entry point carries its own credential handling.
	router.GET("/ws", controllers.HandleWebSocket(tokens))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check endpoint
		v1.GET("/health", healthCheck)

		authed := v1.Group("")
		authed.Use(middleware.RequireAuth(tokens))
		{
			orders := authed.Group("/orders")
			{
				orders.POST("", controllers.CreateOrder)
				orders.GET("/:id", controllers.GetOrder)
				orders.POST("/:id/complete", controllers.CompleteOrder)
				orders.POST("/:id/paid", controllers.MarkOrderPaid)
				orders.POST("/:id/rate", controllers.RateOrder)
				orders.POST("/:id/reject", controllers.RejectOrder)
				orders.DELETE("/:id", controllers.DeleteOrder)

				orders.POST("/driver/apply", controllers.DriverApply)
				orders.POST("/passenger/apply", controllers.PassengerApply)
				orders.POST("/passenger/invite", controllers.InvitePassenger)
				orders.POST("/apply/accept", controllers.AcceptApplication)
				orders.POST("/apply/reject", controllers.RejectApplication)
				orders.POST("/invitation/accept", controllers.AcceptInvitation)
				orders.POST("/invitation/reject", controllers.RejectInvitation)
			}

			conversations := authed.Group("/conversations")
			{
				conversations.GET("", controllers.ListConversations)
				conversations.GET("/:id/messages", controllers.ListMessages)
				conversations.POST("/private", controllers.CreatePrivateConversation)
			}

			authed.POST("/messages", controllers.SendMessage)
			authed.POST("/uploads", controllers.UploadAttachment)
		}
	}

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Carpool API is running",
	})
}
