package main

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/postpilot/postpilot-backend/internal/controller"
	"github.com/postpilot/postpilot-backend/internal/db"
	"github.com/postpilot/postpilot-backend/internal/handler"
	"github.com/postpilot/postpilot-backend/internal/repository"
	"github.com/postpilot/postpilot-backend/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("init logger:", err)
	}
	defer logger.Sync()

	db.Init(logger)

	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	itemRepo := &repository.ContentItemRepository{DB: db.DB}
	connectionRepo := &repository.ConnectionRepository{DB: db.DB}
	logRepo := &repository.CampaignLogRepository{DB: db.DB}

	campaignService := &service.CampaignService{
		CampaignRepo:   campaignRepo,
		ItemRepo:       itemRepo,
		ConnectionRepo: connectionRepo,
		LogRepo:        logRepo,
		Log:            logger,
	}

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
	}
	campaignHandler := handler.NewCampaignHandler(campaignService)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Campaign routes
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Put("/campaigns/{id}", campaignController.UpdateCampaign)
	r.Get("/campaigns/{id}", campaignHandler.GetCampaignHandler)
	r.Get("/campaigns/{id}/logs", campaignHandler.ListLogsHandler)

	// Lifecycle
	r.Post("/campaigns/{id}/activate", campaignController.ActivateCampaign)
	r.Post("/campaigns/{id}/pause", campaignController.PauseCampaign)
	r.Post("/campaigns/{id}/resume", campaignController.ResumeCampaign)
	r.Post("/campaigns/{id}/stop", campaignController.StopCampaign)

	// Content and connections
	r.Post("/campaigns/{id}/items", campaignController.AddContentItem)
	r.Get("/campaigns/{id}/items", campaignController.ListContentItems)
	r.Post("/campaigns/{id}/connections", campaignController.AddConnection)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	logger.Info("🚀 API server running", zap.String("addr", addr))
	log.Fatal(http.ListenAndServe(addr, r))
}
