package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/solten/donations/internal/service"
	"github.com/solten/donations/utils"
)

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     *utils.Logger
}

func NewServer(svc *service.Service, listenAddr string, logger *utils.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	handler := NewHandler(svc, logger)

	api := router.Group("/api")
	{
		api.GET("/health", handler.Health)
		api.GET("/donations", handler.ListDonations)

		bitcoin := api.Group("/bitcoin")
		{
			bitcoin.POST("/generate", handler.GenerateAddress)
			bitcoin.POST("/check", handler.CheckPayment)
			bitcoin.POST("/expire", handler.MarkExpired)
		}
	}

	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         listenAddr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		logger: logger,
	}
}

func (s *Server) Start() error {
	s.logger.Infof("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
