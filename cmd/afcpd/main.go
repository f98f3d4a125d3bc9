// Command afcpd runs the Agent Federation Control Plane as a standalone
// HTTP daemon.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/edcet/complete-homelab-orchestrator/internal/afcp"
	"github.com/edcet/complete-homelab-orchestrator/internal/config"
	"github.com/edcet/complete-homelab-orchestrator/internal/transport/httptransport"
	afcpmw "github.com/edcet/complete-homelab-orchestrator/internal/transport/http/middleware"
	v1 "github.com/edcet/complete-homelab-orchestrator/internal/transport/http/v1"
)

func main() {
	cfg := config.Load()

	log.Printf("Starting afcpd...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Admission: %d req / %v, burst %d", cfg.AdmissionMaxRequests, cfg.AdmissionWindow, cfg.AdmissionBurst)

	transport := httptransport.New()
	cp := afcp.New(cfg.AFCPConfig(), transport, nil)

	ctx, cancelHealth := context.WithCancel(context.Background())
	cp.StartHealthMonitor(ctx)

	handler := v1.NewHandler(cp, log.Default())

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(afcpmw.RequestID())
	e.Use(afcpmw.RateLimit(ctx, afcpmw.RateLimitConfig{RequestsPerMin: 600, BurstSize: 100}))

	handler.RegisterRoutes(e)

	go gcAdmissionPeriodically(ctx, cp, cfg.AdmissionWindow)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("afcpd started on port %d", cfg.HTTPPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down afcpd...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}
	cp.StopHealthMonitor()
	cancelHealth()

	log.Println("afcpd stopped")
}

// gcAdmissionPeriodically purges stale per-client admission records on a
// timer independent of request traffic, the same pattern the Health
// Monitor uses for liveness aging.
func gcAdmissionPeriodically(ctx context.Context, cp *afcp.ControlPlane, window time.Duration) {
	if window <= 0 {
		window = time.Minute
	}
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cp.GCAdmission()
		case <-ctx.Done():
			return
		}
	}
}
