// Package api serves the bot's runtime state over HTTP: health, aggregate
// stats, open positions and a full state export.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"solana-copy-bot/internal/blockchain"
	"solana-copy-bot/internal/state"
	"solana-copy-bot/internal/stream"
	"solana-copy-bot/internal/trading"
)

// StreamStatus supplies the stream loop's health snapshot.
type StreamStatus func() stream.Status

// Server is the stats HTTP server.
type Server struct {
	app     *fiber.App
	ledger  *state.Ledger
	status  StreamStatus
	metrics *trading.Metrics
	rpc     *blockchain.RPCClient
	port    int
}

// NewServer creates the stats server.
func NewServer(port int, ledger *state.Ledger, status StreamStatus, metrics *trading.Metrics, rpc *blockchain.RPCClient) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
	})

	s := &Server{
		app:     app,
		ledger:  ledger,
		status:  status,
		metrics: metrics,
		rpc:     rpc,
		port:    port,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/stats", s.handleStats)
	s.app.Get("/positions", s.handlePositions)
	s.app.Get("/export", s.handleExport)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := fiber.Map{
		"status": "ok",
		"time":   time.Now().Unix(),
	}
	if s.status != nil {
		st := s.status()
		resp["stream"] = st
		if !st.Connected {
			resp["status"] = "degraded"
		}
	}
	if s.rpc != nil {
		resp["rpc_latency_ms"] = s.rpc.LatencyMs(c.Context())
	}
	return c.JSON(resp)
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	stats := s.ledger.GetStats()

	resp := fiber.Map{
		"ledger":   stats,
		"win_rate": stats.WinRate(),
		"pnl_sol":  stats.TotalPnLSOL(),
	}
	if s.metrics != nil {
		total, success, failed, successRate := s.metrics.Stats()
		resp["execution"] = fiber.Map{
			"total":        total,
			"success":      success,
			"failed":       failed,
			"success_rate": successRate,
			"p50_ms":       s.metrics.P50(),
			"p95_ms":       s.metrics.P95(),
			"p99_ms":       s.metrics.P99(),
		}
	}
	return c.JSON(resp)
}

func (s *Server) handlePositions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"positions": s.ledger.AllPositions(),
	})
}

func (s *Server) handleExport(c *fiber.Ctx) error {
	data, err := s.ledger.ExportState()
	if err != nil {
		log.Error().Err(err).Msg("state export failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "export failed"})
	}
	c.Set("Content-Type", "application/json")
	return c.Send(data)
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	log.Info().Str("addr", addr).Msg("stats server listening")
	return s.app.Listen(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
