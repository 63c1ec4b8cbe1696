package http

import (
	"context"
	"net/http"
	"time"

	"crowdtest/internal/service"
)

type Server struct {
	srv *http.Server
}

func NewServer(addr string, escrow service.EscrowService, wallets service.WalletService, missions service.MissionService) *Server {
	mux := http.NewServeMux()
	h := NewHandler(escrow, wallets, missions)
	h.Register(mux)

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	return s.srv.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
