package server

import (
	"context"

	"github.com/flashbots/batchclear/api/httpserver"
	"github.com/flashbots/batchclear/engine"
)

// AuctionServer bundles the auction engine with its HTTP surface. The
// engine's lifecycle loop runs in the background for as long as the
// context passed to RunInBackground lives.
type AuctionServer struct {
	*httpserver.BaseServer

	engine  *engine.Engine
	handler *Handler
}

// NewAuctionServer creates the public API server for one auction pool.
func NewAuctionServer(cfg *httpserver.HTTPServerConfig, eng *engine.Engine) (*AuctionServer, error) {
	handler := NewHandler(eng)

	base, err := httpserver.New(cfg, handler)
	if err != nil {
		return nil, err
	}

	return &AuctionServer{
		BaseServer: base,
		engine:     eng,
		handler:    handler,
	}, nil
}

// RunInBackground starts the batch lifecycle and the HTTP listeners.
func (s *AuctionServer) RunInBackground(ctx context.Context) {
	go s.engine.Run(ctx)
	s.BaseServer.RunInBackground()
}
