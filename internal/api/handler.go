package api

import (
	"context"

	"github.com/SherClockHolmes/webpush-go"

	"spotpark-client/internal/backend"
	"spotpark-client/internal/engine"
	"spotpark-client/internal/occupancy"
	"spotpark-client/internal/settlement"
	"spotpark-client/internal/snapshot"
)

// WalletBackend is the slice of the REST client the wallet endpoint proxies.
type WalletBackend interface {
	GetWallet(ctx context.Context) (*backend.Wallet, error)
}

// Settler settles a booking; the settlement engine implements it.
type Settler interface {
	Settle(ctx context.Context, bookingID int64, capturedElapsed *int64) (*settlement.Settlement, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine  *engine.Engine
	settler Settler
	wallet  WalletBackend
	store   snapshot.Store
	latest  *occupancy.Latest
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(eng *engine.Engine, settler Settler, wallet WalletBackend, store snapshot.Store, latest *occupancy.Latest, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		engine:  eng,
		settler: settler,
		wallet:  wallet,
		store:   store,
		latest:  latest,
		webpush: webpushOptions,
	}
}
