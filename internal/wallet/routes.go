package wallet

import "net/http"

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /wallets/{$}", h.Create)
	mux.HandleFunc("GET /wallets/{uuid}/{$}", h.Get)
	mux.HandleFunc("POST /wallets/{uuid}/deposit", h.Deposit)
}
