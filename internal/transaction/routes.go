package transaction

import "net/http"

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /wallets/{uuid}/transactions/{$}", h.List)
	mux.HandleFunc("GET /wallets/{uuid}/transactions/{id}/{$}", h.Get)
}
