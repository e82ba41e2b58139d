package withdrawal

import "net/http"

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /wallets/{uuid}/withdraw", h.Withdraw)
}
