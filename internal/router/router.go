package router

import (
	"net/http"

	"github.com/senyabanana/marketplace-service/internal/handlers"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func InitRoutes(tenderHandler *handlers.TenderHandler, proposalHandler *handlers.ProposalHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/ping", handlers.PingHandler)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/tenders", tenderHandler.GetTenders)
	mux.HandleFunc("/api/tenders/new", tenderHandler.CreateTender)
	mux.HandleFunc("/api/tenders/my", tenderHandler.GetUserTenders)
	mux.HandleFunc("GET /api/tenders/{tenderId}", tenderHandler.GetTender)
	mux.HandleFunc("PUT /api/tenders/{tenderId}/status", tenderHandler.UpdateTenderStatus)
	mux.HandleFunc("/api/tenders/{tenderId}/edit", tenderHandler.EditTender)
	mux.HandleFunc("/api/tenders/{tenderId}/save", tenderHandler.ToggleSaveTender)

	mux.HandleFunc("/api/proposals/new", proposalHandler.CreateProposal)
	mux.HandleFunc("/api/proposals/my", proposalHandler.GetUserProposals)
	mux.HandleFunc("/api/proposals/{tenderId}/list", proposalHandler.GetTenderProposals)
	mux.HandleFunc("PUT /api/proposals/{proposalId}/status", proposalHandler.UpdateProposalStatus)
	mux.HandleFunc("/api/proposals/{proposalId}/edit", proposalHandler.EditProposal)

	return mux
}
