package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/sirupsen/logrus"

	pcommon "github.com/ethpandaops/execution-simulator/pkg/common"
	"github.com/ethpandaops/execution-simulator/pkg/ethereum"
	"github.com/ethpandaops/execution-simulator/pkg/simulator"
)

const (
	maxRequestBytes = 1 << 20

	routeSimulate = "simulate"
	routeChains   = "chains"
)

// Simulator runs a request and renders the result in the requested format.
type Simulator interface {
	SimulateRendered(ctx context.Context, req *simulator.Request) (*simulator.Rendered, error)
}

// ChainLister reports the chains that currently have a healthy state provider.
type ChainLister interface {
	Chains() []uint64
}

type Handler struct {
	log       logrus.FieldLogger
	simulator Simulator
	chains    ChainLister
}

// NewHandler creates the HTTP handler. chains may be nil, in which case every
// registered network is reported as available.
func NewHandler(log logrus.FieldLogger, sim Simulator, chains ChainLister) *Handler {
	return &Handler{
		log:       log.WithField("component", "api"),
		simulator: sim,
		chains:    chains,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/simulate", h.simulate)
	mux.HandleFunc("GET /api/v1/chains", h.listChains)
}

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type ChainResponse struct {
	ethereum.Network
	Available bool `json:"available"`
}

type ChainsResponse struct {
	Chains []ChainResponse `json:"chains"`
}

func (h *Handler) simulate(w http.ResponseWriter, r *http.Request) {
	var req simulator.Request

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		h.writeError(w, routeSimulate, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})

		return
	}

	rendered, err := h.simulator.SimulateRendered(r.Context(), &req)
	if err != nil {
		status := statusFor(err)

		resp := ErrorResponse{Error: err.Error()}

		var reqErr *simulator.RequestError
		if errors.As(err, &reqErr) {
			resp.Field = reqErr.Field
		}

		if status >= http.StatusInternalServerError {
			h.log.WithError(err).Warn("Simulation failed")
		}

		h.writeError(w, routeSimulate, status, resp)

		return
	}

	if rendered.Format == simulator.FormatJSON {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		if _, err := w.Write(rendered.JSON); err != nil {
			h.log.WithError(err).Error("failed to write response")
		}

		pcommon.APIRequests.WithLabelValues(routeSimulate, strconv.Itoa(http.StatusOK)).Inc()

		return
	}

	h.writeJSON(w, routeSimulate, http.StatusOK, rendered.Result)
}

func (h *Handler) listChains(w http.ResponseWriter, _ *http.Request) {
	var available []uint64
	if h.chains != nil {
		available = h.chains.Chains()
	}

	networks := ethereum.Networks()
	resp := ChainsResponse{Chains: make([]ChainResponse, 0, len(networks))}

	for _, network := range networks {
		resp.Chains = append(resp.Chains, ChainResponse{
			Network:   network,
			Available: h.chains == nil || slices.Contains(available, network.ID),
		})
	}

	h.writeJSON(w, routeChains, http.StatusOK, resp)
}

// statusFor maps a simulation error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case simulator.IsRequestError(err):
		return http.StatusBadRequest
	case errors.Is(err, simulator.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, simulator.ErrTimeBudgetExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, route string, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.WithError(err).Error("failed to encode response")
	}

	pcommon.APIRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (h *Handler) writeError(w http.ResponseWriter, route string, status int, resp ErrorResponse) {
	h.writeJSON(w, route, status, resp)
}
