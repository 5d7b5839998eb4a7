package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/symbioticfi/points-indexer/core/store"
	"github.com/symbioticfi/points-indexer/internal/address"
)

// writeJSON serializes v with the JSON content type.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits a 4xx/5xx body shaped {error, request_id}.
// A request_id is only generated for 5xx responses; 4xx bodies describe a
// caller mistake that doesn't need correlating with a store failure.
func writeError(w http.ResponseWriter, status int, err error) {
	body := struct {
		Error     string `json:"error"`
		RequestID string `json:"request_id,omitempty"`
	}{Error: err.Error()}
	if status >= http.StatusInternalServerError {
		body.RequestID = uuid.NewString()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleLastBlock(w http.ResponseWriter, r *http.Request) {
	block, err := s.store.ProcessedTimepoint(r.Context(), store.CursorPoints)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, map[string]uint64{"last_block_number": 0})
			return
		}
		s.log.WithError(err).Error("last_block")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]uint64{"last_block_number": block})
}

// parseReceiverType validates the {receiver_type} path segment.
func parseReceiverType(s string) (store.ReceiverType, bool) {
	switch store.ReceiverType(s) {
	case store.ReceiverStaker, store.ReceiverOperator, store.ReceiverNetwork:
		return store.ReceiverType(s), true
	default:
		return "", false
	}
}

// parseBlockNumberQuery reads the optional block_number query param,
// defaulting to the current points cursor (i.e. "as of now") when absent.
func (s *Server) parseBlockNumberQuery(r *http.Request) (uint64, error) {
	raw := r.URL.Query().Get("block_number")
	if raw == "" {
		return s.store.ProcessedTimepoint(r.Context(), store.CursorPoints)
	}
	return strconv.ParseUint(raw, 10, 64)
}

type pointsRowJSON struct {
	NetworkAddress  string `json:"network_address"`
	VaultAddress    string `json:"vault_address"`
	OperatorAddress string `json:"operator_address,omitempty"`
	StakerAddress   string `json:"staker_address,omitempty"`
	ReceiverType    string `json:"receiver_type,omitempty"`
	Points          string `json:"points"`
}

func toRowJSON(row store.PointsRow) pointsRowJSON {
	out := pointsRowJSON{
		NetworkAddress: row.Network.Hex(),
		VaultAddress:   row.Vault.Hex(),
		ReceiverType:   string(row.ReceiverType),
		Points:         row.Points.Dec(),
	}
	if !row.Operator.IsZero() {
		out.OperatorAddress = row.Operator.Hex()
	}
	if !row.Staker.IsZero() {
		out.StakerAddress = row.Staker.Hex()
	}
	return out
}

// handleReceiverPoints serves GET /api/{receiver_type}/{address}.
func (s *Server) handleReceiverPoints(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	receiverType, ok := parseReceiverType(vars["receiver_type"])
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("receiver_type must be one of staker, operator, network"))
		return
	}
	addr, err := address.Parse(vars["address"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	asOf, err := s.parseBlockNumberQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("block_number must be a non-negative integer"))
		return
	}

	var rows []store.PointsRow
	switch receiverType {
	case store.ReceiverStaker:
		rows, err = s.store.PointsByStaker(r.Context(), addr, asOf)
	case store.ReceiverOperator:
		rows, err = s.store.PointsByOperator(r.Context(), addr, asOf)
	case store.ReceiverNetwork:
		rows, err = s.store.PointsByNetwork(r.Context(), addr, asOf)
	}
	if err != nil {
		s.log.WithError(err).WithField("receiver_type", receiverType).Error("receiver_points")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]pointsRowJSON, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRowJSON(row))
	}
	writeJSON(w, struct {
		ReceiverAddress string          `json:"receiver_address"`
		ReceiverType    string          `json:"receiver_type"`
		BlockNumber     uint64          `json:"block_number"`
		Points          []pointsRowJSON `json:"points"`
	}{
		ReceiverAddress: addr.Hex(),
		ReceiverType:    string(receiverType),
		BlockNumber:     asOf,
		Points:          out,
	})
}

// handleStats serves GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var receiverType store.ReceiverType
	if raw := r.URL.Query().Get("receiver_type"); raw != "" {
		rt, ok := parseReceiverType(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, errors.New("receiver_type must be one of staker, operator, network"))
			return
		}
		receiverType = rt
	}
	asOf, err := s.parseBlockNumberQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("block_number must be a non-negative integer"))
		return
	}

	stats, err := s.store.GetStats(r.Context(), asOf, receiverType)
	if err != nil {
		s.log.WithError(err).Error("stats")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, struct {
		TotalPoints string `json:"total_points"`
		Stakers     uint64 `json:"stakers"`
		Networks    uint64 `json:"networks"`
		Operators   uint64 `json:"operators"`
	}{
		TotalPoints: stats.TotalPoints.Dec(),
		Stakers:     stats.StakerCount,
		Networks:    stats.NetworkCount,
		Operators:   stats.OperatorCount,
	})
}

// handleAll serves GET /api/all.
func (s *Server) handleAll(w http.ResponseWriter, r *http.Request) {
	var receiverType store.ReceiverType
	if raw := r.URL.Query().Get("receiver_type"); raw != "" {
		rt, ok := parseReceiverType(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, errors.New("receiver_type must be one of staker, operator, network"))
			return
		}
		receiverType = rt
	}
	asOf, err := s.parseBlockNumberQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("block_number must be a non-negative integer"))
		return
	}
	offset, limit := 0, 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, errors.New("offset must be a non-negative integer"))
			return
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
	}

	rows, err := s.store.AllPoints(r.Context(), asOf, receiverType, offset, limit)
	if err != nil {
		s.log.WithError(err).Error("all_points")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]pointsRowJSON, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRowJSON(row))
	}
	writeJSON(w, out)
}
