package server

import "net/http"

type searchRequest struct {
	FigureID string `json:"figure_id"`
	Query    string `json:"query"`
	NResults int    `json:"n_results"`
	// MinCosineSimilarity overrides the configured floor for this request.
	MinCosineSimilarity *float64 `json:"min_cosine_similarity"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	floor := s.cfg.Search.MinCosineSimilarity
	if req.MinCosineSimilarity != nil {
		floor = *req.MinCosineSimilarity
	}

	results, err := s.engine.SearchWithFloor(r.Context(), req.FigureID, req.Query, req.NResults, floor)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}
