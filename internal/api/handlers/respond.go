package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"go.uber.org/zap"

	"deploy-orchestrator-go/internal/domain"
)

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

// respondWithError sends an error JSON response
func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, errorResponse{Error: message})
}

// respondWithDomainError maps err onto a status code. Client errors echo the
// error text; anything unexpected is logged and hidden behind fallback.
func respondWithDomainError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	var verrs domain.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Fields: verrs.Fields()})
	case errors.Is(err, domain.ErrValidation):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAuthorizationMismatch):
		respondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrShuttingDown):
		respondWithError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Error(fallback, zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, fallback)
	}
}
