package server

import (
	"encoding/json"
	"net/http"

	"github.com/derktes/pi-ir/pulse"
)

// apiResponse is the envelope of every JSON response.
type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

const (
	eventStored  = "stored"
	eventDeleted = "deleted"
)

// codeEvent is pushed to /codes/stream subscribers.
type codeEvent struct {
	Type string     `json:"type"`
	Code storedCode `json:"code"`
}

// rawCodeEvent is pushed to /listen subscribers.
type rawCodeEvent struct {
	Pin  int        `json:"pin"`
	Code pulse.Code `json:"code"`
}

func sendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func sendSuccess(w http.ResponseWriter, data interface{}) {
	sendJSON(w, http.StatusOK, data)
}

func sendError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}
