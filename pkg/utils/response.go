package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondErrorCode 发送带错误码的错误响应
func RespondErrorCode(w http.ResponseWriter, status int, code, message string) {
	RespondJSON(w, status, map[string]string{"error": message, "code": code})
}
