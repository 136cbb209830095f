package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/xela07ax/copilot-governance/internal/domain"
)

type errorResponse struct {
	Code  domain.Code `json:"code"`
	Error string      `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError переводит код доменной ошибки в HTTP статус
func writeError(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	writeJSON(w, statusFor(code), errorResponse{Code: code, Error: err.Error()})
}

func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeRequestNotFound, domain.CodeReviewNotFound:
		return http.StatusNotFound
	case domain.CodeReviewAlreadyFinalized, domain.CodeInvalidTransition, domain.CodeRequestAlreadyExists:
		return http.StatusConflict
	case domain.CodeConfig:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			return domain.Validation("malformed JSON body")
		}
		return domain.Validation("invalid request body: " + err.Error())
	}
	return nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Validation(key + " must be an integer")
	}
	return n, nil
}
