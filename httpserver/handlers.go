package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/sandbox"
)

const maxBodyBytes = 64 << 10

// MsgInvalidBody is returned for bodies that are not a JSON object
const MsgInvalidBody = "Invalid request body"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, sandbox.Response{Error: msg})
}

// runCodeRequest keeps both fields as raw JSON so a value of the wrong type
// is reported as invalid code or an unsupported language rather than a
// malformed body.
type runCodeRequest struct {
	Language json.RawMessage `json:"language"`
	Code     json.RawMessage `json:"code"`
}

// stringField decodes a JSON string, reporting false for a missing field,
// null or any other JSON type.
func stringField(raw json.RawMessage) (string, bool) {
	var v string
	if len(raw) == 0 || string(raw) == "null" || json.Unmarshal(raw, &v) != nil {
		return "", false
	}
	return v, true
}

func (s *Server) handleRunCode(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var body runCodeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, MsgInvalidBody)
		return
	}

	code, ok := stringField(body.Code)
	if !ok {
		writeError(w, http.StatusBadRequest, sandbox.MsgInvalidCode)
		return
	}

	// A missing or non-string language resolves to no runtime and is
	// rejected by the service after the code checks.
	language, _ := stringField(body.Language)

	result := s.executor.Execute(r.Context(), sandbox.SandboxRequest{Language: language, Code: code})

	s.logger.Debug("run-code finished",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("language", language),
		zap.Int("status", result.Status))

	writeJSON(w, result.Status, result.Body)
}

func (*Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
