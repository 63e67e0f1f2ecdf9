package runtime

import (
	"net/http"
	"strings"

	"github.com/drblury/crudflow/internal/runtime/jsoncodec"
	"github.com/drblury/crudflow/transport"
)

// transportInfo is served on /api/transport.
type transportInfo struct {
	PubSubSystem  string                 `json:"pubsub_system"`
	EventEncoding string                 `json:"event_encoding"`
	BusRPC        bool                   `json:"bus_rpc"`
	Capabilities  transport.Capabilities `json:"capabilities"`
}

// startWebUIServer mounts the read-only introspection API.
func (s *Service) startWebUIServer() {
	if !s.Conf.WebUIEnabled {
		return
	}
	port := s.Conf.WebUIPort
	if port == 0 {
		port = 8081
	}
	s.RegisterHTTPHandler(port, "/api/procedures", s.withCORS(s.handleListProcedures))
	s.RegisterHTTPHandler(port, "/api/procedures/{name}", s.withCORS(s.handleGetProcedure))
	s.RegisterHTTPHandler(port, "/api/transport", s.withCORS(s.handleTransport))
}

// withCORS answers preflight requests and restricts the API to GET.
func (s *Service) withCORS(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			next(w, r)
		default:
			w.Header().Set("Allow", "GET, OPTIONS")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func (s *Service) handleListProcedures(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Procedures())
}

func (s *Service) handleGetProcedure(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	for _, info := range s.Procedures() {
		if info.Name == name {
			s.writeJSON(w, http.StatusOK, info)
			return
		}
	}
	s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "procedure not found: " + name})
}

func (s *Service) handleTransport(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, transportInfo{
		PubSubSystem:  s.Conf.PubSubSystem,
		EventEncoding: string(s.encoding),
		BusRPC:        s.Conf.BusRPCEnabled,
		Capabilities:  transport.GetCapabilities(s.Conf.PubSubSystem),
	})
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := jsoncodec.Marshal(v)
	if err != nil {
		s.Logger.Error("Failed to encode web UI response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// allowedOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when CORS is off or the origin is not listed.
func (s *Service) allowedOrigin(origin string) string {
	for _, allowed := range s.Conf.WebUICORSAllowedOrigins {
		switch {
		case allowed == "*":
			return "*"
		case origin != "" && strings.EqualFold(allowed, origin):
			return origin
		}
	}
	return ""
}
