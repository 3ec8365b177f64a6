package server

import "net/http"

// routes builds the HTTP route table
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Conversation
	mux.HandleFunc("/api/chat", s.app.ChatHandler.TurnHandler)
	mux.HandleFunc("/api/chat/health", s.app.ChatHandler.HealthHandler)

	// Documents
	mux.HandleFunc("/api/documents", s.documentsDispatch)
	mux.HandleFunc("/api/documents/", s.app.DocumentHandler.DocumentRoutes)

	// Sessions
	mux.HandleFunc("/api/sessions/", s.app.SessionHandler.SessionRoutes)

	// Events
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Service
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return s.withMiddleware(mux)
}

// documentsDispatch routes /api/documents by method
func (s *Server) documentsDispatch(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.app.DocumentHandler.UploadHandler(w, r)
	case http.MethodGet:
		s.app.DocumentHandler.ListHandler(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
