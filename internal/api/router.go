package api

import "net/http"

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /api/generate-pairing", h.GeneratePairing)
	mux.HandleFunc("POST /api/send-message", h.SendMessage)
	mux.HandleFunc("POST /api/send-bulk", h.SendBulk)
	mux.HandleFunc("POST /api/stop-task", h.StopTask)
	mux.HandleFunc("GET /api/task-status/{taskId}", h.TaskStatus)
	mux.HandleFunc("GET /api/task-stream/{taskId}", h.TaskStream)
	mux.HandleFunc("GET /api/stats", h.Stats)

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("whatsapp-auto-sender"))
	})

	return withCORS(mux)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("Access-Control-Allow-Origin", "*")
		hdr.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		hdr.Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
