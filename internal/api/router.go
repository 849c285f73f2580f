package api

import (
	"net/http"
	"strings"
)

func NewRouter(h *Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", get(h.HandleReady))
	mux.HandleFunc("/status", get(h.HandleStatus))
	mux.HandleFunc("/events", get(h.HandleListEvents))
	mux.HandleFunc("/fortunes", get(h.HandleListFortunes))
	mux.HandleFunc("/peer-token", post(h.HandleMintPeerToken))

	mux.HandleFunc("/commands/", func(w http.ResponseWriter, r *http.Request) {
		// /commands/{name}
		name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/commands/"), "/")
		if name == "" || strings.Contains(name, "/") {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.HandleCommand(w, r, name)
	})

	mux.HandleFunc("/debug/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		switch strings.TrimSuffix(r.URL.Path, "/") {
		case "/debug/finger":
			h.HandleDebugFinger(w, r)
		case "/debug/printer-reset":
			h.HandlePrinterReset(w, r)
		default:
			http.NotFound(w, r)
		}
	})

	return mux
}

func get(fn http.HandlerFunc) http.HandlerFunc {
	return method(http.MethodGet, fn)
}

func post(fn http.HandlerFunc) http.HandlerFunc {
	return method(http.MethodPost, fn)
}

func method(m string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fn(w, r)
	}
}
