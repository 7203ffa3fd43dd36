package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/tcriess/lightspeed-pagechat/rooms"
	"github.com/tcriess/lightspeed-pagechat/types"
)

type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Rooms       int       `json:"rooms"`
	Connections int       `json:"connections"`
}

type NormalizeResponse struct {
	Url    string `json:"url"`
	Key    string `json:"key"`
	RoomId string `json:"roomId,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter wires the websocket endpoint and the read-only admin API. Room ids in paths must be path-escaped,
// page room ids contain slashes.
func NewRouter(handler *Handler, directory *rooms.Directory, hub *Hub) *mux.Router {
	router := mux.NewRouter().UseEncodedPath().SkipClean(true)
	router.Handle("/ws", handler).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:      "UP",
			Timestamp:   time.Now(),
			Rooms:       directory.Len(),
			Connections: hub.NoClients(),
		})
	}).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, directory.List())
	}).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/{id:.+}", func(w http.ResponseWriter, r *http.Request) {
		id, err := url.PathUnescape(mux.Vars(r)["id"])
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		detail, err := directory.Detail(id)
		if errors.Is(err, types.ErrRoomNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}).Methods(http.MethodGet)
	router.HandleFunc("/api/normalize", func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("url")
		key, err := directory.Normalize(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		resp := NormalizeResponse{Url: raw, Key: key}
		if room, ok := directory.GetRoomByUrl(raw); ok {
			resp.RoomId = room.Id
		}
		writeJSON(w, http.StatusOK, resp)
	}).Methods(http.MethodGet)
	return router
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
