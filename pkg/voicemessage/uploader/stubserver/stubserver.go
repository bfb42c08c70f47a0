// Package stubserver implements the receiving side of the save-voice
// endpoint in memory. It is meant for tests and local runs of the CLI.
package stubserver

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

const (
	path                = "/save-voice/"
	fieldVoiceRecording = "voice_recording"
	fieldWishID         = "wish_id"
	headerCSRFToken     = "X-CSRFToken"
	cookieCSRFToken     = "csrftoken"
	maxUploadSize       = 32 << 20

	MessageSaved         = "Voice message saved successfully!"
	MessageNoRecording   = "No voice recording provided"
	MessageInvalidWishID = "Invalid wish ID"
	MessageCSRFFailed    = "CSRF verification failed"
)

type Upload struct {
	WishID      string
	FileName    string
	ContentType string
	Data        []byte
}

type Server struct {
	chi.Router

	locker   sync.Mutex
	uploads  []Upload
	failNext []int
}

func New() *Server {
	s := &Server{
		Router: chi.NewRouter(),
	}
	s.Router.Post(path, s.saveVoice)
	return s
}

// FailNext makes the next upload fail with the given HTTP status and a
// JSON body {"success": false, "message": http.StatusText(status)}.
func (s *Server) FailNext(status int) {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.failNext = append(s.failNext, status)
}

func (s *Server) Uploads() []Upload {
	s.locker.Lock()
	defer s.locker.Unlock()
	return append([]Upload(nil), s.uploads...)
}

func (s *Server) saveVoice(w http.ResponseWriter, r *http.Request) {
	if status, ok := s.popFailure(); ok {
		writeJSON(w, status, false, http.StatusText(status))
		return
	}

	cookie, err := r.Cookie(cookieCSRFToken)
	if err != nil || cookie.Value == "" || cookie.Value != r.Header.Get(headerCSRFToken) {
		writeJSON(w, http.StatusForbidden, false, MessageCSRFFailed)
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, false, MessageNoRecording)
		return
	}
	file, header, err := r.FormFile(fieldVoiceRecording)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, false, MessageNoRecording)
		return
	}
	defer file.Close()

	wishID := r.FormValue(fieldWishID)
	if wishID == "" {
		writeJSON(w, http.StatusBadRequest, false, MessageInvalidWishID)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, false, MessageNoRecording)
		return
	}

	s.locker.Lock()
	s.uploads = append(s.uploads, Upload{
		WishID:      wishID,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	s.locker.Unlock()
	writeJSON(w, http.StatusOK, true, MessageSaved)
}

func (s *Server) popFailure() (int, bool) {
	s.locker.Lock()
	defer s.locker.Unlock()
	if len(s.failNext) == 0 {
		return 0, false
	}
	status := s.failNext[0]
	s.failNext = s.failNext[1:]
	return status, true
}

func writeJSON(w http.ResponseWriter, status int, success bool, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Success bool   `json:"success"`
		Message string `json:"message,omitempty"`
	}{
		Success: success,
		Message: message,
	})
}
