package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ufirm/fingercounter/internal/store"
)

// SpeechHandler exposes the speech cache index.
type SpeechHandler struct {
	store *store.Store
}

// NewSpeechHandler creates a new SpeechHandler with the given store.
func NewSpeechHandler(s *store.Store) *SpeechHandler {
	return &SpeechHandler{store: s}
}

// ServeHTTP serves GET /api/speech and GET /api/speech/{word}?lang=xx.
func (h *SpeechHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	word := strings.TrimPrefix(r.URL.Path, "/api/speech")
	word = strings.TrimPrefix(word, "/")

	if word == "" {
		h.list(w, r)
		return
	}
	h.get(w, r, word)
}

type speechEntryResponse struct {
	Word       string `json:"word"`
	Lang       string `json:"lang"`
	TLD        string `json:"tld"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	SizeHuman  string `json:"size_human"`
	Hits       int    `json:"hits"`
	CreatedAt  string `json:"created_at"`
	LastUsedAt string `json:"last_used_at"`
	LastUsed   string `json:"last_used"`
}

type listSpeechResponse struct {
	Entries        []speechEntryResponse `json:"entries"`
	TotalSize      int64                 `json:"total_size"`
	TotalSizeHuman string                `json:"total_size_human"`
}

func toSpeechResponse(e *store.SpeechEntry) speechEntryResponse {
	return speechEntryResponse{
		Word:       e.Word,
		Lang:       e.Lang,
		TLD:        e.TLD,
		Path:       e.Path,
		Size:       e.Size,
		SizeHuman:  humanize.Bytes(uint64(e.Size)),
		Hits:       e.Hits,
		CreatedAt:  e.CreatedAt.Format(time.RFC3339),
		LastUsedAt: e.LastUsedAt.Format(time.RFC3339),
		LastUsed:   humanize.Time(e.LastUsedAt),
	}
}

// list handles GET /api/speech.
func (h *SpeechHandler) list(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.Speech().List()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list speech cache")
		return
	}

	total, err := h.store.Speech().TotalSize()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to size speech cache")
		return
	}

	response := listSpeechResponse{
		Entries:        make([]speechEntryResponse, 0, len(entries)),
		TotalSize:      total,
		TotalSizeHuman: humanize.Bytes(uint64(total)),
	}
	for _, e := range entries {
		response.Entries = append(response.Entries, toSpeechResponse(e))
	}

	WriteJSON(w, http.StatusOK, response)
}

// get handles GET /api/speech/{word}.
func (h *SpeechHandler) get(w http.ResponseWriter, r *http.Request, word string) {
	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = "en"
	}

	entry, err := h.store.Speech().Get(word, lang)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Speech entry not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to get speech entry")
		return
	}

	WriteJSON(w, http.StatusOK, toSpeechResponse(entry))
}
