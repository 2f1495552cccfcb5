package documents

import (
	"collabnotes-server/core"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type (
	CreateNoteRequest struct {
		Title  string `json:"title"`
		RoomID string `json:"roomId"`
	}

	UpdateNoteRequest struct {
		Title   *string `json:"title"`
		Content *string `json:"content"`
	}
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// HandleList returns every note, most recently updated first.
func HandleList(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := store.List(r.Context())
		if err != nil {
			logrus.WithError(err).Error("Failed to list notes")
			http.Error(w, "Failed to list notes", http.StatusInternalServerError)
			return
		}
		if docs == nil {
			docs = []*core.Document{}
		}
		render.JSON(w, r, docs)
	}
}

// HandleCreate creates an empty note. The room id is generated unless the
// client supplies one.
func HandleCreate(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateNoteRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			logrus.WithError(err).Debug("Failed to decode create request")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		title := strings.TrimSpace(req.Title)
		if title == "" {
			http.Error(w, "Title is required", http.StatusBadRequest)
			return
		}

		roomID := req.RoomID
		if roomID == "" {
			roomID = uuid.NewString()
		} else if !roomIDPattern.MatchString(roomID) {
			http.Error(w, "Invalid room id", http.StatusBadRequest)
			return
		}

		doc, err := store.Create(r.Context(), title, roomID)
		if err != nil {
			writeStoreError(w, roomID, "create", err)
			return
		}

		logrus.WithField("document_id", doc.ID).Info("Created note")
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, doc)
	}
}

func HandleGet(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		if roomID == "" {
			http.Error(w, "Note not found", http.StatusNotFound)
			return
		}

		doc, err := store.Get(r.Context(), roomID)
		if err != nil {
			writeStoreError(w, roomID, "get", err)
			return
		}
		render.JSON(w, r, doc)
	}
}

// HandlePatch overwrites the title and/or content of a note.
func HandlePatch(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		if roomID == "" {
			http.Error(w, "Note not found", http.StatusNotFound)
			return
		}

		var req UpdateNoteRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			logrus.WithError(err).Debug("Failed to decode update request")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		patch := core.DocumentPatch{Title: req.Title, Content: req.Content}
		if patch.Empty() {
			http.Error(w, "Nothing to update", http.StatusBadRequest)
			return
		}

		doc, err := store.Patch(r.Context(), roomID, patch)
		if err != nil {
			writeStoreError(w, roomID, "update", err)
			return
		}
		render.JSON(w, r, doc)
	}
}

func writeStoreError(w http.ResponseWriter, roomID, op string, err error) {
	log := logrus.WithFields(logrus.Fields{
		"document_id": roomID,
		"op":          op,
	}).WithError(err)

	switch {
	case errors.Is(err, core.ErrDocumentNotFound):
		log.Debug("Note not found")
		http.Error(w, "Note not found", http.StatusNotFound)
	case errors.Is(err, core.ErrInvalidDocumentID):
		log.Debug("Invalid room id")
		http.Error(w, "Invalid room id", http.StatusBadRequest)
	case errors.Is(err, core.ErrDocumentExists):
		log.Debug("Note already exists")
		http.Error(w, "Note already exists", http.StatusConflict)
	default:
		log.Error("Note store failed")
		http.Error(w, "Failed to "+op+" note", http.StatusInternalServerError)
	}
}
