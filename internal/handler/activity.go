package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/ecoquest/internal/auth"
	"github.com/dukerupert/ecoquest/internal/i18n"
	"github.com/dukerupert/ecoquest/internal/photo"
	"github.com/dukerupert/ecoquest/internal/profile"
	"github.com/dukerupert/ecoquest/internal/review"
)

// maxSubmitBody leaves room for form fields next to the largest photo.
const maxSubmitBody = photo.MaxSize*4/3 + 64<<10

type ActivityHandler struct {
	profiles *profile.Service
	queue    *review.Queue
	logger   *slog.Logger
}

func NewActivityHandler(ps *profile.Service, q *review.Queue, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{profiles: ps, queue: q, logger: logger}
}

type submitRequest struct {
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	// Photo is base64, optionally as a data URL.
	Photo            string `json:"photo"`
	PhotoContentType string `json:"photo_content_type"`
}

func decodeDataURL(s, contentType string) (*profile.Photo, error) {
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, photo.ErrInvalidPhoto
		}
		contentType = strings.TrimSuffix(meta, ";base64")
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, photo.ErrInvalidPhoto
	}
	return &profile.Photo{ContentType: contentType, Data: data}, nil
}

func readSubmission(r *http.Request) (profile.SubmitInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(photo.MaxSize); err != nil {
			return profile.SubmitInput{}, err
		}
		in := profile.SubmitInput{
			Category:    r.FormValue("category"),
			Title:       r.FormValue("title"),
			Description: r.FormValue("description"),
		}
		file, header, err := r.FormFile("photo")
		if errors.Is(err, http.ErrMissingFile) {
			return in, nil
		}
		if err != nil {
			return in, err
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, photo.MaxSize+1))
		if err != nil {
			return in, err
		}
		in.Photo = &profile.Photo{ContentType: header.Header.Get("Content-Type"), Data: data}
		return in, nil
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return profile.SubmitInput{}, err
	}
	in := profile.SubmitInput{
		Category:    req.Category,
		Title:       req.Title,
		Description: req.Description,
	}
	if req.Photo != "" {
		p, err := decodeDataURL(req.Photo, req.PhotoContentType)
		if err != nil {
			return in, err
		}
		in.Photo = p
	}
	return in, nil
}

// Submit handles POST /api/activities
func (h *ActivityHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxSubmitBody)

	in, err := readSubmission(r)
	if errors.Is(err, photo.ErrInvalidPhoto) {
		writeError(w, r, http.StatusBadRequest, "invalid_photo", i18n.InvalidPhoto)
		return
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, r, http.StatusRequestEntityTooLarge, "invalid_photo", i18n.InvalidPhoto)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", i18n.InvalidRequest)
		return
	}

	a, err := h.profiles.SubmitActivity(r.Context(), id, in)
	if err != nil {
		respondError(w, r, h.logger, "submit activity", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// Pending handles GET /api/activities/pending
func (h *ActivityHandler) Pending(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	list, err := h.queue.ListPending(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, "list pending", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Approved handles GET /api/activities/approved
func (h *ActivityHandler) Approved(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	list, err := h.queue.ListApproved(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, "list approved", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Mine handles GET /api/activities/mine
func (h *ActivityHandler) Mine(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	list, err := h.queue.ListOwn(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, "list own", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Recent handles GET /api/activities/recent?school=&class=
func (h *ActivityHandler) Recent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.queue.Recent(r.Context(), q.Get("school"), q.Get("class"))
	if err != nil {
		respondError(w, r, h.logger, "list recent", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type approveRequest struct {
	Points *int `json:"points"`
}

// Approve handles POST /api/activities/{id}/approve. An omitted points
// value keeps the points fixed at submission.
func (h *ActivityHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	activityID, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", i18n.InvalidRequest)
		return
	}

	var req approveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, r, http.StatusBadRequest, "invalid_request", i18n.InvalidRequest)
			return
		}
	}

	appr, err := h.queue.Approve(r.Context(), actor, activityID, req.Points)
	if err != nil {
		respondError(w, r, h.logger, "approve activity", err)
		return
	}
	writeJSON(w, http.StatusOK, appr)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject handles POST /api/activities/{id}/reject
func (h *ActivityHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())
	activityID, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", i18n.InvalidRequest)
		return
	}

	var req rejectRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, r, http.StatusBadRequest, "invalid_request", i18n.InvalidRequest)
			return
		}
	}

	a, err := h.queue.Reject(r.Context(), actor, activityID, req.Reason)
	if err != nil {
		respondError(w, r, h.logger, "reject activity", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Leaderboard handles GET /api/leaderboard?school=&class=&limit=
func (h *ActivityHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_request", i18n.InvalidRequest)
			return
		}
		limit = n
	}

	rankings, err := h.queue.Leaderboard(r.Context(), q.Get("school"), q.Get("class"), limit)
	if err != nil {
		respondError(w, r, h.logger, "leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, rankings)
}
