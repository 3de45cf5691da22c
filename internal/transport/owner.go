package transport

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/FahadIshaq/scanback-backend/internal/auth"
	"github.com/FahadIshaq/scanback-backend/internal/domain/contact"
	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
	"github.com/FahadIshaq/scanback-backend/internal/notify"
	"github.com/go-chi/chi/v5"
)

type activateRequest struct {
	Details  map[string]any     `json:"details"`
	Contact  *tag.ContactPatch  `json:"contact"`
	Settings *tag.SettingsPatch `json:"settings"`
}

type contactRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// verifyRequest carries the OTP alongside an optional details patch.
type verifyRequest struct {
	OTP string `json:"otp"`
	tag.DetailsPatch
}

type listResponse struct {
	Tags   []tag.Summary `json:"tags"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())

	var req activateRequest
	if err := decodeOptional(r, &req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}

	rec, err := s.tags.Activate(r.Context(), tag.ActivateRequest{
		Code:     chi.URLParam(r, "code"),
		Owner:    owner,
		Details:  req.Details,
		Contact:  req.Contact,
		Settings: req.Settings,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())

	opts, err := parseListOptions(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	opts.Owner = owner

	tags, err := s.tags.List(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tags == nil {
		tags = []tag.Summary{}
	}
	writeJSON(w, http.StatusOK, listResponse{Tags: tags, Limit: opts.Limit, Offset: opts.Offset})
}

func (s *Server) handleGetTag(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.ownedTag(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateTag(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.ownedTag(w, r)
	if !ok {
		return
	}

	var patch tag.DetailsPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}

	updated, err := s.tags.UpdateDetails(r.Context(), rec.Code, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.ownedTag(w, r)
	if !ok {
		return
	}

	updated, err := s.tags.ToggleStatus(r.Context(), rec.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleContactRequest(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.ownedTag(w, r)
	if !ok {
		return
	}

	var req contactRequest
	if err := decodeOptional(r, &req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}

	challenge, err := s.contacts.RequestUpdate(r.Context(), contact.RequestInput{
		Code:          rec.Code,
		ProposedEmail: req.Email,
		ProposedPhone: req.Phone,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// The OTP leaves the process only through the notification channel.
	if s.events != nil {
		err = s.events.Publish(r.Context(), tag.Event{
			Kind:   tag.EventContactOTP,
			Code:   rec.Code,
			Record: *rec,
			Payload: notify.OTPPayload{
				Channel:     string(challenge.Channel),
				Destination: challenge.Destination,
				OTP:         challenge.OTP,
				ExpiresAt:   challenge.ExpiresAt,
			},
			OccurredAt: time.Now(),
		})
		if err != nil {
			s.logger.Warn("verification code not queued", "code", rec.Code, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable", Message: "verification code could not be sent"})
			return
		}
	}

	writeJSON(w, http.StatusAccepted, challenge)
}

func (s *Server) handleContactVerify(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.ownedTag(w, r)
	if !ok {
		return
	}

	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}

	updated, err := s.contacts.VerifyAndApply(r.Context(), rec.Code, req.OTP, req.DetailsPatch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// ownedTag loads the tag named in the path and checks the caller owns it.
// It writes the error response itself and reports whether to continue.
func (s *Server) ownedTag(w http.ResponseWriter, r *http.Request) (*tag.Record, bool) {
	owner, _ := auth.OwnerFromContext(r.Context())
	rec, err := s.tags.EnsureOwner(r.Context(), chi.URLParam(r, "code"), owner)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return rec, true
}

func parseListOptions(r *http.Request) (tag.ListOptions, error) {
	q := r.URL.Query()
	opts := tag.ListOptions{Limit: 50}

	for _, raw := range splitList(q["kind"]) {
		k := tag.Kind(raw)
		if !k.Valid() {
			return opts, errInvalidParam("kind")
		}
		opts.Kinds = append(opts.Kinds, k)
	}
	for _, raw := range splitList(q["status"]) {
		st := tag.Status(raw)
		if !st.Valid() {
			return opts, errInvalidParam("status")
		}
		opts.Statuses = append(opts.Statuses, st)
	}
	if v := q.Get("activated"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errInvalidParam("activated")
		}
		opts.Activated = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			return opts, errInvalidParam("limit")
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, errInvalidParam("offset")
		}
		opts.Offset = n
	}
	return opts, nil
}

// splitList accepts both repeated parameters and comma separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
