package transport

import (
	"net/http"

	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
	"github.com/go-chi/chi/v5"
)

type scanRequest struct {
	Location *tag.Location `json:"location"`
}

type foundRequest struct {
	FinderName  string        `json:"finder_name"`
	FinderPhone string        `json:"finder_phone"`
	FinderEmail string        `json:"finder_email"`
	Location    *tag.Location `json:"location"`
	Notes       string        `json:"notes"`
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	view, err := s.lookup.Lookup(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeOptional(r, &req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}

	rec, err := s.tags.Scan(r.Context(), chi.URLParam(r, "code"), tag.ScanMeta{
		Source:   r.RemoteAddr,
		Agent:    r.UserAgent(),
		Location: req.Location,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tag.NewPublicView(rec))
}

func (s *Server) handleFound(w http.ResponseWriter, r *http.Request) {
	var req foundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}

	rec, err := s.tags.ReportFound(r.Context(), chi.URLParam(r, "code"), tag.FinderReport{
		Name:     req.FinderName,
		Phone:    req.FinderPhone,
		Email:    req.FinderEmail,
		Location: req.Location,
		Notes:    req.Notes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tag.NewPublicView(rec))
}
