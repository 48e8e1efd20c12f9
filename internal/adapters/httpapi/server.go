package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/Lumos-Programming/profile-api/internal/adapters/wire"
	"github.com/Lumos-Programming/profile-api/internal/app/profiles"
	"github.com/Lumos-Programming/profile-api/internal/domain"
	"github.com/Lumos-Programming/profile-api/internal/platform/metrics"
	clockport "github.com/Lumos-Programming/profile-api/internal/ports/out/clock"
	"github.com/Lumos-Programming/profile-api/internal/ports/out/idempotency"
	"github.com/Lumos-Programming/profile-api/internal/ports/out/profilegateway"
)

const (
	basicInfoRoute = "/api/profile/basic-info"
	maxBodyBytes   = 1 << 20
)

// Server is the HTTP adapter over the profiles service.
type Server struct {
	Profiles *profiles.Service
	// Idem is optional; without it Idempotency-Key headers are ignored.
	Idem    idempotency.Store
	Clock   clockport.Clock
	Log     *slog.Logger
	Metrics *metrics.Metrics

	// LinkStates holds the expected OAuth state per service; empty means unchecked.
	LinkStates map[domain.ServiceID]string
}

func NewServer(profilesSvc *profiles.Service, idem idempotency.Store, clk clockport.Clock, log *slog.Logger, met *metrics.Metrics) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		Profiles: profilesSvc,
		Idem:     idem,
		Clock:    clk,
		Log:      log,
		Metrics:  met,
	}
}

func (s *Server) GetBasicInfo(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	p, err := s.Profiles.GetMyProfile(r.Context(), sub)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.writeProfile(w, r, p)
}

// PutBasicInfo replaces the caller's record.
//
// Idempotency-Key handling:
// - replay the stored response if the same caller+key+route sends the same body
// - reject with 409 if the body differs
func (s *Server) PutBasicInfo(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body too large", nil)
		return
	}
	p, err := wire.Decode(s.Profiles.Registry(), raw)
	if err != nil {
		var se *profilegateway.SchemaError
		if errors.As(err, &se) {
			writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", se.Error(), map[string]any{"key": se.Key, "reason": se.Reason})
			return
		}
		s.writeAppError(w, r, err)
		return
	}

	bodyHash, err := hashProfile(p)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	var fp idempotency.Fingerprint
	useIdem := s.Idem != nil && r.Header.Get("Idempotency-Key") != ""
	if useIdem {
		fp = idempotency.Fingerprint{
			Key:     idempotency.Key(r.Header.Get("Idempotency-Key")),
			Subject: sub,
			Method:  http.MethodPut,
			Route:   basicInfoRoute,
		}
		rec, found, err := s.Idem.Get(r.Context(), fp)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		if found {
			if rec.BodyHash != bodyHash {
				writeError(w, r, http.StatusConflict, "IDEMPOTENCY_KEY_REUSE", "idempotency key reuse with different payload", nil)
				return
			}
			s.Metrics.Replay()
			w.Header().Set("Content-Type", rec.ContentType)
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.Body)
			return
		}
	}

	saved, err := s.Profiles.ReplaceMyProfile(r.Context(), sub, p)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	body, err := wire.Encode(saved)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	if useIdem {
		if err := s.Idem.Put(r.Context(), fp, idempotency.Record{
			BodyHash:    bodyHash,
			StatusCode:  http.StatusOK,
			ContentType: "application/json",
			Body:        body,
			CreatedAt:   s.Clock.Now().UTC(),
		}); err != nil {
			s.Log.Warn("storing idempotency record failed", "err", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) GetPreview(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	mv, err := s.Profiles.PreviewMyProfile(r.Context(), sub)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MemberResponse{Member: memberFromView(mv, true)})
}

func (s *Server) GetCompleteness(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	c, err := s.Profiles.Completeness(r.Context(), sub)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	missing := make([]string, 0, len(c.Missing))
	for _, id := range c.Missing {
		missing = append(missing, string(id))
	}
	writeJSON(w, http.StatusOK, CompletenessResponse{Complete: c.Complete, MissingServices: missing})
}

func (s *Server) ListMembers(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	views, err := s.Profiles.ListMembers(r.Context(), sub)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	out := make([]Member, 0, len(views))
	for _, mv := range views {
		out = append(out, memberFromView(mv, false))
	}
	writeJSON(w, http.StatusOK, ListMembersResponse{Members: out})
}

func (s *Server) GetMember(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	var memberID openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "memberId", chi.URLParam(r, "memberId"), &memberID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "memberId must be a UUID", map[string]any{"memberId": err.Error()})
		return
	}
	mv, err := s.Profiles.ViewMember(r.Context(), sub, domain.MemberID(memberID.String()))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MemberResponse{Member: memberFromView(mv, true)})
}

// LinkAccountCallback completes an OAuth account link and returns the updated record.
func (s *Server) LinkAccountCallback(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	var service string
	err := runtime.BindStyledParameterWithOptions("simple", "service", chi.URLParam(r, "service"), &service,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "invalid service", map[string]any{"service": err.Error()})
		return
	}
	var code string
	if err := runtime.BindQueryParameter("form", true, true, "code", r.URL.Query(), &code); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "code is required", map[string]any{"code": err.Error()})
		return
	}
	var state string
	if err := runtime.BindQueryParameter("form", true, false, "state", r.URL.Query(), &state); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "invalid state", map[string]any{"state": err.Error()})
		return
	}
	if want := s.LinkStates[domain.ServiceID(service)]; want != "" && state != want {
		writeError(w, r, http.StatusBadRequest, "INVALID_STATE", "state does not match", nil)
		return
	}

	saved, err := s.Profiles.ConnectAccount(r.Context(), sub, domain.ServiceID(service), code)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.writeProfile(w, r, saved)
}

func (s *Server) subject(w http.ResponseWriter, r *http.Request) (domain.SubjectID, bool) {
	sub, ok := SubjectFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing subject", nil)
		return "", false
	}
	return domain.SubjectID(sub), true
}

func (s *Server) writeProfile(w http.ResponseWriter, r *http.Request, p *domain.Profile) {
	body, err := wire.Encode(p)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	if ae := (*profiles.Error)(nil); errors.As(err, &ae) {
		writeError(w, r, ae.Status, ae.Code, ae.Message, ae.Details)
		return
	}
	s.Log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}

// hashProfile hashes the canonical encoding, so key order and whitespace in the
// request do not affect replay.
func hashProfile(p *domain.Profile) (string, error) {
	b, err := wire.Encode(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
