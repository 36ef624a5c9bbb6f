package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"authright.org/internal/auth"
	"authright.org/internal/obs"
	"authright.org/internal/registry"
)

type registerOrganizationRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type approvalRequest struct {
	Status *bool `json:"status"`
}

type claimRequest struct {
	Hash        string `json:"hash"`
	Description string `json:"description"`
	OrgCode     string `json:"org_code"`
}

type claimResponse struct {
	Hash   registry.Bytes      `json:"hash"`
	Owner  string              `json:"owner"`
	Detail registry.AuthDetail `json:"detail"`
}

func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	origin, ok := requireSigned(w, r)
	if !ok {
		return
	}
	var req registerOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Code == "" {
		writeError(w, r, http.StatusBadRequest, "code is required")
		return
	}
	evt, err := a.registry.Register(r.Context(), origin, []byte(req.Code), []byte(req.Name))
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/orgs/"+url.PathEscape(req.Code))
	writeJSON(w, http.StatusCreated, evt)
}

// handleOrganizationResource serves /v1/orgs/{code} and /v1/orgs/{code}/approval.
func (a *API) handleOrganizationResource(w http.ResponseWriter, r *http.Request) {
	segments, ok := pathSegments(r, "/v1/orgs/")
	if !ok || len(segments) == 0 || len(segments) > 2 || segments[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	code := []byte(segments[0])

	if len(segments) == 2 {
		if segments[1] != "approval" {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.approveOrganization(w, r, code)
		return
	}

	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	org, err := a.registry.Organization(r.Context(), code)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (a *API) approveOrganization(w http.ResponseWriter, r *http.Request, code []byte) {
	origin, ok := requireSigned(w, r)
	if !ok {
		return
	}
	var req approvalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Status == nil {
		writeError(w, r, http.StatusBadRequest, "status is required")
		return
	}
	evt, err := a.registry.Approve(r.Context(), origin, code, *req.Status)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

func (a *API) handleClaims(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	origin, ok := requireSigned(w, r)
	if !ok {
		return
	}
	var req claimRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	switch {
	case req.Hash == "":
		writeError(w, r, http.StatusBadRequest, "hash is required")
		return
	case req.OrgCode == "":
		writeError(w, r, http.StatusBadRequest, "org_code is required")
		return
	}
	evt, err := a.registry.Claim(r.Context(), origin, []byte(req.Hash), []byte(req.Description), []byte(req.OrgCode))
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/claims/"+url.PathEscape(req.Hash))
	writeJSON(w, http.StatusCreated, evt)
}

func (a *API) handleClaimResource(w http.ResponseWriter, r *http.Request) {
	segments, ok := pathSegments(r, "/v1/claims/")
	if !ok || len(segments) != 1 || segments[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	hash := []byte(segments[0])
	owner, err := a.registry.AuthRight(r.Context(), hash)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	detail, err := a.registry.AuthDetail(r.Context(), hash)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{Hash: registry.Bytes(hash), Owner: owner, Detail: detail})
}

// requireSigned resolves the caller and rejects anonymous writes.
func requireSigned(w http.ResponseWriter, r *http.Request) (auth.Origin, bool) {
	origin := auth.OriginFromContext(r.Context())
	if origin.Account == "" {
		w.Header().Set("WWW-Authenticate", `Bearer realm="authright"`)
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return auth.Origin{}, false
	}
	return origin, true
}

// pathSegments splits the escaped path after prefix and unescapes each
// segment, so keys may contain any character including "/".
func pathSegments(r *http.Request, prefix string) ([]string, bool) {
	rest, found := strings.CutPrefix(r.URL.EscapedPath(), prefix)
	if !found {
		return nil, false
	}
	raw := strings.Split(rest, "/")
	out := make([]string, 0, len(raw))
	for _, seg := range raw {
		s, err := url.PathUnescape(seg)
		if err != nil {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, registry.ErrOrganizationAlreadyExists),
		errors.Is(err, registry.ErrClaimAlreadyExists),
		errors.Is(err, registry.ErrOrganizationNotApproved):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrOrganizationNotFound), errors.Is(err, registry.ErrClaimNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrBadOrigin):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusServiceUnavailable, "request canceled")
	default:
		obs.Logger().Error().Err(err).
			Str("request_id", RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("registry operation failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
