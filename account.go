package oauth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// requireUserInfoToken authenticates the resource owner of the /me
// endpoints. Every failure is a 401.
func (h *Handler) requireUserInfoToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := h.server.AuthenticateBearer(r.Context(), bearerToken(r))
		if err != nil {
			h.writeErrorStatus(w, err, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithTokenInfo(r.Context(), info)))
	})
}

func username(r *http.Request) string {
	info, _ := TokenInfoFromContext(r.Context())
	if info == nil {
		return ""
	}
	return info.Username
}

// ServeUserInfo handles GET /me.
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	user, err := h.server.GetUserInfo(r.Context(), username(r))
	if err != nil {
		h.writeAccountError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

// ServeDeleteAccount handles DELETE /me.
func (h *Handler) ServeDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.server.DeleteAccount(r.Context(), username(r)); err != nil {
		h.writeAccountError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeListGrants handles GET /me/grants.
func (h *Handler) ServeListGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.server.ListGrants(r.Context(), username(r))
	if err != nil {
		h.writeAccountError(w, err)
		return
	}
	out := make([]GrantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, GrantResponse{
			GrantID:   g.GrantID,
			ClientID:  g.ClientID,
			Scope:     g.Scope,
			Audience:  g.Audience,
			CreatedAt: g.CreatedAt.Unix(),
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

// ServeRevokeGrant handles DELETE /me/grants/{id}.
func (h *Handler) ServeRevokeGrant(w http.ResponseWriter, r *http.Request) {
	if err := h.server.RevokeGrant(r.Context(), username(r), chi.URLParam(r, "id")); err != nil {
		h.writeAccountError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeListRefreshTokens handles GET /me/refreshTokens.
func (h *Handler) ServeListRefreshTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.server.ListRefreshTokens(r.Context(), username(r))
	if err != nil {
		h.writeAccountError(w, err)
		return
	}
	out := make([]RefreshTokenResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, RefreshTokenResponse{
			RefreshTokenID: t.RefreshTokenID,
			ClientID:       t.ClientID,
			GrantID:        t.GrantID,
			Scope:          t.Scope,
			Active:         t.Active,
			IssuedAt:       t.IssuedAt.Unix(),
			ExpiresAt:      t.ExpiresAt.Unix(),
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

// ServeRevokeRefreshToken handles DELETE /me/refreshTokens/{id}.
func (h *Handler) ServeRevokeRefreshToken(w http.ResponseWriter, r *http.Request) {
	if err := h.server.RevokeRefreshToken(r.Context(), username(r), chi.URLParam(r, "id")); err != nil {
		h.writeAccountError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
