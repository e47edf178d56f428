package realitylog

import (
	"net/http"

	"github.com/realitylog/realitylog/pkg/auth"
	"github.com/realitylog/realitylog/pkg/client"
	"github.com/realitylog/realitylog/pkg/models"
)

// handleRegister creates a viewer profile and signs it in. New profiles never
// get a more privileged role here; admins promote them through /api/users.
func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req client.RegisterRequest
	if err := a.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	sess, err := a.auth.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req client.LoginRequest
	if err := a.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	sess, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// handleLogout ends the session and closes its console. It succeeds even when
// the token is unknown.
func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token != "" {
		a.auth.Logout(token)
		a.consoles.Close(token)
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// handleRefresh rotates the token. The console follows the session.
func (a *App) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	sess, err := a.auth.Refresh(r.Context(), token)
	if err != nil {
		fail(w, r, err)
		return
	}
	a.consoles.Rename(token, sess.Token)
	respondJSON(w, http.StatusOK, sess)
}

func (a *App) handleMe(w http.ResponseWriter, r *http.Request, u *models.User) {
	respondJSON(w, http.StatusOK, u)
}

func (a *App) handleListUsers(w http.ResponseWriter, r *http.Request, _ *models.User) {
	users, err := a.store.ListUsers(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (a *App) handleCreateUser(w http.ResponseWriter, r *http.Request, admin *models.User) {
	var req client.CreateUserRequest
	if err := a.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		fail(w, r, invalidParam("role", err))
		return
	}
	u, err := a.auth.CreateUser(r.Context(), admin, auth.NewUser{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        role,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, u)
}

func (a *App) handleUpdateUser(w http.ResponseWriter, r *http.Request, admin *models.User) {
	id, err := pathID(r, models.ParseUserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req client.UpdateUserRequest
	if err := a.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}

	ctx := r.Context()
	u, err := a.store.GetUser(ctx, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	if u == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	if req.DisplayName != nil {
		u.DisplayName = *req.DisplayName
	}
	if req.Role != nil {
		if u.Role, err = models.ParseRole(*req.Role); err != nil {
			fail(w, r, invalidParam("role", err))
			return
		}
	}
	if err := a.store.UpdateUser(ctx, u); err != nil {
		fail(w, r, err)
		return
	}
	a.logger.Info().Str("user", u.ID.String()).Str("role", string(u.Role)).Str("by", admin.ID.String()).Msg("user updated")
	respondJSON(w, http.StatusOK, u)
}

// handleDeleteUser removes a profile and ends its sessions. Admins cannot delete
// themselves.
func (a *App) handleDeleteUser(w http.ResponseWriter, r *http.Request, admin *models.User) {
	id, err := pathID(r, models.ParseUserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if id == admin.ID {
		respondError(w, http.StatusConflict, "cannot delete your own account")
		return
	}
	if err := a.store.DeleteUser(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	a.auth.Revoke(id)
	respondJSON(w, http.StatusNoContent, nil)
}
