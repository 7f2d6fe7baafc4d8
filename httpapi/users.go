package httpapi

import (
	"net/http"
	"strconv"

	"github.com/MrEthical07/nickauth"
	"github.com/MrEthical07/nickauth/internal/httpx"
	"github.com/MrEthical07/nickauth/store"
)

type listQuery struct {
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
	IsActive string `json:"isActive" validate:"omitempty,oneof=true false"`
}

type updateUserRequest struct {
	Role     *string `json:"role" validate:"omitempty,oneof=user admin"`
	IsActive *bool   `json:"isActive"`
}

type pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"hasNext"`
	HasPrev bool `json:"hasPrev"`
}

type userList struct {
	Users      []nickauth.PublicProfile `json:"users"`
	Pagination pagination               `json:"pagination"`
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lq := listQuery{Role: q.Get("role"), IsActive: q.Get("isActive")}
	if err := s.check(&lq); err != nil {
		s.errors.Write(w, r, err)
		return
	}

	filter := store.ListFilter{Role: nickauth.Role(lq.Role)}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	if lq.IsActive != "" {
		active := lq.IsActive == "true"
		filter.IsActive = &active
	}

	page, err := s.engine.ListUsers(r.Context(), filter)
	if err != nil {
		s.errors.Write(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, userList{
		Users: page.Users,
		Pagination: pagination{
			Page:    page.Page,
			Limit:   page.Limit,
			Total:   page.Total,
			Pages:   page.Pages,
			HasNext: page.Page < page.Pages,
			HasPrev: page.Page > 1,
		},
	}, "")
}

func (s *Server) userStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.UserStats(r.Context())
	if err != nil {
		s.errors.Write(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, stats, "")
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	profile, err := s.engine.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errors.Write(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, profile, "")
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errors.Write(w, r, err)
		return
	}
	upd := nickauth.UserUpdate{IsActive: req.IsActive}
	if req.Role != nil {
		role := nickauth.Role(*req.Role)
		upd.Role = &role
	}
	profile, err := s.engine.UpdateUser(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		s.errors.Write(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, profile, "User updated successfully")
}

func (s *Server) unlockUser(w http.ResponseWriter, r *http.Request) {
	profile, err := s.engine.UnlockUser(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errors.Write(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, profile, "User unlocked")
}

func (s *Server) revokeSessions(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.RevokeSessions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errors.Write(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]int{"revoked": n}, "Sessions revoked")
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		s.errors.Write(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, nil, "User deleted successfully")
}
