package httpapi

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/nickauth"
	"github.com/MrEthical07/nickauth/internal/httpx"
	"github.com/MrEthical07/nickauth/middleware"
)

type checkRequest struct {
	Nickname string `json:"nickname" validate:"required,min=3,max=30,nickname"`
}

func (r *checkRequest) normalize() { r.Nickname = normalizeNickname(r.Nickname) }

type loginRequest struct {
	Nickname string `json:"nickname" validate:"required,min=3,max=30,nickname"`
	Password string `json:"password" validate:"required,max=100"`
}

func (r *loginRequest) normalize() { r.Nickname = normalizeNickname(r.Nickname) }

type registerRequest struct {
	Nickname     string `json:"nickname" validate:"required,min=3,max=30,nickname"`
	Password     string `json:"password" validate:"required,min=8,max=100"`
	Email        string `json:"email" validate:"omitempty,email"`
	CaptchaToken string `json:"captchaToken"`
}

func (r *registerRequest) normalize() {
	r.Nickname = normalizeNickname(r.Nickname)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r *forgotPasswordRequest) normalize() { r.Email = strings.ToLower(strings.TrimSpace(r.Email)) }

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=100"`
}

type authResponse struct {
	AccessToken string                  `json:"accessToken"`
	User        *nickauth.PublicProfile `json:"user,omitempty"`
}

type checkResponse struct {
	Exists  bool   `json:"exists"`
	Action  string `json:"action"`
	Message string `json:"message"`
}

func normalizeNickname(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (s *Server) checkUser(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errors.Write(w, r, err)
		return
	}
	res, err := s.engine.CheckUser(r.Context(), req.Nickname)
	if err != nil {
		s.errors.Write(w, r, err)
		return
	}
	msg := "User not found. Please register"
	if res.Exists {
		msg = "User found. Please enter your password"
	}
	httpx.OK(w, http.StatusOK, checkResponse{Exists: res.Exists, Action: res.Action, Message: msg}, "")
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errors.Write(w, r, err)
		return
	}
	res, err := s.engine.Login(r.Context(), req.Nickname, req.Password)
	if err != nil {
		s.errors.Write(w, r, err)
		return
	}
	s.cookies.SetRefreshToken(w, res.RefreshToken)
	httpx.OK(w, http.StatusOK, authResponse{AccessToken: res.AccessToken, User: &res.User}, "Login successful")
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errors.Write(w, r, err)
		return
	}
	res, err := s.engine.Register(r.Context(), nickauth.RegisterInput{
		Nickname:     req.Nickname,
		Password:     req.Password,
		Email:        req.Email,
		CaptchaToken: req.CaptchaToken,
	})
	if err != nil {
		s.errors.Write(w, r, err)
		return
	}
	s.cookies.SetRefreshToken(w, res.RefreshToken)
	httpx.OK(w, http.StatusCreated, authResponse{AccessToken: res.AccessToken, User: &res.User}, "Registration successful")
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Refresh(r.Context(), s.cookies.RefreshToken(r))
	if err != nil {
		s.errors.Write(w, r, err)
		return
	}
	s.cookies.SetRefreshToken(w, res.RefreshToken)
	httpx.OK(w, http.StatusOK, authResponse{AccessToken: res.AccessToken}, "")
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var userID string
	if id, ok := middleware.IdentityFromContext(r.Context()); ok {
		userID = id.UserID
	}
	if token := s.cookies.RefreshToken(r); token != "" {
		s.engine.Logout(r.Context(), userID, token)
	}
	s.cookies.ClearRefreshToken(w)
	httpx.OK(w, http.StatusOK, nil, "Logout successful")
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errors.Write(w, r, err)
		return
	}
	if err := s.engine.ForgotPassword(r.Context(), req.Email); err != nil {
		s.errors.Write(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, nil, "If the user exists, a password reset email has been sent")
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errors.Write(w, r, err)
		return
	}
	if err := s.engine.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		s.errors.Write(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, nil, "Password has been reset successfully. Please login with your new password")
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		s.errors.Write(w, r, nickauth.ErrUnauthorized)
		return
	}
	profile, err := s.engine.GetMe(r.Context(), id.UserID)
	if err != nil {
		s.errors.Write(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, profile, "")
}
