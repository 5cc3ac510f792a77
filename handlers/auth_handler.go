package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Dosada05/esports-betting/middleware"
	"github.com/Dosada05/esports-betting/models"
	"github.com/Dosada05/esports-betting/services"
	"github.com/golang-jwt/jwt/v4"
)

type AuthHandler struct {
	authService services.AuthService
	jwtSecret   []byte
	tokenTTL    time.Duration
	now         func() time.Time
}

func NewAuthHandler(authService services.AuthService, jwtSecret string, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		jwtSecret:   []byte(jwtSecret),
		tokenTTL:    tokenTTL,
		now:         time.Now,
	}
}

func (h *AuthHandler) issueToken(user *models.User) (string, error) {
	now := h.now()
	claims := jwt.MapClaims{
		middleware.JWTClaimUserID:   user.ID,
		middleware.JWTClaimUsername: user.Username,
		"exp":                       now.Add(h.tokenTTL).Unix(),
		"iat":                       now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.jwtSecret)
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var input services.RegisterInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	user, err := h.authService.Register(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	respond(w, r, http.StatusCreated, jsonResponse{
		"message": "Account created successfully",
		"userId":  user.ID,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	user, err := h.authService.Login(r.Context(), services.LoginInput{Email: input.Email, Password: input.Password})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	tokenString, err := h.issueToken(user)
	if err != nil {
		serverErrorResponse(w, r, fmt.Errorf("failed to sign token: %w", err))
		return
	}

	respond(w, r, http.StatusOK, jsonResponse{
		"message":  "Login successful",
		"token":    tokenString,
		"userId":   user.ID,
		"username": user.Username,
	})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "unauthorized")
		return
	}
	user, err := h.authService.GetUser(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, user)
}
