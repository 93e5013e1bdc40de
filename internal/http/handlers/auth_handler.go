package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pixter/pixter-backend/internal/http/handlers/common"
	"github.com/pixter/pixter-backend/internal/logger"
	"github.com/pixter/pixter-backend/internal/service"
)

const (
	oauthStateCookie = "pixter_oauth_state"
	oauthStateMaxAge = 600
)

// AuthHandler предоставляет HTTP слой для входа по телефону, регистрации и сессий.
type AuthHandler struct {
	auth          AuthAPI
	codes         CodeSender
	appURL        string
	secureCookies bool
}

// NewAuthHandler создаёт хэндлер. appURL - адрес фронтенда, куда возвращается вход через Google.
func NewAuthHandler(auth AuthAPI, codes CodeSender, appURL string, secureCookies bool) *AuthHandler {
	return &AuthHandler{auth: auth, codes: codes, appURL: strings.TrimRight(appURL, "/"), secureCookies: secureCookies}
}

type phoneRequest struct {
	Phone       string `json:"phone"`
	CountryCode string `json:"country_code"`
}

// SendVerification обрабатывает POST /api/auth/send-verification.
func (h *AuthHandler) SendVerification(c *gin.Context) {
	var req phoneRequest
	if !common.BindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Phone) == "" {
		common.RespondBadRequest(c, "Telefone é obrigatório")
		return
	}

	phone, err := h.codes.Send(c.Request.Context(), req.Phone, req.CountryCode)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Código enviado com sucesso",
		"phone":   phone,
	})
}

// VerifyCode обрабатывает POST /api/auth/verify-code.
func (h *AuthHandler) VerifyCode(c *gin.Context) {
	var req struct {
		phoneRequest
		Code string `json:"code"`
	}
	if !common.BindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.Code) == "" {
		common.RespondBadRequest(c, "Telefone e código são obrigatórios")
		return
	}

	res, err := h.auth.VerifyCode(c.Request.Context(), req.Phone, req.CountryCode, strings.TrimSpace(req.Code), sessionMeta(c))
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse(res))
}

// CompleteRegistration обрабатывает POST /api/auth/complete-registration.
func (h *AuthHandler) CompleteRegistration(c *gin.Context) {
	var req struct {
		phoneRequest
		Code     string `json:"code"`
		Nome     string `json:"nome"`
		Tipo     string `json:"tipo"`
		CPF      string `json:"cpf"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	res, err := h.auth.CompleteRegistration(c.Request.Context(), service.RegistrationInput{
		Phone:       req.Phone,
		CountryCode: req.CountryCode,
		Code:        strings.TrimSpace(req.Code),
		Nome:        req.Nome,
		Tipo:        req.Tipo,
		CPF:         req.CPF,
		Email:       req.Email,
		Password:    req.Password,
	}, sessionMeta(c))
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, sessionResponse(res))
}

// Login обрабатывает POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "Email e senha são obrigatórios")
		return
	}

	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, sessionMeta(c))
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse(res))
}

// GoogleStart обрабатывает GET /api/auth/google: сохраняет state в cookie и перенаправляет на Google.
func (h *AuthHandler) GoogleStart(c *gin.Context) {
	authURL, state, err := h.auth.GoogleAuthURL()
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, oauthStateMaxAge, "/api/auth/google", "", h.secureCookies, true)
	c.Redirect(http.StatusFound, authURL)
}

// GoogleCallback обрабатывает GET /api/auth/google/callback.
// Результат передаётся фронтенду редиректом: токен во фрагменте, ошибка в query.
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	expected, _ := c.Cookie(oauthStateCookie)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, "", -1, "/api/auth/google", "", h.secureCookies, true)

	log := logger.Log.WithField("ip", c.ClientIP())
	if oauthErr := c.Query("error"); oauthErr != "" {
		log.WithField("oauth_error", oauthErr).Info("вход через Google отменён")
		h.redirectLoginError(c, "google_cancelled")
		return
	}

	state := c.Query("state")
	if expected == "" || state != expected {
		log.Warn("state Google OAuth не совпадает")
		h.redirectLoginError(c, "google_state")
		return
	}

	code := c.Query("code")
	if code == "" {
		h.redirectLoginError(c, "google_failed")
		return
	}

	res, err := h.auth.SignInWithGoogle(c.Request.Context(), code, sessionMeta(c))
	if err != nil {
		log.WithFields(logrus.Fields{"error": err.Error()}).Warn("вход через Google не удался")
		h.redirectLoginError(c, "google_failed")
		return
	}

	fragment := url.Values{}
	fragment.Set("token", res.Token)
	fragment.Set("tipo", res.Profile.Tipo)
	c.Redirect(http.StatusFound, h.appURL+"/auth/callback#"+fragment.Encode())
}

func (h *AuthHandler) redirectLoginError(c *gin.Context, reason string) {
	c.Redirect(http.StatusFound, h.appURL+"/login?error="+url.QueryEscape(reason))
}

// Logout обрабатывает POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}
	sessionID, err := common.CurrentSessionID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	if err := h.auth.Logout(c.Request.Context(), userID, sessionID); err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Session обрабатывает GET /api/auth/session.
func (h *AuthHandler) Session(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	user, profile, err := h.auth.Session(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "profile": profile})
}

// ListSessions обрабатывает GET /api/auth/sessions.
func (h *AuthHandler) ListSessions(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}
	current, _ := common.CurrentSessionID(c)

	sessions, err := h.auth.ListSessions(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "current_session_id": current})
}

// DeleteSession обрабатывает DELETE /api/auth/sessions/:id.
func (h *AuthHandler) DeleteSession(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.RespondBadRequest(c, "ID de sessão inválido")
		return
	}

	if err := h.auth.RevokeSession(c.Request.Context(), userID, sessionID); err != nil {
		common.Fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func sessionMeta(c *gin.Context) service.SessionMeta {
	return service.SessionMeta{UserAgent: c.GetHeader("User-Agent"), IP: c.ClientIP()}
}

func sessionResponse(res *service.AuthResult) gin.H {
	return gin.H{
		"token":      res.Token,
		"expires_at": res.ExpiresAt,
		"session_id": res.SessionID,
		"user":       res.User,
		"profile":    res.Profile,
	}
}
