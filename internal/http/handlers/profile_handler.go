package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pixter/pixter-backend/internal/http/handlers/common"
	"github.com/pixter/pixter-backend/internal/pkg/apperror"
	"github.com/pixter/pixter-backend/internal/service"
)

// ProfileHandler отвечает за работу с профилем.
type ProfileHandler struct {
	profiles ProfileAPI
}

// NewProfileHandler создаёт экземпляр.
func NewProfileHandler(profiles ProfileAPI) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// GetMe возвращает профиль текущего пользователя.
func (h *ProfileHandler) GetMe(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	profile, err := h.profiles.Get(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// UpdateMe обновляет профиль текущего пользователя. tipo не меняется.
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	var req struct {
		Nome  *string `json:"nome"`
		Email *string `json:"email"`
		CPF   *string `json:"cpf"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	profile, err := h.profiles.Update(c.Request.Context(), userID, service.ProfileUpdateInput{
		Nome:  req.Nome,
		Email: req.Email,
		CPF:   req.CPF,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// UploadAvatar обрабатывает POST /api/profile/avatar (multipart, поле "file").
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	h.upload(c, h.profiles.UploadAvatar)
}

// UploadSelfie обрабатывает POST /api/profile/selfie (multipart, поле "file").
func (h *ProfileHandler) UploadSelfie(c *gin.Context) {
	h.upload(c, h.profiles.UploadSelfie)
}

func (h *ProfileHandler) upload(c *gin.Context, save func(ctx context.Context, userID uuid.UUID, r io.Reader) (string, error)) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		common.Fail(c, apperror.ErrInvalidUpload)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		common.Fail(c, apperror.ErrInvalidUpload.WithCause(err))
		return
	}
	defer file.Close()

	publicURL, err := save(c.Request.Context(), userID, file)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": publicURL})
}

// PublicDriverInfo обрабатывает GET /api/public/driver-info/:phone.
func (h *ProfileHandler) PublicDriverInfo(c *gin.Context) {
	info, err := h.profiles.PublicDriverInfo(c.Request.Context(), c.Param("phone"))
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}
