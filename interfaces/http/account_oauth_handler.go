package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"content-distributor/domain/dto"
	"content-distributor/domain/repository"
	"content-distributor/infrastructure/cache"
	"content-distributor/infrastructure/logger"
	"content-distributor/usecase"

	"github.com/gin-gonic/gin"
)

type IAccountOAuthHandler interface {
	Reconnect(ctx *gin.Context)
	Callback(ctx *gin.Context)
}

type AccountOAuthHandler struct {
	accountUsecase usecase.IAccountUsecase
}

func NewAccountOAuthHandler(uc usecase.IAccountUsecase) IAccountOAuthHandler {
	return &AccountOAuthHandler{accountUsecase: uc}
}

// Reconnect handles GET /api/accounts/:accountId/reconnect
func (h *AccountOAuthHandler) Reconnect(ctx *gin.Context) {
	accountID, err := strconv.ParseInt(ctx.Param("accountId"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, dto.Res{ResponseCode: "400", ResponseMessage: "invalid account id"})
		return
	}
	authURL, err := h.accountUsecase.ReconnectURL(ctx.Request.Context(), ctx.GetString("user_id"), accountID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, repository.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, usecase.ErrForbidden):
			status = http.StatusForbidden
		case errors.Is(err, usecase.ErrNoOAuthClient):
			status = http.StatusBadRequest
		}
		ctx.JSON(status, dto.Res{ResponseCode: strconv.Itoa(status), ResponseMessage: err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"auth_url": authURL})
}

// Callback handles GET /auth/callback
func (h *AccountOAuthHandler) Callback(ctx *gin.Context) {
	if errorParam := ctx.Query("error"); errorParam != "" {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":       fmt.Sprintf("OAuth error: %s", errorParam),
			"description": ctx.Query("error_description"),
		})
		return
	}
	acct, err := h.accountUsecase.CompleteReconnect(ctx.Request.Context(), ctx.Query("state"), ctx.Query("code"))
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, usecase.ErrInvalidRequest), errors.Is(err, cache.ErrStateNotFound):
			status = http.StatusBadRequest
		case errors.Is(err, repository.ErrNotFound):
			status = http.StatusNotFound
		}
		logger.GetLogger().WithField("error", err.Error()).Warn("oauth callback failed")
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success":          true,
		"account_id":       acct.ID,
		"platform":         acct.Platform,
		"token_expires_at": acct.TokenExpiresAt,
	})
}
