package http

import (
	"errors"
	"net/http"

	"content-distributor/domain/dto"
	"content-distributor/domain/model"
	"content-distributor/domain/repository"
	"content-distributor/infrastructure/logger"
	"content-distributor/usecase"

	"github.com/gin-gonic/gin"
)

type IDistributionHandler interface {
	Distribute(ctx *gin.Context)
	ListRecords(ctx *gin.Context)
	ListAudit(ctx *gin.Context)
	GetPlatforms(ctx *gin.Context)
}

type DistributionHandler struct {
	distributionUsecase usecase.IDistributionUsecase
	platforms           []string
}

func NewDistributionHandler(uc usecase.IDistributionUsecase, platforms []string) IDistributionHandler {
	return &DistributionHandler{distributionUsecase: uc, platforms: platforms}
}

type distributeRequest struct {
	Official  bool     `json:"official"`
	Platforms []string `json:"platforms"`
}

func callerOf(ctx *gin.Context) dto.Caller {
	return dto.Caller{UserID: ctx.GetString("user_id"), Admin: ctx.GetBool("is_admin")}
}

// Distribute fans the content item out to the caller's accounts, or to the
// official accounts when the body asks for it and the caller is an admin.
func (h *DistributionHandler) Distribute(ctx *gin.Context) {
	contentID := ctx.Param("contentId")
	caller := callerOf(ctx)
	userID := caller.UserID

	var body distributeRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&body); err != nil {
			ctx.JSON(http.StatusBadRequest, dto.Res{ResponseCode: "400", ResponseMessage: "invalid request body"})
			return
		}
	}
	req := dto.DistributeRequest{ContentID: contentID, UserID: userID, Official: body.Official, Platforms: body.Platforms, Caller: &caller}

	resp, err := h.distributionUsecase.Distribute(ctx.Request.Context(), req)
	if err != nil {
		status, code := statusOf(err)
		logger.GetLogger().WithField("content_id", contentID).WithField("user_id", userID).WithField("error", err.Error()).Warn("distribute request failed")
		ctx.JSON(status, dto.Res{ResponseCode: code, ResponseMessage: err.Error()})
		return
	}
	ctx.JSON(http.StatusAccepted, dto.Res{ResponseCode: "202", ResponseMessage: "Accepted", Data: resp})
}

func (h *DistributionHandler) ListRecords(ctx *gin.Context) {
	contentID := ctx.Param("contentId")
	list, err := h.distributionUsecase.ListRecords(ctx.Request.Context(), callerOf(ctx), contentID)
	if err != nil {
		status, code := statusOf(err)
		ctx.JSON(status, dto.Res{ResponseCode: code, ResponseMessage: err.Error()})
		return
	}
	if list == nil {
		list = []*model.PublishRecord{}
	}
	ctx.JSON(http.StatusOK, gin.H{"content_id": contentID, "records": list})
}

func (h *DistributionHandler) ListAudit(ctx *gin.Context) {
	contentID := ctx.Param("contentId")
	trail, err := h.distributionUsecase.ListAudit(ctx.Request.Context(), callerOf(ctx), contentID)
	if err != nil {
		status, code := statusOf(err)
		ctx.JSON(status, dto.Res{ResponseCode: code, ResponseMessage: err.Error()})
		return
	}
	if trail == nil {
		trail = []model.PublishAudit{}
	}
	ctx.JSON(http.StatusOK, gin.H{"content_id": contentID, "audit": trail})
}

func (h *DistributionHandler) GetPlatforms(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"platforms": h.platforms})
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, usecase.ErrInvalidRequest):
		return http.StatusBadRequest, "400"
	case errors.Is(err, usecase.ErrForbidden):
		return http.StatusForbidden, "403"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "404"
	default:
		return http.StatusInternalServerError, "500"
	}
}
