package adminapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ReviewRampLab/creditengine/pkg/creditledger"
)

const (
	errorCodeInvalidArgument     = "invalid_argument"
	errorCodeNotFound            = "not_found"
	errorCodeDuplicate           = "duplicate"
	errorCodeInsufficientBalance = "insufficient_balance"
	errorCodeInvalidState        = "invalid_campaign_state"
	errorCodeMismatch            = "campaign_mismatch"
	errorCodeInternal            = "internal"
)

var invalidArgumentErrors = []error{
	creditledger.ErrInvalidAccountID,
	creditledger.ErrInvalidCampaignID,
	creditledger.ErrInvalidActorID,
	creditledger.ErrInvalidIdempotencyKey,
	creditledger.ErrInvalidAmount,
	creditledger.ErrInvalidMetadataJSON,
	creditledger.ErrInvalidDistributionRate,
	creditledger.ErrInvalidTargetReviews,
	creditledger.ErrInvalidOverbooking,
}

func respondError(ctx *gin.Context, err error) {
	status, code := mapToHTTPError(err)
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func mapToHTTPError(source error) (int, string) {
	for _, invalid := range invalidArgumentErrors {
		if errors.Is(source, invalid) {
			return http.StatusBadRequest, errorCodeInvalidArgument
		}
	}
	if errors.Is(source, creditledger.ErrAccountNotFound) || errors.Is(source, creditledger.ErrCampaignNotFound) {
		return http.StatusNotFound, errorCodeNotFound
	}
	if errors.Is(source, creditledger.ErrDuplicateIdempotencyKey) ||
		errors.Is(source, creditledger.ErrAccountExists) ||
		errors.Is(source, creditledger.ErrCampaignExists) {
		return http.StatusConflict, errorCodeDuplicate
	}
	if errors.Is(source, creditledger.ErrInsufficientBalance) {
		return http.StatusUnprocessableEntity, errorCodeInsufficientBalance
	}
	if errors.Is(source, creditledger.ErrInvalidCampaignState) {
		return http.StatusConflict, errorCodeInvalidState
	}
	if errors.Is(source, creditledger.ErrMismatchedCampaigns) || errors.Is(source, creditledger.ErrCampaignAccountMismatch) {
		return http.StatusUnprocessableEntity, errorCodeMismatch
	}
	return http.StatusInternalServerError, errorCodeInternal
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
