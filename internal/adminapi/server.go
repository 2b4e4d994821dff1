// Package adminapi exposes the credit ledger and campaign pacing engine to
// the marketplace's admin panel over HTTP.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ReviewRampLab/creditengine/pkg/creditledger"
)

// Run boots the HTTP server using the supplied configuration.
func Run(ctx context.Context, cfg Config, service *creditledger.Service, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("admin api config: %w", err)
	}

	handler := &httpHandler{
		logger:  logger,
		service: service,
		cfg:     cfg,
	}

	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(authMiddleware([]byte(cfg.SessionSigningKey), cfg.SessionIssuer))

	api.POST("/accounts", handler.handleCreateAccount)
	api.GET("/accounts/:accountID/balance", handler.handleBalance)
	api.GET("/accounts/:accountID/ledger", handler.handleLedger)
	api.POST("/accounts/:accountID/credits/add", handler.handleAddCredits)
	api.POST("/accounts/:accountID/credits/remove", handler.handleRemoveCredits)
	api.POST("/accounts/:accountID/purchases", handler.handlePurchase)
	api.POST("/accounts/:accountID/renewals", handler.handleRenewal)
	api.POST("/accounts/:accountID/bonuses", handler.handleBonus)
	api.POST("/accounts/:accountID/expirations", handler.handleExpiration)

	api.POST("/campaigns", handler.handleCreateCampaign)
	api.GET("/campaigns/:campaignID/pool", handler.handlePool)
	api.GET("/campaigns/:campaignID/health", handler.handleHealth)
	api.POST("/campaigns/:campaignID/allocate", handler.handleAllocate)
	api.POST("/campaigns/:campaignID/deallocate", handler.handleDeallocate)
	api.POST("/campaigns/transfer", handler.handleTransfer)
	api.POST("/campaigns/:campaignID/activate", handler.handleActivate)
	api.POST("/campaigns/:campaignID/pause", handler.handlePause)
	api.POST("/campaigns/:campaignID/resume", handler.handleResume)
	api.POST("/campaigns/:campaignID/force-complete", handler.handleForceComplete)
	api.POST("/campaigns/:campaignID/distribution", handler.handleAdjustDistribution)
	api.POST("/campaigns/:campaignID/cancel", handler.handleCancel)
	api.POST("/campaigns/:campaignID/readers/remove", handler.handleRemoveReader)
	api.POST("/campaigns/:campaignID/readers/grant", handler.handleManualGrant)

	return router
}

type httpHandler struct {
	logger  *zap.Logger
	service *creditledger.Service
	cfg     Config
}

type mutationRequest struct {
	Amount         int64          `json:"amount"`
	Reason         string         `json:"reason"`
	IdempotencyKey string         `json:"idempotency_key"`
	Metadata       map[string]any `json:"metadata"`
}

type createAccountRequest struct {
	AccountID string `json:"account_id"`
}

type createCampaignRequest struct {
	CampaignID         string `json:"campaign_id"`
	AccountID          string `json:"account_id"`
	TargetReviews      int64  `json:"target_reviews"`
	ReviewsPerWeek     int64  `json:"reviews_per_week"`
	OverbookingPercent int64  `json:"overbooking_percent"`
	OverbookingEnabled bool   `json:"overbooking_enabled"`
}

type allocateRequest struct {
	mutationRequest
	AccountID string `json:"account_id"`
}

type transferRequest struct {
	mutationRequest
	FromCampaignID string `json:"from_campaign_id"`
	ToCampaignID   string `json:"to_campaign_id"`
}

type resumeRequest struct {
	CatchUp bool `json:"catch_up"`
}

type forceCompleteRequest struct {
	mutationRequest
	RefundUnused bool `json:"refund_unused"`
}

type distributionRequest struct {
	ReviewsPerWeek int64 `json:"reviews_per_week"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type removeReaderRequest struct {
	mutationRequest
	RefundToAccount bool `json:"refund_to_account"`
}

type grantReaderRequest struct {
	Reason string `json:"reason"`
}

// mutationInputs parses the shared fields of every balance-changing request.
type mutationInputs struct {
	amount   creditledger.CreditAmount
	actor    creditledger.ActorID
	key      creditledger.IdempotencyKey
	metadata creditledger.MetadataJSON
	reason   string
}

func (handler *httpHandler) parseMutation(ctx *gin.Context, request mutationRequest) (mutationInputs, bool) {
	amount, err := creditledger.NewCreditAmount(request.Amount)
	if err != nil {
		respondError(ctx, err)
		return mutationInputs{}, false
	}
	actor, err := creditledger.NewActorID(actorFrom(ctx))
	if err != nil {
		respondError(ctx, err)
		return mutationInputs{}, false
	}
	key, err := creditledger.NewIdempotencyKey(request.IdempotencyKey)
	if err != nil {
		respondError(ctx, err)
		return mutationInputs{}, false
	}
	metadata, err := creditledger.NewMetadataJSON(marshalMetadata(request.Metadata))
	if err != nil {
		respondError(ctx, err)
		return mutationInputs{}, false
	}
	return mutationInputs{amount: amount, actor: actor, key: key, metadata: metadata, reason: request.Reason}, true
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) handleCreateAccount(ctx *gin.Context) {
	var request createAccountRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	accountID, err := creditledger.NewAccountID(request.AccountID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.CreateAccount(requestCtx, accountID); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"account_id": accountID.String()})
}

func (handler *httpHandler) handleBalance(ctx *gin.Context) {
	accountID, err := creditledger.NewAccountID(ctx.Param("accountID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	balance, err := handler.service.Balance(requestCtx, accountID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"account_id":              accountID.String(),
		"available_credits":       balance.AvailableCredits,
		"total_credits_purchased": balance.TotalCreditsPurchased,
		"total_credits_used":      balance.TotalCreditsUsed,
	})
}

func (handler *httpHandler) handleLedger(ctx *gin.Context) {
	accountID, err := creditledger.NewAccountID(ctx.Param("accountID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	before, err := strconv.ParseInt(ctx.DefaultQuery("before", "0"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "before must be a unix timestamp"))
		return
	}
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", strconv.Itoa(handler.cfg.LedgerHistoryLimit)))
	if err != nil || limit <= 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "limit must be a positive integer"))
		return
	}
	if limit > handler.cfg.LedgerHistoryLimit {
		limit = handler.cfg.LedgerHistoryLimit
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entries, err := handler.service.LedgerEntries(requestCtx, accountID, before, limit)
	if err != nil {
		respondError(ctx, err)
		return
	}

	payload := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, entryPayloadFrom(entry))
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": payload})
}

func (handler *httpHandler) handleAddCredits(ctx *gin.Context) {
	handler.handleAccountMutation(ctx, func(requestCtx context.Context, accountID creditledger.AccountID, inputs mutationInputs) error {
		return handler.service.AddCredits(requestCtx, accountID, inputs.amount, inputs.actor, inputs.reason, inputs.key, inputs.metadata)
	})
}

func (handler *httpHandler) handleRemoveCredits(ctx *gin.Context) {
	handler.handleAccountMutation(ctx, func(requestCtx context.Context, accountID creditledger.AccountID, inputs mutationInputs) error {
		return handler.service.RemoveCredits(requestCtx, accountID, inputs.amount, inputs.actor, inputs.reason, inputs.key, inputs.metadata)
	})
}

func (handler *httpHandler) handlePurchase(ctx *gin.Context) {
	handler.handleAccountMutation(ctx, func(requestCtx context.Context, accountID creditledger.AccountID, inputs mutationInputs) error {
		return handler.service.RecordPurchase(requestCtx, accountID, inputs.amount, inputs.reason, inputs.key, inputs.metadata)
	})
}

func (handler *httpHandler) handleRenewal(ctx *gin.Context) {
	handler.handleAccountMutation(ctx, func(requestCtx context.Context, accountID creditledger.AccountID, inputs mutationInputs) error {
		return handler.service.RecordRenewal(requestCtx, accountID, inputs.amount, inputs.reason, inputs.key, inputs.metadata)
	})
}

func (handler *httpHandler) handleBonus(ctx *gin.Context) {
	handler.handleAccountMutation(ctx, func(requestCtx context.Context, accountID creditledger.AccountID, inputs mutationInputs) error {
		return handler.service.GrantBonus(requestCtx, accountID, inputs.amount, inputs.actor, inputs.reason, inputs.key, inputs.metadata)
	})
}

func (handler *httpHandler) handleExpiration(ctx *gin.Context) {
	handler.handleAccountMutation(ctx, func(requestCtx context.Context, accountID creditledger.AccountID, inputs mutationInputs) error {
		return handler.service.ExpireCredits(requestCtx, accountID, inputs.amount, inputs.reason, inputs.key, inputs.metadata)
	})
}

func (handler *httpHandler) handleAccountMutation(ctx *gin.Context, mutate func(context.Context, creditledger.AccountID, mutationInputs) error) {
	accountID, err := creditledger.NewAccountID(ctx.Param("accountID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	var request mutationRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	inputs, ok := handler.parseMutation(ctx, request)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := mutate(requestCtx, accountID, inputs); err != nil {
		respondError(ctx, err)
		return
	}
	handler.respondWithBalance(ctx, accountID)
}

func (handler *httpHandler) handleCreateCampaign(ctx *gin.Context) {
	var request createCampaignRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	campaignID, err := creditledger.NewCampaignID(request.CampaignID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	accountID, err := creditledger.NewAccountID(request.AccountID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.CreateCampaign(requestCtx, campaignID, accountID, request.TargetReviews, request.ReviewsPerWeek, request.OverbookingPercent, request.OverbookingEnabled); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"campaign_id": campaignID.String()})
}

func (handler *httpHandler) handlePool(ctx *gin.Context) {
	campaignID, err := creditledger.NewCampaignID(ctx.Param("campaignID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	pool, err := handler.service.CampaignPoolState(requestCtx, campaignID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"campaign_id":       campaignID.String(),
		"credits_allocated": pool.CreditsAllocated,
		"credits_used":      pool.CreditsUsed,
		"credits_remaining": pool.CreditsRemaining,
	})
}

func (handler *httpHandler) handleHealth(ctx *gin.Context) {
	campaignID, err := creditledger.NewCampaignID(ctx.Param("campaignID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	report, err := handler.service.CampaignHealth(requestCtx, campaignID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"campaign_id":               campaignID.String(),
		"status":                    string(report.Status),
		"weeks_elapsed":             report.WeeksElapsed,
		"total_planned_weeks":       report.TotalPlannedWeeks,
		"reviews_expected":          report.ReviewsExpected,
		"variance":                  report.Variance,
		"weeks_remaining":           report.WeeksRemaining,
		"projected_completion_unix": report.ProjectedCompletionUnixUTC,
		"days_off_schedule":         report.DaysOffSchedule,
	})
}

func (handler *httpHandler) handleAllocate(ctx *gin.Context) {
	campaignID, err := creditledger.NewCampaignID(ctx.Param("campaignID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	var request allocateRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	accountID, err := creditledger.NewAccountID(request.AccountID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	inputs, ok := handler.parseMutation(ctx, request.mutationRequest)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.AllocateToCampaign(requestCtx, accountID, campaignID, inputs.amount, inputs.actor, inputs.reason, inputs.key, inputs.metadata); err != nil {
		respondError(ctx, err)
		return
	}
	handler.respondWithPool(ctx, campaignID)
}

func (handler *httpHandler) handleDeallocate(ctx *gin.Context) {
	campaignID, err := creditledger.NewCampaignID(ctx.Param("campaignID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	var request mutationRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	inputs, ok := handler.parseMutation(ctx, request)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.DeallocateFromCampaign(requestCtx, campaignID, inputs.amount, inputs.actor, inputs.reason, inputs.key, inputs.metadata); err != nil {
		respondError(ctx, err)
		return
	}
	handler.respondWithPool(ctx, campaignID)
}

func (handler *httpHandler) handleTransfer(ctx *gin.Context) {
	var request transferRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	fromCampaignID, err := creditledger.NewCampaignID(request.FromCampaignID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	toCampaignID, err := creditledger.NewCampaignID(request.ToCampaignID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	inputs, ok := handler.parseMutation(ctx, request.mutationRequest)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.TransferBetweenCampaigns(requestCtx, fromCampaignID, toCampaignID, inputs.amount, inputs.actor, inputs.reason, inputs.key, inputs.metadata); err != nil {
		respondError(ctx, err)
		return
	}
	handler.respondWithPool(ctx, toCampaignID)
}

func (handler *httpHandler) handleActivate(ctx *gin.Context) {
	handler.handleCampaignTransition(ctx, func(requestCtx context.Context, campaignID creditledger.CampaignID, actor creditledger.ActorID) error {
		return handler.service.ActivateCampaign(requestCtx, campaignID, actor)
	})
}

func (handler *httpHandler) handlePause(ctx *gin.Context) {
	handler.handleCampaignTransition(ctx, func(requestCtx context.Context, campaignID creditledger.CampaignID, actor creditledger.ActorID) error {
		return handler.service.PauseDistribution(requestCtx, campaignID, actor)
	})
}

func (handler *httpHandler) handleResume(ctx *gin.Context) {
	campaignID, err := creditledger.NewCampaignID(ctx.Param("campaignID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	actor, err := creditledger.NewActorID(actorFrom(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	var request resumeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if !request.CatchUp {
		if err := handler.service.ResumeDistribution(requestCtx, campaignID, actor); err != nil {
			respondError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"campaign_id": campaignID.String(), "status": "active"})
		return
	}
	result, err := handler.service.ResumeWithCatchUp(requestCtx, campaignID, actor)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"campaign_id":         campaignID.String(),
		"status":              "active",
		"pause_duration_days": result.PauseDurationDays,
		"missed_reviews":      result.MissedReviews,
		"new_expected_end":    result.NewExpectedEndUnixUTC,
	})
}

func (handler *httpHandler) handleForceComplete(ctx *gin.Context) {
	campaignID, err := creditledger.NewCampaignID(ctx.Param("campaignID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	var request forceCompleteRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	actor, err := creditledger.NewActorID(actorFrom(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	key, err := creditledger.NewIdempotencyKey(request.IdempotencyKey)
	if err != nil {
		respondError(ctx, err)
		return
	}
	metadata, err := creditledger.NewMetadataJSON(marshalMetadata(request.Metadata))
	if err != nil {
		respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.ForceCompleteCampaign(requestCtx, campaignID, actor, request.Reason, request.RefundUnused, key, metadata); err != nil {
		respondError(ctx, err)
		return
	}
	handler.respondWithPool(ctx, campaignID)
}

func (handler *httpHandler) handleAdjustDistribution(ctx *gin.Context) {
	campaignID, err := creditledger.NewCampaignID(ctx.Param("campaignID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	var request distributionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	actor, err := creditledger.NewActorID(actorFrom(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.AdjustDistribution(requestCtx, campaignID, request.ReviewsPerWeek, actor); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"campaign_id": campaignID.String(), "reviews_per_week": request.ReviewsPerWeek})
}

func (handler *httpHandler) handleCancel(ctx *gin.Context) {
	campaignID, err := creditledger.NewCampaignID(ctx.Param("campaignID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	actor, err := creditledger.NewActorID(actorFrom(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	var request cancelRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.CancelCampaign(requestCtx, campaignID, actor, request.Reason); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"campaign_id": campaignID.String(), "status": "cancelled"})
}

func (handler *httpHandler) handleRemoveReader(ctx *gin.Context) {
	campaignID, err := creditledger.NewCampaignID(ctx.Param("campaignID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	var request removeReaderRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	actor, err := creditledger.NewActorID(actorFrom(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	key, err := creditledger.NewIdempotencyKey(request.IdempotencyKey)
	if err != nil {
		respondError(ctx, err)
		return
	}
	metadata, err := creditledger.NewMetadataJSON(marshalMetadata(request.Metadata))
	if err != nil {
		respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.RemoveReaderAllocation(requestCtx, campaignID, actor, request.Reason, request.RefundToAccount, key, metadata); err != nil {
		respondError(ctx, err)
		return
	}
	handler.respondWithPool(ctx, campaignID)
}

func (handler *httpHandler) handleManualGrant(ctx *gin.Context) {
	campaignID, err := creditledger.NewCampaignID(ctx.Param("campaignID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	actor, err := creditledger.NewActorID(actorFrom(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	var request grantReaderRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.ManualGrantToReader(requestCtx, campaignID, actor, request.Reason); err != nil {
		respondError(ctx, err)
		return
	}
	handler.respondWithPool(ctx, campaignID)
}

func (handler *httpHandler) handleCampaignTransition(ctx *gin.Context, transition func(context.Context, creditledger.CampaignID, creditledger.ActorID) error) {
	campaignID, err := creditledger.NewCampaignID(ctx.Param("campaignID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	actor, err := creditledger.NewActorID(actorFrom(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := transition(requestCtx, campaignID, actor); err != nil {
		respondError(ctx, err)
		return
	}
	handler.respondWithPool(ctx, campaignID)
}

func (handler *httpHandler) respondWithBalance(ctx *gin.Context, accountID creditledger.AccountID) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	balance, err := handler.service.Balance(requestCtx, accountID)
	if err != nil {
		handler.logger.Error("balance fetch failed", zap.Error(err))
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"account_id":              accountID.String(),
		"available_credits":       balance.AvailableCredits,
		"total_credits_purchased": balance.TotalCreditsPurchased,
		"total_credits_used":      balance.TotalCreditsUsed,
	})
}

func (handler *httpHandler) respondWithPool(ctx *gin.Context, campaignID creditledger.CampaignID) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	pool, err := handler.service.CampaignPoolState(requestCtx, campaignID)
	if err != nil {
		handler.logger.Error("pool fetch failed", zap.Error(err))
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"campaign_id":       campaignID.String(),
		"credits_allocated": pool.CreditsAllocated,
		"credits_used":      pool.CreditsUsed,
		"credits_remaining": pool.CreditsRemaining,
	})
}

type entryPayload struct {
	EntryID        string          `json:"entry_id"`
	CampaignID     string          `json:"campaign_id,omitempty"`
	Kind           string          `json:"kind"`
	Amount         int64           `json:"amount"`
	BalanceAfter   int64           `json:"balance_after"`
	PerformedBy    string          `json:"performed_by,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	Metadata       json.RawMessage `json:"metadata"`
	CreatedUnixUTC int64           `json:"created_unix_utc"`
}

func entryPayloadFrom(entry creditledger.Entry) entryPayload {
	payload := entryPayload{
		EntryID:        entry.EntryID,
		Kind:           string(entry.Kind),
		Amount:         entry.Amount,
		BalanceAfter:   entry.BalanceAfter,
		Reason:         entry.Reason,
		IdempotencyKey: entry.IdempotencyKey.String(),
		Metadata:       json.RawMessage(entry.Metadata.String()),
		CreatedUnixUTC: entry.CreatedUnixUTC,
	}
	if entry.CampaignID != nil {
		payload.CampaignID = entry.CampaignID.String()
	}
	if entry.PerformedBy != nil {
		payload.PerformedBy = entry.PerformedBy.String()
	}
	return payload
}

func marshalMetadata(metadata map[string]any) string {
	if metadata == nil {
		return "{}"
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
