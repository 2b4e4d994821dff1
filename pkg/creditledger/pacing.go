package creditledger

import "context"

// ComputeHealth classifies a campaign's delivery pacing at a point in time.
// Pure: identical inputs and clock always produce an identical report.
func ComputeHealth(campaign Campaign, nowUnixUTC int64) (HealthReport, error) {
	pacing := campaign.Pacing
	if pacing.ReviewsPerWeek <= 0 {
		return HealthReport{}, ErrInvalidDistributionRate
	}
	if pacing.TargetReviews <= 0 {
		return HealthReport{}, ErrInvalidTargetReviews
	}

	var weeksElapsed int64
	if pacing.StartUnixUTC != 0 {
		weeksElapsed = floorDiv(nowUnixUTC-pacing.StartUnixUTC, secondsPerWeek)
		if weeksElapsed < 0 {
			weeksElapsed = 0
		}
	}

	totalPlannedWeeks := ceilDiv(pacing.TargetReviews, pacing.ReviewsPerWeek)
	reviewsExpected := weeksElapsed * pacing.ReviewsPerWeek
	if reviewsExpected > pacing.TargetReviews {
		reviewsExpected = pacing.TargetReviews
	}
	variance := pacing.ReviewsDelivered - reviewsExpected

	status := HealthOnTrack
	switch {
	case variance > pacing.ReviewsPerWeek:
		status = HealthAheadOfSchedule
	case variance < -pacing.ReviewsPerWeek:
		status = HealthDelayed
	case pacing.ReviewsRejected*100 > pacing.TargetReviews*rejectionIssueThresholdPercent:
		status = HealthIssues
	}

	reviewsLeft := pacing.TargetReviews - pacing.ReviewsDelivered
	if reviewsLeft < 0 {
		reviewsLeft = 0
	}
	weeksRemaining := ceilDiv(reviewsLeft, pacing.ReviewsPerWeek)
	projected := nowUnixUTC + weeksRemaining*secondsPerWeek

	var daysOffSchedule int64
	if pacing.ExpectedEndUnixUTC != 0 {
		daysOffSchedule = floorDiv(projected-pacing.ExpectedEndUnixUTC, secondsPerDay)
	}

	return HealthReport{
		Status:                     status,
		WeeksElapsed:               weeksElapsed,
		TotalPlannedWeeks:          totalPlannedWeeks,
		ReviewsExpected:            reviewsExpected,
		Variance:                   variance,
		WeeksRemaining:             weeksRemaining,
		ProjectedCompletionUnixUTC: projected,
		DaysOffSchedule:            daysOffSchedule,
	}, nil
}

// CampaignHealth loads a campaign and computes its pacing report.
func (service *Service) CampaignHealth(ctx context.Context, campaignID CampaignID) (HealthReport, error) {
	campaign, err := service.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return HealthReport{}, err
	}
	return ComputeHealth(campaign, service.nowFn())
}

// ActivateCampaign starts distribution for a funded draft or pending
// campaign, stamping the start date and the expected end derived from the
// planned weekly rate.
func (service *Service) ActivateCampaign(ctx context.Context, campaignID CampaignID, actor ActorID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		campaign, err := transactionStore.GetCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		if campaign.Status != StatusDraft && campaign.Status != StatusPending {
			return ErrInvalidCampaignState
		}
		if campaign.Pool.CreditsAllocated <= 0 {
			return ErrInvalidCampaignState
		}
		nowUnixUTC := service.nowFn()
		plannedWeeks := ceilDiv(campaign.Pacing.TargetReviews, campaign.Pacing.ReviewsPerWeek)
		campaign.Pacing.StartUnixUTC = nowUnixUTC
		campaign.Pacing.ExpectedEndUnixUTC = nowUnixUTC + plannedWeeks*secondsPerWeek
		campaign.Status = StatusActive
		return transactionStore.UpdateCampaign(ctx, campaign)
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationActivateCampaign,
		CampaignID: &campaignID,
		Actor:      &actor,
		Error:      operationError,
	})
	if operationError == nil {
		service.recordAudit(ctx, AuditRecord{Actor: &actor, Action: operationActivateCampaign, EntityID: campaignID.String()})
	}
	return operationError
}

// PauseDistribution halts an active campaign.
func (service *Service) PauseDistribution(ctx context.Context, campaignID CampaignID, actor ActorID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		campaign, err := transactionStore.GetCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		if campaign.Status != StatusActive {
			return ErrInvalidCampaignState
		}
		campaign.Status = StatusPaused
		campaign.Pacing.PausedAtUnixUTC = service.nowFn()
		return transactionStore.UpdateCampaign(ctx, campaign)
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationPause,
		CampaignID: &campaignID,
		Actor:      &actor,
		Error:      operationError,
	})
	if operationError == nil {
		service.recordAudit(ctx, AuditRecord{Actor: &actor, Action: operationPause, EntityID: campaignID.String()})
	}
	return operationError
}

// ResumeDistribution restarts a paused campaign without shifting its
// expected end date.
func (service *Service) ResumeDistribution(ctx context.Context, campaignID CampaignID, actor ActorID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		campaign, err := transactionStore.GetCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		if campaign.Status != StatusPaused {
			return ErrInvalidCampaignState
		}
		campaign.Status = StatusActive
		campaign.Pacing.ResumedAtUnixUTC = service.nowFn()
		return transactionStore.UpdateCampaign(ctx, campaign)
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationResume,
		CampaignID: &campaignID,
		Actor:      &actor,
		Error:      operationError,
	})
	if operationError == nil {
		service.recordAudit(ctx, AuditRecord{Actor: &actor, Action: operationResume, EntityID: campaignID.String()})
	}
	return operationError
}

// ResumeWithCatchUp restarts a paused campaign and pushes the expected end
// date out by the pause duration. The missed-review count is informational
// and never applied to the delivery counters.
func (service *Service) ResumeWithCatchUp(ctx context.Context, campaignID CampaignID, actor ActorID) (CatchUpResult, error) {
	var result CatchUpResult
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		campaign, err := transactionStore.GetCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		if campaign.Status != StatusPaused {
			return ErrInvalidCampaignState
		}
		nowUnixUTC := service.nowFn()
		var pauseDays int64
		if campaign.Pacing.PausedAtUnixUTC != 0 {
			pauseDays = floorDiv(nowUnixUTC-campaign.Pacing.PausedAtUnixUTC, secondsPerDay)
			if pauseDays < 0 {
				pauseDays = 0
			}
		}
		if campaign.Pacing.ExpectedEndUnixUTC != 0 {
			campaign.Pacing.ExpectedEndUnixUTC += pauseDays * secondsPerDay
		}
		campaign.Status = StatusActive
		campaign.Pacing.ResumedAtUnixUTC = nowUnixUTC
		result = CatchUpResult{
			PauseDurationDays:     pauseDays,
			MissedReviews:         pauseDays * campaign.Pacing.ReviewsPerWeek / 7,
			NewExpectedEndUnixUTC: campaign.Pacing.ExpectedEndUnixUTC,
		}
		return transactionStore.UpdateCampaign(ctx, campaign)
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationResumeCatchUp,
		CampaignID: &campaignID,
		Actor:      &actor,
		Error:      operationError,
	})
	if operationError == nil {
		service.recordAudit(ctx, AuditRecord{Actor: &actor, Action: operationResumeCatchUp, EntityID: campaignID.String()})
	}
	return result, operationError
}

// AdjustDistribution overrides the weekly delivery rate. Health computations
// use the new rate from this point forward; past weeks are not recomputed.
func (service *Service) AdjustDistribution(ctx context.Context, campaignID CampaignID, newReviewsPerWeek int64, actor ActorID) error {
	if newReviewsPerWeek <= 0 {
		return ErrInvalidDistributionRate
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		campaign, err := transactionStore.GetCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		if campaign.Status.Terminal() {
			return ErrInvalidCampaignState
		}
		campaign.Pacing.ReviewsPerWeek = newReviewsPerWeek
		campaign.Pacing.ManualOverride = true
		return transactionStore.UpdateCampaign(ctx, campaign)
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationAdjustRate,
		CampaignID: &campaignID,
		Actor:      &actor,
		Amount:     newReviewsPerWeek,
		Error:      operationError,
	})
	if operationError == nil {
		service.recordAudit(ctx, AuditRecord{Actor: &actor, Action: operationAdjustRate, EntityID: campaignID.String()})
	}
	return operationError
}

// CancelCampaign moves any non-terminal campaign to cancelled. Credits left
// in the pool stay there; force-complete is the refunding path.
func (service *Service) CancelCampaign(ctx context.Context, campaignID CampaignID, actor ActorID, reason string) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		campaign, err := transactionStore.GetCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		if campaign.Status.Terminal() {
			return ErrInvalidCampaignState
		}
		campaign.Status = StatusCancelled
		return transactionStore.UpdateCampaign(ctx, campaign)
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationCancelCampaign,
		CampaignID: &campaignID,
		Actor:      &actor,
		Error:      operationError,
	})
	if operationError == nil {
		service.recordAudit(ctx, AuditRecord{Actor: &actor, Action: operationCancelCampaign, EntityID: campaignID.String(), Reason: reason})
	}
	return operationError
}

func ceilDiv(numerator int64, denominator int64) int64 {
	if numerator <= 0 {
		return 0
	}
	return (numerator + denominator - 1) / denominator
}

func floorDiv(numerator int64, denominator int64) int64 {
	quotient := numerator / denominator
	if numerator%denominator != 0 && (numerator < 0) != (denominator < 0) {
		quotient--
	}
	return quotient
}
