package creditledger

const (
	operationAddCredits       = "add_credits"
	operationRemoveCredits    = "remove_credits"
	operationRecordPurchase   = "record_purchase"
	operationRecordRenewal    = "record_renewal"
	operationGrantBonus       = "grant_bonus"
	operationExpireCredits    = "expire_credits"
	operationAllocate         = "allocate"
	operationDeallocate       = "deallocate"
	operationTransfer         = "transfer"
	operationForceComplete    = "force_complete"
	operationRemoveReader     = "remove_reader"
	operationManualGrant      = "manual_grant"
	operationPause            = "pause"
	operationResume           = "resume"
	operationResumeCatchUp    = "resume_catch_up"
	operationAdjustRate       = "adjust_distribution"
	operationActivateCampaign = "activate_campaign"
	operationCancelCampaign   = "cancel_campaign"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	idempotencyKeyDelimiter = ":"
	idempotencySuffixOut    = "out"
	idempotencySuffixIn     = "in"

	secondsPerDay  int64 = 24 * 60 * 60
	secondsPerWeek int64 = 7 * secondsPerDay

	rejectionIssueThresholdPercent int64 = 10
	maxOverbookingPercent          int64 = 100
)
