package audit

// Actions recorded by crmkeeper.
const (
	ActionPasswordSet          = "PASSWORD_SET"
	ActionPasswordChanged      = "PASSWORD_CHANGED"
	ActionPasswordChangeFailed = "PASSWORD_CHANGE_FAILED"
	ActionLoginSuccess         = "LOGIN_SUCCESS"
	ActionLoginFailed          = "LOGIN_FAILED"
	ActionAccountLocked        = "ACCOUNT_LOCKED"
	ActionAuthError            = "AUTH_ERROR"
	ActionSessionStarted       = "SESSION_STARTED"
	ActionSessionEnded         = "SESSION_ENDED"

	ActionContactCreated   = "CONTACT_CREATED"
	ActionContactUpdated   = "CONTACT_UPDATED"
	ActionContactDeleted   = "CONTACT_DELETED"
	ActionInteractionAdded = "INTERACTION_ADDED"
	ActionDealCreated      = "DEAL_CREATED"
	ActionDealUpdated      = "DEAL_UPDATED"
	ActionLeadCreated      = "LEAD_CREATED"
	ActionLeadAccepted     = "LEAD_ACCEPTED"
	ActionLeadRejected     = "LEAD_REJECTED"
	ActionAPIKeyUpdated    = "API_KEY_UPDATED"
	ActionDataExported     = "DATA_EXPORTED"
	ActionDataImported     = "DATA_IMPORTED"
	ActionDataMigrated     = "DATA_MIGRATED"
	ActionDataDiscarded    = "DATA_DISCARDED"
)
