package storage

// Key identifies one value in a Store.
type Key string

const (
	// KeyPasswordHash holds the PasswordRecord as a raw string.
	KeyPasswordHash Key = "crm_password_hash"
	// KeyLockUntil holds the lockout deadline, unix milliseconds as decimal.
	KeyLockUntil Key = "crm_lock_until"
	// KeyFailedAttempts holds the failed login counter when it is persisted.
	KeyFailedAttempts Key = "crm_failed_attempts"
	// KeySecurityLogs holds the audit log, a JSON array newest first.
	KeySecurityLogs Key = "crm_security_logs"
	// KeySession is the ephemeral session record.
	KeySession Key = "crm_session"
)

// Entity describes where one encrypted collection and its plaintext
// predecessor live.
type Entity struct {
	Name      string
	Encrypted Key
	Legacy    Key
}

// Revision is the key of the entity's monotonic save counter.
func (e Entity) Revision() Key {
	return e.Encrypted + "_rev"
}

var (
	Contacts = Entity{Name: "contacts", Encrypted: "gf_crm_contacts_enc_v1", Legacy: "gf_crm_contacts_v8"}
	Deals    = Entity{Name: "deals", Encrypted: "gf_crm_deals_enc_v1", Legacy: "gf_crm_deals_v8"}
	Leads    = Entity{Name: "leads", Encrypted: "gf_crm_leads_enc_v1", Legacy: "gf_crm_leads_v8"}
	APIKeys  = Entity{Name: "apiKeys", Encrypted: "gf_crm_api_keys_enc_v1", Legacy: "ai_api_keys"}
)

// Entities lists every encrypted collection.
func Entities() []Entity {
	return []Entity{Contacts, Deals, Leads, APIKeys}
}
