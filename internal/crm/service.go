// Package crm holds the in-memory CRM state on top of the encrypted vault.
//
// Every mutation is applied to a copy, saved through the vault and only
// then made visible, so a failed save (for instance common.ErrNoValidSession,
// which the front end answers with a forced logout) leaves the state as it
// was. Successful mutations are appended to the audit log.
//
// A collection that could not be loaded refuses writes with ErrUnreadable,
// so the stored blob is never replaced by an empty in-memory copy. Discard
// or Import lifts the block.
package crm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/crmkeeper/internal/audit"
	"github.com/dmitrijs2005/crmkeeper/internal/backup"
	"github.com/dmitrijs2005/crmkeeper/internal/common"
	"github.com/dmitrijs2005/crmkeeper/internal/logging"
	"github.com/dmitrijs2005/crmkeeper/internal/models"
	"github.com/dmitrijs2005/crmkeeper/internal/records"
	"github.com/dmitrijs2005/crmkeeper/internal/storage"
	"github.com/dmitrijs2005/crmkeeper/internal/validate"
)

const (
	dateLayout       = "2006-01-02"
	dealCloseHorizon = 30 * 24 * time.Hour
	newDealChance    = 20
	welcomeNote      = "新客戶建檔完成。"
	manualTag        = "手動錄入"
)

type Service struct {
	vault *records.Vault
	audit audit.Recorder
	log   logging.Logger
	now   func() time.Time
	newID func() string

	mu       sync.RWMutex
	contacts []models.Contact
	deals    []models.Deal
	leads    []models.Lead
	apiKeys  map[string]string

	// unreadable holds the load error per entity name.
	unreadable map[string]error
}

// ErrUnreadable is returned by writes to a collection whose stored data
// failed to load.
var ErrUnreadable = errors.New("collection was not loaded")

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(vault *records.Vault, rec audit.Recorder, log logging.Logger, opts ...Option) *Service {
	s := &Service{
		vault:   vault,
		audit:   rec,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
		apiKeys: map[string]string{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) today() string {
	return s.now().Format(dateLayout)
}

// Load replaces the in-memory state with the vault contents. Each collection
// loads on its own: one that fails is left empty and marked unreadable while
// the others are committed. The failures are returned joined.
func (s *Service) Load(ctx context.Context) error {
	unreadable := map[string]error{}
	contacts := load(ctx, s.vault.Contacts, unreadable)
	deals := load(ctx, s.vault.Deals, unreadable)
	leads := load(ctx, s.vault.Leads, unreadable)
	apiKeys := load(ctx, s.vault.APIKeys, unreadable)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts, s.deals, s.leads, s.apiKeys = contacts, deals, leads, apiKeys
	s.unreadable = unreadable
	s.log.Debug(ctx, "crm state loaded", "contacts", len(s.contacts), "deals", len(s.deals),
		"leads", len(s.leads), "unreadable", len(unreadable))

	errs := make([]error, 0, len(unreadable))
	for _, name := range slices.Sorted(maps.Keys(unreadable)) {
		errs = append(errs, fmt.Errorf("%s: %w", name, unreadable[name]))
	}
	return errors.Join(errs...)
}

func load[T any](ctx context.Context, c *records.Collection[T], unreadable map[string]error) T {
	v, err := c.Load(ctx)
	if err != nil {
		unreadable[c.Entity().Name] = err
	}
	return v
}

// save writes v unless the collection failed to load. The caller holds s.mu.
func save[T any](ctx context.Context, s *Service, c *records.Collection[T], v T) error {
	if err, ok := s.unreadable[c.Entity().Name]; ok {
		return fmt.Errorf("%s: %w (%v)", c.Entity().Name, ErrUnreadable, err)
	}
	return c.Save(ctx, v)
}

// Unreadable returns the load error of every collection that failed to load,
// keyed by entity name.
func (s *Service) Unreadable() map[string]error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.unreadable)
}

// Discard replaces an unreadable collection with an empty one, giving up its
// stored data.
func (s *Service) Discard(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.unreadable[name]; !ok {
		return fmt.Errorf("%w: %s is readable", common.ErrValidation, name)
	}

	var err error
	switch name {
	case storage.Contacts.Name:
		if err = s.vault.Contacts.Save(ctx, []models.Contact{}); err == nil {
			s.contacts = []models.Contact{}
		}
	case storage.Deals.Name:
		if err = s.vault.Deals.Save(ctx, []models.Deal{}); err == nil {
			s.deals = []models.Deal{}
		}
	case storage.Leads.Name:
		if err = s.vault.Leads.Save(ctx, []models.Lead{}); err == nil {
			s.leads = []models.Lead{}
		}
	case storage.APIKeys.Name:
		if err = s.vault.APIKeys.Save(ctx, map[string]string{}); err == nil {
			s.apiKeys = map[string]string{}
		}
	}
	if err != nil {
		return err
	}

	delete(s.unreadable, name)
	s.log.Warn(ctx, "unreadable collection discarded", "entity", name)
	s.audit.Record(ctx, audit.ActionDataDiscarded, name)
	return nil
}

// Reset drops the in-memory state, e.g. on logout.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts, s.deals, s.leads, s.apiKeys = nil, nil, nil, map[string]string{}
	s.unreadable = nil
}

func (s *Service) Contacts() []models.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.contacts)
}

func (s *Service) Deals() []models.Deal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.deals)
}

func (s *Service) Leads() []models.Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.leads)
}

// Contact returns the contact with id or common.ErrorNotFound.
func (s *Service) Contact(id string) (models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := indexOf(s.contacts, id, func(c models.Contact) string { return c.ID })
	if i < 0 {
		return models.Contact{}, fmt.Errorf("contact %s: %w", id, common.ErrorNotFound)
	}
	return s.contacts[i], nil
}

// FindByPhone returns a contact with the same normalized phone number.
func (s *Service) FindByPhone(phone string) (models.Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := validate.NormalizePhone(phone)
	for _, c := range s.contacts {
		if c.Phone != "" && validate.NormalizePhone(c.Phone) == want {
			return c, true
		}
	}
	return models.Contact{}, false
}

// Duplicates groups contacts that share a phone number.
func (s *Service) Duplicates() [][]models.Contact {
	return backup.FindDuplicateContacts(s.Contacts())
}

func indexOf[T any](items []T, id string, key func(T) string) int {
	return slices.IndexFunc(items, func(v T) bool { return key(v) == id })
}

func checkContact(c *models.Contact) error {
	if err := validate.Name(c.Name); err != nil {
		return err
	}
	if err := validate.Phone(c.Phone); err != nil {
		return err
	}
	if err := validate.Email(c.Email); err != nil {
		return err
	}
	if err := validate.Email(c.Gmail); err != nil {
		return fmt.Errorf("gmail: %w", err)
	}
	return nil
}

func sanitizeContact(c *models.Contact) {
	c.Name = validate.Sanitize(strings.TrimSpace(c.Name))
	c.Phone = strings.TrimSpace(c.Phone)
	c.Email = validate.Sanitize(c.Email)
	c.Gmail = validate.Sanitize(c.Gmail)
	c.LineID = validate.Sanitize(strings.TrimSpace(c.LineID))
	c.LineName = validate.Sanitize(strings.TrimSpace(c.LineName))
	c.OfficialAccount = validate.Sanitize(strings.TrimSpace(c.OfficialAccount))
	c.TransportConvenience = validate.Sanitize(strings.TrimSpace(c.TransportConvenience))
	c.NearbyFacilities = validate.Sanitize(strings.TrimSpace(c.NearbyFacilities))
	c.Requirement = validate.Sanitize(c.Requirement)
	for i, t := range c.Tags {
		c.Tags[i] = validate.Sanitize(t)
	}
}

// AddContact validates and sanitizes c, fills in id, status, dates and the
// opening note, and stores it first in the list.
func (s *Service) AddContact(ctx context.Context, c models.Contact) (models.Contact, error) {
	if err := checkContact(&c); err != nil {
		return models.Contact{}, err
	}

	c.Tags = slices.DeleteFunc(append([]string{manualTag, c.Urgency}, c.Tags...), func(t string) bool { return t == "" })
	sanitizeContact(&c)

	c.ID = s.newID()
	if c.PreferredArea == "" {
		c.PreferredArea = c.City + c.District
	}
	if c.Status == "" {
		c.Status = models.StatusProspectBuyer
		if c.Role == models.RoleSeller {
			c.Status = models.StatusSellerSourcing
		}
	}
	c.LastContacted = s.today()
	c.Interactions = []models.Interaction{{
		ID:      "int-" + s.newID(),
		Type:    models.InteractionNote,
		Content: welcomeNote,
		Date:    s.today(),
	}}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := append([]models.Contact{c}, s.contacts...)
	if err := save(ctx, s, s.vault.Contacts, next); err != nil {
		return models.Contact{}, err
	}
	s.contacts = next
	s.audit.Record(ctx, audit.ActionContactCreated, "contact: "+c.Name)
	return c, nil
}

// UpdateContact replaces the stored contact with the same id.
func (s *Service) UpdateContact(ctx context.Context, c models.Contact) error {
	if err := checkContact(&c); err != nil {
		return err
	}
	sanitizeContact(&c)

	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.contacts, c.ID, func(c models.Contact) string { return c.ID })
	if i < 0 {
		return fmt.Errorf("contact %s: %w", c.ID, common.ErrorNotFound)
	}

	next := slices.Clone(s.contacts)
	next[i] = c
	if err := save(ctx, s, s.vault.Contacts, next); err != nil {
		return err
	}
	s.contacts = next
	s.audit.Record(ctx, audit.ActionContactUpdated, "contact: "+c.Name)
	return nil
}

func (s *Service) DeleteContact(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.contacts, id, func(c models.Contact) string { return c.ID })
	if i < 0 {
		return fmt.Errorf("contact %s: %w", id, common.ErrorNotFound)
	}
	name := s.contacts[i].Name

	next := slices.Delete(slices.Clone(s.contacts), i, i+1)
	if err := save(ctx, s, s.vault.Contacts, next); err != nil {
		return err
	}
	s.contacts = next
	s.audit.Record(ctx, audit.ActionContactDeleted, "contact: "+name)
	return nil
}

// AddInteraction logs a touchpoint, newest first, and marks the contact as
// contacted today.
func (s *Service) AddInteraction(ctx context.Context, contactID, kind, content string) (models.Interaction, error) {
	content = validate.Sanitize(strings.TrimSpace(content))
	if content == "" {
		return models.Interaction{}, fmt.Errorf("%w: interaction content is required", common.ErrValidation)
	}
	if kind == "" {
		kind = models.InteractionNote
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.contacts, contactID, func(c models.Contact) string { return c.ID })
	if i < 0 {
		return models.Interaction{}, fmt.Errorf("contact %s: %w", contactID, common.ErrorNotFound)
	}

	in := models.Interaction{
		ID:      "int-" + s.newID(),
		Type:    validate.Sanitize(kind),
		Content: content,
		Date:    s.today(),
	}

	next := slices.Clone(s.contacts)
	c := next[i]
	c.Interactions = append([]models.Interaction{in}, c.Interactions...)
	c.LastContacted = in.Date
	next[i] = c

	if err := save(ctx, s, s.vault.Contacts, next); err != nil {
		return models.Interaction{}, err
	}
	s.contacts = next
	s.audit.Record(ctx, audit.ActionInteractionAdded, "interaction: "+in.Type)
	return in, nil
}

// AddDeal opens a deal for a contact. Title, value, stage, probability and
// expected close date default from the contact when left empty.
func (s *Service) AddDeal(ctx context.Context, d models.Deal) (models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.contacts, d.ContactID, func(c models.Contact) string { return c.ID })
	if i < 0 {
		return models.Deal{}, fmt.Errorf("contact %s: %w", d.ContactID, common.ErrorNotFound)
	}
	c := s.contacts[i]

	d.ID = "deal-" + s.newID()
	d.Title = validate.Sanitize(strings.TrimSpace(d.Title))
	if d.Title == "" {
		d.Title = c.Name + " - " + c.PreferredArea
	}
	if d.Value == 0 {
		d.Value = float64(c.Budget)
	}
	if d.Stage == "" {
		d.Stage = models.StageFirstTalk
	}
	if !models.IsValidStage(d.Stage) {
		return models.Deal{}, fmt.Errorf("%w: unknown stage %q", common.ErrValidation, d.Stage)
	}
	if d.Probability == 0 {
		d.Probability = newDealChance
	}
	if d.ExpectedClose == "" {
		d.ExpectedClose = s.now().Add(dealCloseHorizon).Format(dateLayout)
	}

	next := append(slices.Clone(s.deals), d)
	if err := save(ctx, s, s.vault.Deals, next); err != nil {
		return models.Deal{}, err
	}
	s.deals = next
	s.audit.Record(ctx, audit.ActionDealCreated, "deal: "+d.Title)
	return d, nil
}

// MoveDeal changes a deal's pipeline stage.
func (s *Service) MoveDeal(ctx context.Context, id, stage string) error {
	if !models.IsValidStage(stage) {
		return fmt.Errorf("%w: unknown stage %q", common.ErrValidation, stage)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.deals, id, func(d models.Deal) string { return d.ID })
	if i < 0 {
		return fmt.Errorf("deal %s: %w", id, common.ErrorNotFound)
	}

	next := slices.Clone(s.deals)
	next[i].Stage = stage
	if err := save(ctx, s, s.vault.Deals, next); err != nil {
		return err
	}
	s.deals = next
	s.audit.Record(ctx, audit.ActionDealUpdated, fmt.Sprintf("deal: %s -> %s", next[i].Title, stage))
	return nil
}

// AddLeads puts new enquiries at the front of the inbox.
func (s *Service) AddLeads(ctx context.Context, leads ...models.Lead) ([]models.Lead, error) {
	added := make([]models.Lead, 0, len(leads))
	for _, l := range leads {
		l.ID = "lead-" + s.newID()
		l.Name = validate.Sanitize(strings.TrimSpace(l.Name))
		l.Phone = strings.TrimSpace(l.Phone)
		l.RawContent = validate.Sanitize(l.RawContent)
		if l.Status == "" {
			l.Status = models.LeadPending
		}
		if l.ReceivedAt == "" {
			l.ReceivedAt = s.now().UTC().Format(time.RFC3339)
		}
		added = append(added, l)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(slices.Clone(added), s.leads...)
	if err := save(ctx, s, s.vault.Leads, next); err != nil {
		return nil, err
	}
	s.leads = next
	for _, l := range added {
		s.audit.Record(ctx, audit.ActionLeadCreated, "lead: "+l.Name)
	}
	return added, nil
}

// AcceptLead turns a lead into a prospect contact and removes it from the
// inbox.
func (s *Service) AcceptLead(ctx context.Context, id string) (models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.leads, id, func(l models.Lead) string { return l.ID })
	if i < 0 {
		return models.Contact{}, fmt.Errorf("lead %s: %w", id, common.ErrorNotFound)
	}
	l := s.leads[i]

	c := models.Contact{
		ID:            s.newID(),
		Source:        l.Source,
		Name:          l.Name,
		Phone:         l.Phone,
		Role:          l.Role,
		Budget:        l.Budget,
		PreferredArea: l.PreferredArea,
		City:          l.City,
		District:      l.District,
		Purpose:       l.Purpose,
		Urgency:       l.Urgency,
		PropertyType:  l.PropertyType,
		Layout:        l.Layout,
		Requirement:   l.RawContent,
		Status:        models.StatusProspectBuyer,
		LastContacted: s.today(),
		Tags:          []string{},
		Interactions:  []models.Interaction{},
	}

	contacts := append([]models.Contact{c}, s.contacts...)
	leads := slices.Delete(slices.Clone(s.leads), i, i+1)

	if err := save(ctx, s, s.vault.Contacts, contacts); err != nil {
		return models.Contact{}, err
	}
	s.contacts = contacts
	if err := save(ctx, s, s.vault.Leads, leads); err != nil {
		return c, err
	}
	s.leads = leads
	s.audit.Record(ctx, audit.ActionLeadAccepted, "lead: "+l.Name)
	return c, nil
}

func (s *Service) RejectLead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.leads, id, func(l models.Lead) string { return l.ID })
	if i < 0 {
		return fmt.Errorf("lead %s: %w", id, common.ErrorNotFound)
	}
	name := s.leads[i].Name

	next := slices.Delete(slices.Clone(s.leads), i, i+1)
	if err := save(ctx, s, s.vault.Leads, next); err != nil {
		return err
	}
	s.leads = next
	s.audit.Record(ctx, audit.ActionLeadRejected, "lead: "+name)
	return nil
}

// APIKeys returns a copy of the provider -> key map.
func (s *Service) APIKeys() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.apiKeys)
}

// SetAPIKey stores the key for provider; an empty key removes it. The key
// itself is never written to the audit log.
func (s *Service) SetAPIKey(ctx context.Context, provider, key string) error {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return fmt.Errorf("%w: provider is required", common.ErrValidation)
	}
	key = validate.Sanitize(strings.TrimSpace(key))

	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.apiKeys)
	if next == nil {
		next = map[string]string{}
	}
	if key == "" {
		delete(next, provider)
	} else {
		next[provider] = key
	}

	if err := save(ctx, s, s.vault.APIKeys, next); err != nil {
		return err
	}
	s.apiKeys = next
	s.audit.Record(ctx, audit.ActionAPIKeyUpdated, "provider: "+provider)
	return nil
}

// Export writes a backup of contacts, deals and leads.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	s.mu.RLock()
	err := backup.Export(w, s.contacts, s.deals, s.leads, s.now())
	counts := fmt.Sprintf("contacts: %d, deals: %d, leads: %d", len(s.contacts), len(s.deals), len(s.leads))
	s.mu.RUnlock()

	if err != nil {
		return err
	}
	s.audit.Record(ctx, audit.ActionDataExported, counts)
	return nil
}

// Import replaces contacts, deals and leads wholesale with the backup in r,
// including collections that failed to load. The in-memory state changes
// only after every collection has been saved.
func (s *Service) Import(ctx context.Context, r io.Reader) error {
	doc, err := backup.Import(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.vault.Contacts.Save(ctx, doc.Contacts); err != nil {
		return err
	}
	if err := s.vault.Deals.Save(ctx, doc.Deals); err != nil {
		return err
	}
	if err := s.vault.Leads.Save(ctx, doc.Leads); err != nil {
		return err
	}
	s.contacts, s.deals, s.leads = doc.Contacts, doc.Deals, doc.Leads
	for _, e := range []storage.Entity{storage.Contacts, storage.Deals, storage.Leads} {
		delete(s.unreadable, e.Name)
	}
	s.log.Info(ctx, "backup imported", "version", doc.Version, "exported", doc.ExportDate)
	s.audit.Record(ctx, audit.ActionDataImported,
		fmt.Sprintf("contacts: %d, deals: %d, leads: %d", len(doc.Contacts), len(doc.Deals), len(doc.Leads)))
	return nil
}
