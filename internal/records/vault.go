package records

import (
	"context"

	"github.com/dmitrijs2005/crmkeeper/internal/logging"
	"github.com/dmitrijs2005/crmkeeper/internal/models"
	"github.com/dmitrijs2005/crmkeeper/internal/storage"
)

// Snapshot holds every collection in memory.
type Snapshot struct {
	Contacts []models.Contact
	Deals    []models.Deal
	Leads    []models.Lead
	APIKeys  map[string]string
}

// Vault bundles the four encrypted collections behind one KeySource.
type Vault struct {
	Contacts *Collection[[]models.Contact]
	Deals    *Collection[[]models.Deal]
	Leads    *Collection[[]models.Lead]
	APIKeys  *Collection[map[string]string]

	keys *KeySource
}

func NewVault(store storage.Store, keys *KeySource, log logging.Logger, opts ...Option) *Vault {
	return &Vault{
		Contacts: NewCollection(storage.Contacts, store, keys, log, func() []models.Contact { return []models.Contact{} }, opts...),
		Deals:    NewCollection(storage.Deals, store, keys, log, func() []models.Deal { return []models.Deal{} }, opts...),
		Leads:    NewCollection(storage.Leads, store, keys, log, func() []models.Lead { return []models.Lead{} }, opts...),
		APIKeys:  NewCollection(storage.APIKeys, store, keys, log, func() map[string]string { return map[string]string{} }, opts...),
		keys:     keys,
	}
}

func (v *Vault) Keys() *KeySource {
	return v.keys
}

// LoadAll loads every collection, stopping at the first error.
func (v *Vault) LoadAll(ctx context.Context) (*Snapshot, error) {
	var (
		s   Snapshot
		err error
	)
	if s.Contacts, err = v.Contacts.Load(ctx); err != nil {
		return nil, err
	}
	if s.Deals, err = v.Deals.Load(ctx); err != nil {
		return nil, err
	}
	if s.Leads, err = v.Leads.Load(ctx); err != nil {
		return nil, err
	}
	if s.APIKeys, err = v.APIKeys.Load(ctx); err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveAll writes every collection, stopping at the first error.
func (v *Vault) SaveAll(ctx context.Context, s *Snapshot) error {
	if err := v.Contacts.Save(ctx, s.Contacts); err != nil {
		return err
	}
	if err := v.Deals.Save(ctx, s.Deals); err != nil {
		return err
	}
	if err := v.Leads.Save(ctx, s.Leads); err != nil {
		return err
	}
	return v.APIKeys.Save(ctx, s.APIKeys)
}

// Rekey decrypts everything with the current key material, runs commit
// (which changes the key material, e.g. replaces the password record) and
// re-encrypts everything with the new key. Nothing is committed if any
// collection fails to load.
func (v *Vault) Rekey(ctx context.Context, commit func(ctx context.Context) error) error {
	s, err := v.LoadAll(ctx)
	if err != nil {
		return err
	}
	if err := commit(ctx); err != nil {
		return err
	}
	return v.SaveAll(ctx, s)
}
