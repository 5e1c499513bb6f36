// Package storagetest holds the behaviour every storage.Store must share.
package storagetest

import (
	"context"

	"github.com/stretchr/testify/suite"

	"github.com/dmitrijs2005/crmkeeper/internal/storage"
)

// StoreSuite runs against a fresh store from New before every test. Run it
// with suite.Run from the driver's own tests.
type StoreSuite struct {
	suite.Suite

	New   func() storage.Store
	store storage.Store
	ctx   context.Context
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.New()
}

func (s *StoreSuite) TestSetAndGet() {
	s.Require().NoError(s.store.Set(s.ctx, storage.KeyPasswordHash, []byte("abc")))

	v, ok, err := s.store.Get(s.ctx, storage.KeyPasswordHash)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal([]byte("abc"), v)
}

func (s *StoreSuite) TestGetAbsent() {
	v, ok, err := s.store.Get(s.ctx, "absent")
	s.Require().NoError(err)
	s.False(ok)
	s.Nil(v)
}

func (s *StoreSuite) TestSetUpserts() {
	s.Require().NoError(s.store.Set(s.ctx, "k", []byte("old")))
	s.Require().NoError(s.store.Set(s.ctx, "k", []byte("new")))

	v, _, err := s.store.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.Equal([]byte("new"), v)
}

func (s *StoreSuite) TestEmptyValueIsPresent() {
	s.Require().NoError(s.store.Set(s.ctx, "k", nil))

	_, ok, err := s.store.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.True(ok)
}

func (s *StoreSuite) TestRemoveIsIdempotent() {
	s.Require().NoError(s.store.Set(s.ctx, "x", []byte{1}))
	s.Require().NoError(s.store.Remove(s.ctx, "x"))
	s.Require().NoError(s.store.Remove(s.ctx, "x"))

	_, ok, err := s.store.Get(s.ctx, "x")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *StoreSuite) TestGetReturnsCopy() {
	s.Require().NoError(s.store.Set(s.ctx, "k", []byte("abc")))

	v, _, err := s.store.Get(s.ctx, "k")
	s.Require().NoError(err)
	v[0] = 'X'

	again, _, err := s.store.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.Equal([]byte("abc"), again)
}

func (s *StoreSuite) TestCompareAndSwap() {
	sw, ok := s.store.(storage.Swapper)
	if !ok {
		s.T().Skip("store does not implement storage.Swapper")
	}
	key := storage.Contacts.Revision()

	swapped, err := sw.CompareAndSwap(s.ctx, key, nil, []byte("1"))
	s.Require().NoError(err)
	s.True(swapped)

	swapped, err = sw.CompareAndSwap(s.ctx, key, nil, []byte("9"))
	s.Require().NoError(err)
	s.False(swapped, "absent precondition must fail once the key exists")

	swapped, err = sw.CompareAndSwap(s.ctx, key, []byte("2"), []byte("3"))
	s.Require().NoError(err)
	s.False(swapped)

	swapped, err = sw.CompareAndSwap(s.ctx, key, []byte("1"), []byte("2"))
	s.Require().NoError(err)
	s.True(swapped)

	v, _, err := s.store.Get(s.ctx, key)
	s.Require().NoError(err)
	s.Equal([]byte("2"), v)

	swapped, err = sw.CompareAndSwap(s.ctx, key, []byte("2"), nil)
	s.Require().NoError(err)
	s.True(swapped)

	_, ok, err = s.store.Get(s.ctx, key)
	s.Require().NoError(err)
	s.False(ok, "nil next removes the key")

	swapped, err = sw.CompareAndSwap(s.ctx, key, nil, []byte("1"))
	s.Require().NoError(err)
	s.True(swapped)
}
