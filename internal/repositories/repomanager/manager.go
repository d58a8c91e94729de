// Package repomanager provides a RepositoryManager for the key-value store,
// building repositories around whichever handle the caller holds: the shared
// store for plain reads and batches, or an optimistic transaction.
package repomanager

import (
	"github.com/dmitrijs2005/drawbridge/internal/kv"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/accounts"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/indexes"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/keys"
)

type RepositoryManager interface {
	Accounts(h kv.Handle) accounts.Repository
	Indexes(h kv.Handle) indexes.Repository
	Keys() keys.Space
}

type KVRepositoryManager struct {
	keys keys.Space
}

func NewKVRepositoryManager(prefix string) *KVRepositoryManager {
	return &KVRepositoryManager{keys: keys.NewSpace(prefix)}
}

func (m *KVRepositoryManager) Accounts(h kv.Handle) accounts.Repository {
	return accounts.NewKVRepository(h, m.keys)
}

func (m *KVRepositoryManager) Indexes(h kv.Handle) indexes.Repository {
	return indexes.NewKVRepository(h, m.keys)
}

func (m *KVRepositoryManager) Keys() keys.Space {
	return m.keys
}
