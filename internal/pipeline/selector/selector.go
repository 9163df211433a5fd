package selector

import (
	"github.com/vietddude/geyserpg/internal/core/domain"
)

// AccountSelector decides which account updates enter the pipeline.
// An empty selector admits everything; otherwise an update passes when
// its pubkey is on the account list or its owner is on the owner list.
// The lists are fixed at construction, so reads need no locking.
type AccountSelector struct {
	accounts map[string]struct{}
	owners   map[string]struct{}
}

// New builds a selector from base58-encoded account and owner lists.
func New(accounts, owners []string) *AccountSelector {
	s := &AccountSelector{
		accounts: make(map[string]struct{}, len(accounts)),
		owners:   make(map[string]struct{}, len(owners)),
	}
	for _, a := range accounts {
		s.accounts[a] = struct{}{}
	}
	for _, o := range owners {
		s.owners[o] = struct{}{}
	}
	return s
}

// SelectAll reports whether the selector admits every account.
func (s *AccountSelector) SelectAll() bool {
	return len(s.accounts) == 0 && len(s.owners) == 0
}

// Selects reports whether the update should be persisted.
func (s *AccountSelector) Selects(acct *domain.AccountUpdate) bool {
	if s.SelectAll() {
		return true
	}
	if _, ok := s.accounts[domain.EncodePubkey(acct.Pubkey)]; ok {
		return true
	}
	if _, ok := s.owners[domain.EncodePubkey(acct.Owner)]; ok {
		return true
	}
	return false
}

// Size returns the number of listed accounts and owners.
func (s *AccountSelector) Size() (accounts, owners int) {
	return len(s.accounts), len(s.owners)
}
