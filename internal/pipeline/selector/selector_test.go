package selector

import (
	"testing"

	"github.com/vietddude/geyserpg/internal/core/domain"
)

const (
	tokenProgram     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	token2022Program = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
)

func acctWith(pubkey, owner string) *domain.AccountUpdate {
	return &domain.AccountUpdate{
		Pubkey: domain.MustPubkey(pubkey),
		Owner:  domain.MustPubkey(owner),
	}
}

func TestEmptySelectorAdmitsAll(t *testing.T) {
	s := New(nil, nil)
	if !s.SelectAll() {
		t.Fatal("expected empty selector to select all")
	}
	if !s.Selects(acctWith(tokenProgram, token2022Program)) {
		t.Fatal("expected empty selector to admit any account")
	}
}

func TestSelectsByPubkey(t *testing.T) {
	s := New([]string{tokenProgram}, nil)
	if s.SelectAll() {
		t.Fatal("non-empty selector must not report select-all")
	}
	if !s.Selects(acctWith(tokenProgram, token2022Program)) {
		t.Fatal("expected listed pubkey to be admitted")
	}
	if s.Selects(acctWith(token2022Program, token2022Program)) {
		t.Fatal("expected unlisted pubkey to be rejected")
	}
}

func TestSelectsByOwner(t *testing.T) {
	s := New(nil, []string{tokenProgram})
	if !s.Selects(acctWith(token2022Program, tokenProgram)) {
		t.Fatal("expected account owned by listed program to be admitted")
	}
	if s.Selects(acctWith(tokenProgram, token2022Program)) {
		t.Fatal("expected account with unlisted owner to be rejected")
	}
}

func TestSize(t *testing.T) {
	s := New([]string{tokenProgram}, []string{tokenProgram, token2022Program})
	accounts, owners := s.Size()
	if accounts != 1 || owners != 2 {
		t.Fatalf("Size() = (%d, %d), want (1, 2)", accounts, owners)
	}
}
