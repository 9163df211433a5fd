package domain

// PubkeyLen is the byte length of an account or owner public key.
const PubkeyLen = 32

// SignatureLen is the byte length of a transaction signature.
const SignatureLen = 64

// AccountUpdate is one account write reported by the validator. It is
// immutable after creation; a newer write to the same pubkey supersedes it
// via WriteVersion.
type AccountUpdate struct {
	Pubkey       [PubkeyLen]byte
	Lamports     uint64
	Owner        [PubkeyLen]byte
	Executable   bool
	RentEpoch    uint64
	Data         []byte
	WriteVersion uint64
	Slot         uint64
	IsStartup    bool
}

// SPL token account layout constants. The mint and owner pubkeys sit at fixed
// offsets in the account data; Token-2022 accounts carry a discriminator byte
// right after the base layout.
const (
	TokenAccountMintOffset    = 0
	TokenAccountOwnerOffset   = 32
	TokenAccountLength        = 165
	TokenAccountDiscriminator = 2
)

// TokenProgramID and Token2022ProgramID are the owners whose accounts feed the
// token-owner index.
var (
	TokenProgramID     = MustPubkey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022ProgramID = MustPubkey("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
)

// TokenAccountRow is a secondary-index row derived from an AccountUpdate whose
// owner is one of the token programs.
type TokenAccountRow struct {
	Pubkey string
	Owner  string
	Mint   string
	Slot   uint64
}

// IsTokenAccount reports whether the update's data parses as an SPL token
// account.
func (a *AccountUpdate) IsTokenAccount() bool {
	if a.Owner == TokenProgramID {
		return len(a.Data) == TokenAccountLength
	}
	if a.Owner == Token2022ProgramID {
		return len(a.Data) > TokenAccountLength && a.Data[TokenAccountLength] == TokenAccountDiscriminator
	}
	return false
}

// TokenRow extracts the token-owner index row. Callers must check
// IsTokenAccount first.
func (a *AccountUpdate) TokenRow() TokenAccountRow {
	var mint, owner [PubkeyLen]byte
	copy(mint[:], a.Data[TokenAccountMintOffset:TokenAccountMintOffset+PubkeyLen])
	copy(owner[:], a.Data[TokenAccountOwnerOffset:TokenAccountOwnerOffset+PubkeyLen])
	return TokenAccountRow{
		Pubkey: EncodePubkey(a.Pubkey),
		Owner:  EncodePubkey(owner),
		Mint:   EncodePubkey(mint),
		Slot:   a.Slot,
	}
}
