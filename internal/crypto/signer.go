package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,uint256 chainId,address verifyingContract)
	//
	// The permit registry's domain carries no version field.
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,uint256 chainId,address verifyingContract)"),
	)

	// PermitDetails(address token,uint160 amount,uint48 expiration,uint48 nonce)
	permitDetailsTypeHash = ethcrypto.Keccak256(
		[]byte("PermitDetails(address token,uint160 amount,uint48 expiration,uint48 nonce)"),
	)

	// PermitSingle(PermitDetails details,address spender,uint256 sigDeadline)PermitDetails(address token,uint160 amount,uint48 expiration,uint48 nonce)
	permitSingleTypeHash = ethcrypto.Keccak256(
		[]byte("PermitSingle(PermitDetails details,address spender,uint256 sigDeadline)PermitDetails(address token,uint160 amount,uint48 expiration,uint48 nonce)"),
	)

	permit2NameHash = ethcrypto.Keccak256([]byte("Permit2"))
)

// PermitRequest carries the fields of a single-token permit to be signed for
// the router. All amounts are already range-checked by the caller: amount
// fits uint160, expiration and nonce fit uint48.
type PermitRequest struct {
	Token       common.Address
	Spender     common.Address
	Amount      *big.Int
	Expiration  *big.Int
	Nonce       *big.Int
	SigDeadline *big.Int
}

// Signer signs Permit2 PermitSingle messages and router transactions with
// the payer's secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// Key exposes the raw private key for transaction signing.
func (s *Signer) Key() *ecdsa.PrivateKey {
	return s.privateKey
}

// SignPermit signs a PermitSingle message against the permit registry
// deployed at permit2 on the given chain. The returned signature is 65 bytes
// (r || s || v, v in {27, 28}) ready for the PERMIT2_PERMIT router command.
func (s *Signer) SignPermit(chainID int64, permit2 common.Address, req PermitRequest) (*domain.PermitSignature, error) {
	domainSep := ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			permit2NameHash,
			bigIntTo32Bytes(big.NewInt(chainID)),
			common.LeftPadBytes(permit2.Bytes(), 32),
		),
	)

	detailsHash := ethcrypto.Keccak256(
		concatBytes(
			permitDetailsTypeHash,
			common.LeftPadBytes(req.Token.Bytes(), 32),
			bigIntTo32Bytes(req.Amount),
			bigIntTo32Bytes(req.Expiration),
			bigIntTo32Bytes(req.Nonce),
		),
	)

	structHash := ethcrypto.Keccak256(
		concatBytes(
			permitSingleTypeHash,
			detailsHash,
			common.LeftPadBytes(req.Spender.Bytes(), 32),
			bigIntTo32Bytes(req.SigDeadline),
		),
	)

	digest := eip712Hash(domainSep, structHash)

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing permit: %w", err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 verifiers expect {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return &domain.PermitSignature{
		Amount:      req.Amount,
		Expiration:  req.Expiration,
		Nonce:       req.Nonce,
		SigDeadline: req.SigDeadline,
		Signature:   sig,
	}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
