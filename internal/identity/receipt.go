package identity

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Pre-computed keccak256 of the canonical receipt type strings.
var (
	// EIP712Domain(string name,string version)
	receiptDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version)"),
	)

	// Resolution(string market,string outcome,uint256 settledAt)
	resolutionTypeHash = ethcrypto.Keccak256(
		[]byte("Resolution(string market,string outcome,uint256 settledAt)"),
	)

	// Claim(string market,string claimer,uint256 gross,uint256 fee,uint256 net,uint256 settledAt)
	claimTypeHash = ethcrypto.Keccak256(
		[]byte("Claim(string market,string claimer,uint256 gross,uint256 fee,uint256 net,uint256 settledAt)"),
	)

	// receiptDomainSep is the fixed domain separator all receipts are
	// signed under. There is no chain id: receipts are an off-chain proof.
	receiptDomainSep = ethcrypto.Keccak256(concatBytes(
		receiptDomainTypeHash,
		ethcrypto.Keccak256([]byte("SettleReceipts")),
		ethcrypto.Keccak256([]byte("1")),
	))
)

// ReceiptSigner countersigns settlement outcomes with the operator key.
// Receipts give traders an offline-verifiable proof of what the operator
// settled, independent of the API's own responses.
type ReceiptSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewReceiptSigner creates a ReceiptSigner from a hex-encoded secp256k1
// private key.
func NewReceiptSigner(privateKeyHex string) (*ReceiptSigner, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("identity: invalid operator key: %w", err)
	}
	return &ReceiptSigner{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the operator address receipts verify against.
func (s *ReceiptSigner) Address() common.Address {
	return s.address
}

// SignResolution signs a market resolution receipt. The returned string is
// a hex-encoded 65-byte signature.
func (s *ReceiptSigner) SignResolution(marketID, outcome string, settledAt time.Time) (string, error) {
	return s.signDigest(resolutionDigest(marketID, outcome, settledAt))
}

// SignClaim signs a payout receipt covering the full money leg of one
// claim.
func (s *ReceiptSigner) SignClaim(marketID, claimer string, gross, fee, net int64, settledAt time.Time) (string, error) {
	return s.signDigest(claimDigest(marketID, claimer, gross, fee, net, settledAt))
}

// VerifyResolution reports whether receipt is a valid resolution receipt
// from signer over the given fields.
func VerifyResolution(receipt, marketID, outcome string, settledAt time.Time, signer common.Address) bool {
	return recoverDigest(resolutionDigest(marketID, outcome, settledAt), receipt) == signer
}

// VerifyClaim reports whether receipt is a valid claim receipt from signer
// over the given fields.
func VerifyClaim(receipt, marketID, claimer string, gross, fee, net int64, settledAt time.Time, signer common.Address) bool {
	return recoverDigest(claimDigest(marketID, claimer, gross, fee, net, settledAt), receipt) == signer
}

func resolutionDigest(marketID, outcome string, settledAt time.Time) []byte {
	structHash := ethcrypto.Keccak256(concatBytes(
		resolutionTypeHash,
		ethcrypto.Keccak256([]byte(marketID)),
		ethcrypto.Keccak256([]byte(outcome)),
		bigIntTo32Bytes(big.NewInt(settledAt.Unix())),
	))
	return eip712Hash(receiptDomainSep, structHash)
}

func claimDigest(marketID, claimer string, gross, fee, net int64, settledAt time.Time) []byte {
	structHash := ethcrypto.Keccak256(concatBytes(
		claimTypeHash,
		ethcrypto.Keccak256([]byte(marketID)),
		ethcrypto.Keccak256([]byte(claimer)),
		bigIntTo32Bytes(big.NewInt(gross)),
		bigIntTo32Bytes(big.NewInt(fee)),
		bigIntTo32Bytes(big.NewInt(net)),
		bigIntTo32Bytes(big.NewInt(settledAt.Unix())),
	))
	return eip712Hash(receiptDomainSep, structHash)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(concatBytes(
		[]byte{0x19, 0x01},
		domainSep,
		structHash,
	))
}

// signDigest signs a 32-byte digest using secp256k1 and returns the
// hex-encoded signature (r || s || v, 65 bytes).
func (s *ReceiptSigner) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("identity: signing receipt: %w", err)
	}

	// go-ethereum returns v in {0,1}; receipts carry v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

func recoverDigest(digest []byte, sigHex string) common.Address {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != 65 {
		return common.Address{}
	}
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}
	}
	return ethcrypto.PubkeyToAddress(*pub)
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
