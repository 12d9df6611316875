package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrSignatureInvalid covers malformed and unrecoverable signatures.
	ErrSignatureInvalid = errors.New("identity: signature invalid")
	// ErrTimestampSkew means the signed timestamp is outside the allowed
	// window around server time.
	ErrTimestampSkew = errors.New("identity: timestamp outside allowed window")
	// ErrAccountMismatch means the signature recovers to a different
	// address than the one the request claims.
	ErrAccountMismatch = errors.New("identity: recovered address does not match account")
)

// Verifier authenticates trader requests signed with the EIP-191 personal
// message scheme. The signed payload binds method, path, timestamp and body
// so a captured signature cannot be replayed against another endpoint, and
// the timestamp window bounds replays of the same request.
type Verifier struct {
	skew time.Duration
}

// NewVerifier returns a Verifier accepting timestamps within skew of
// server time on either side.
func NewVerifier(skew time.Duration) *Verifier {
	return &Verifier{skew: skew}
}

// VerifyRequest checks one signed request and returns the recovered
// caller address. account is the address the request claims, timestamp the
// signed unix-seconds string, sigHex the 65-byte hex signature.
func (v *Verifier) VerifyRequest(account, timestamp, sigHex, method, path string, body []byte, now time.Time) (common.Address, error) {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: bad timestamp %q", ErrSignatureInvalid, timestamp)
	}
	if d := now.Sub(time.Unix(ts, 0)); d > v.skew || d < -v.skew {
		return common.Address{}, ErrTimestampSkew
	}

	recovered, err := RecoverAddress(CanonicalRequest(method, path, timestamp, body), sigHex)
	if err != nil {
		return common.Address{}, err
	}
	if recovered != common.HexToAddress(account) {
		return common.Address{}, ErrAccountMismatch
	}
	return recovered, nil
}

// CanonicalRequest builds the exact byte string a client must sign for one
// request. The body is bound by its keccak256 hash so large payloads do
// not blow up the signed message.
func CanonicalRequest(method, path, timestamp string, body []byte) []byte {
	bodyHash := hex.EncodeToString(ethcrypto.Keccak256(body))
	return []byte("settle-auth:" + method + "\n" + path + "\n" + timestamp + "\n" + bodyHash)
}

// PersonalDigest hashes a message per EIP-191 ("\x19Ethereum Signed
// Message:\n" + length prefix), the scheme wallet personal_sign uses.
func PersonalDigest(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return ethcrypto.Keccak256(append([]byte(prefix), msg...))
}

// RecoverAddress recovers the signing address of an EIP-191 personal
// signature over msg. Both {0,1} and {27,28} recovery ids are accepted.
func RecoverAddress(msg []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: not hex", ErrSignatureInvalid)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("%w: expected 65 bytes, got %d", ErrSignatureInvalid, len(sig))
	}
	// go-ethereum wants the recovery id in {0,1}.
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(PersonalDigest(msg), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// SignRequest produces the signature VerifyRequest expects. It exists for
// tests and local tooling; real traders sign client-side.
func SignRequest(privateKeyHex, method, path, timestamp string, body []byte) (string, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return "", fmt.Errorf("identity: invalid private key: %w", err)
	}
	sig, err := ethcrypto.Sign(PersonalDigest(CanonicalRequest(method, path, timestamp, body)), pk)
	if err != nil {
		return "", fmt.Errorf("identity: signing request: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}
