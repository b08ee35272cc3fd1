// Package auth identifies callers by the Ethereum address that signed the request.
//
// A caller signs the EIP-191 text hash of
//
//	METHOD "\n" REQUEST_URI "\n" UNIX_TIMESTAMP "\n" 0x<keccak256(body)>
//
// and sends the address, timestamp and signature in the X-Caller-* headers.
// A signed message is accepted once; repeating a request needs a new
// timestamp.
package auth

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"bazaar/pkg/response"
)

const (
	HeaderAddress   = "X-Caller-Address"
	HeaderTimestamp = "X-Caller-Timestamp"
	HeaderSignature = "X-Caller-Signature"

	callerKey = "caller_address"

	replayCacheSize = 100_000
)

var (
	ErrMissingCredentials = errors.New("missing caller credentials")
	ErrInvalidAddress     = errors.New("invalid caller address")
	ErrStaleTimestamp     = errors.New("request timestamp outside allowed window")
	ErrInvalidSignature   = errors.New("invalid request signature")
	ErrReplayedRequest    = errors.New("request signature already used")
)

// Message returns the text a caller signs for one request.
func Message(method, requestURI string, timestamp int64, body []byte) string {
	return fmt.Sprintf("%s\n%s\n%d\n%s", strings.ToUpper(method), requestURI, timestamp, hexutil.Encode(crypto.Keccak256(body)))
}

// Sign produces the X-Caller-Signature value for a request. Used by clients and tests.
func Sign(key *ecdsa.PrivateKey, method, requestURI string, timestamp int64, body []byte) (string, error) {
	hash := accounts.TextHash([]byte(Message(method, requestURI, timestamp, body)))
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

type signedMessage struct {
	hash   common.Hash
	signer common.Address
}

type Verifier struct {
	maxSkew time.Duration
	now     func() time.Time

	// A timestamp may lead the clock by maxSkew, so a message stays
	// acceptable for up to twice that long.
	mu   sync.Mutex
	seen *expirable.LRU[signedMessage, struct{}]
}

func NewVerifier(maxSkew time.Duration) *Verifier {
	if maxSkew <= 0 {
		maxSkew = 5 * time.Minute
	}
	return &Verifier{
		maxSkew: maxSkew,
		now:     time.Now,
		seen:    expirable.NewLRU[signedMessage, struct{}](replayCacheSize, nil, 2*maxSkew),
	}
}

// Verify checks the signature and returns the authenticated address.
func (v *Verifier) Verify(method, requestURI string, body []byte, address, timestamp, signature string) (common.Address, error) {
	if address == "" || timestamp == "" || signature == "" {
		return common.Address{}, ErrMissingCredentials
	}
	if !common.IsHexAddress(address) {
		return common.Address{}, ErrInvalidAddress
	}
	claimed := common.HexToAddress(address)

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return common.Address{}, ErrStaleTimestamp
	}
	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return common.Address{}, ErrStaleTimestamp
	}

	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	hash := accounts.TextHash([]byte(Message(method, requestURI, ts, body)))
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}
	if crypto.PubkeyToAddress(*pub) != claimed {
		return common.Address{}, ErrInvalidSignature
	}

	// Keyed by message rather than signature bytes: the high-s twin of a
	// signature recovers to the same signer.
	msg := signedMessage{hash: common.BytesToHash(hash), signer: claimed}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.seen.Contains(msg) {
		return common.Address{}, ErrReplayedRequest
	}
	v.seen.Add(msg, struct{}{})
	return claimed, nil
}

// Middleware authenticates the request and stores the caller address on the gin context.
func (v *Verifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body []byte
		if c.Request.Body != nil {
			b, err := io.ReadAll(c.Request.Body)
			if err != nil {
				response.SendAPIError(c, http.StatusBadRequest, "InvalidBody", "unable to read request body")
				return
			}
			body = b
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		caller, err := v.Verify(
			c.Request.Method,
			c.Request.URL.RequestURI(),
			body,
			c.GetHeader(HeaderAddress),
			c.GetHeader(HeaderTimestamp),
			c.GetHeader(HeaderSignature),
		)
		if err != nil {
			response.SendAPIError(c, http.StatusUnauthorized, "Unauthenticated", err.Error())
			return
		}

		SetCaller(c, caller)
		c.Next()
	}
}

func SetCaller(c *gin.Context, addr common.Address) {
	c.Set(callerKey, addr)
}

// Caller returns the authenticated address, if any.
func Caller(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}
