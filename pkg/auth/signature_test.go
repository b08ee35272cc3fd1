package auth

import (
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestVerifier_Verify(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	now := time.Unix(1_700_000_000, 0)
	v := NewVerifier(time.Minute)
	v.now = func() time.Time { return now }

	body := []byte(`{"price":1000}`)
	sig, err := Sign(key, http.MethodPost, "/listings", now.Unix(), body)
	require.NoError(t, err)
	ts := strconv.FormatInt(now.Unix(), 10)

	t.Run("valid", func(t *testing.T) {
		got, err := v.Verify(http.MethodPost, "/listings", body, addr.Hex(), ts, sig)
		require.NoError(t, err)
		require.Equal(t, addr, got)
	})

	t.Run("body tampered", func(t *testing.T) {
		_, err := v.Verify(http.MethodPost, "/listings", []byte(`{"price":1}`), addr.Hex(), ts, sig)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("other address", func(t *testing.T) {
		other := common.HexToAddress("0x00000000000000000000000000000000000000aa")
		_, err := v.Verify(http.MethodPost, "/listings", body, other.Hex(), ts, sig)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("stale", func(t *testing.T) {
		old := strconv.FormatInt(now.Add(-2*time.Minute).Unix(), 10)
		_, err := v.Verify(http.MethodPost, "/listings", body, addr.Hex(), old, sig)
		require.ErrorIs(t, err, ErrStaleTimestamp)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := v.Verify(http.MethodPost, "/listings", body, "", ts, sig)
		require.ErrorIs(t, err, ErrMissingCredentials)
	})

	t.Run("bad address", func(t *testing.T) {
		_, err := v.Verify(http.MethodPost, "/listings", body, "not-an-address", ts, sig)
		require.ErrorIs(t, err, ErrInvalidAddress)
	})
}

func TestVerifier_RejectsReplayedMessage(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	now := time.Unix(1_700_000_000, 0)
	v := NewVerifier(time.Minute)
	v.now = func() time.Time { return now }

	body := []byte(`{"amount":500}`)
	sig, err := Sign(key, http.MethodPost, "/auctions/1/bids", now.Unix(), body)
	require.NoError(t, err)
	ts := strconv.FormatInt(now.Unix(), 10)

	_, err = v.Verify(http.MethodPost, "/auctions/1/bids", body, addr.Hex(), ts, sig)
	require.NoError(t, err)

	_, err = v.Verify(http.MethodPost, "/auctions/1/bids", body, addr.Hex(), ts, sig)
	require.ErrorIs(t, err, ErrReplayedRequest)

	// Same message, malleated to the high-s form of the signature.
	raw, err := hexutil.Decode(sig)
	require.NoError(t, err)
	n := crypto.S256().Params().N
	highS := new(big.Int).Sub(n, new(big.Int).SetBytes(raw[32:64]))
	twin := make([]byte, crypto.SignatureLength)
	copy(twin, raw[:32])
	highS.FillBytes(twin[32:64])
	twin[crypto.RecoveryIDOffset] = raw[crypto.RecoveryIDOffset] ^ 1
	_, err = v.Verify(http.MethodPost, "/auctions/1/bids", body, addr.Hex(), ts, hexutil.Encode(twin))
	require.ErrorIs(t, err, ErrReplayedRequest)

	next := strconv.FormatInt(now.Unix()+1, 10)
	sig, err = Sign(key, http.MethodPost, "/auctions/1/bids", now.Unix()+1, body)
	require.NoError(t, err)
	_, err = v.Verify(http.MethodPost, "/auctions/1/bids", body, addr.Hex(), next, sig)
	require.NoError(t, err)
}

func TestVerifier_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	v := NewVerifier(time.Minute)
	r := gin.New()
	r.POST("/whoami", v.Middleware(), func(c *gin.Context) {
		caller, ok := Caller(c)
		require.True(t, ok)
		c.String(http.StatusOK, caller.Hex())
	})

	body := `{"a":1}`
	ts := time.Now().Unix()
	sig, err := Sign(key, http.MethodPost, "/whoami", ts, []byte(body))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/whoami", strings.NewReader(body))
	req.Header.Set(HeaderAddress, addr.Hex())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, sig)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, addr.Hex(), w.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/whoami", strings.NewReader(body))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/whoami", strings.NewReader(body))
	req.Header.Set(HeaderAddress, addr.Hex())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, sig)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), ErrReplayedRequest.Error())
}
