package handler

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/friendbet/internal/chain"
	"github.com/alanyoungcy/friendbet/internal/server/middleware"
)

// recordingResolutionService records the caller each mutation ran as.
type recordingResolutionService struct {
	resolvedAs string
}

func (s *recordingResolutionService) ResolveFriendMarket(ctx context.Context, marketID int64, caller string, outcome bool) error {
	s.resolvedAs = caller
	return nil
}

func (s *recordingResolutionService) ChallengeResolution(ctx context.Context, marketID int64, caller string, bond *big.Int) error {
	return nil
}

func (s *recordingResolutionService) ResolveDispute(ctx context.Context, marketID int64, caller string, outcome bool) error {
	return nil
}

func (s *recordingResolutionService) FinalizeResolution(ctx context.Context, marketID int64) error {
	return nil
}

func (s *recordingResolutionService) ClaimWinnings(ctx context.Context, marketID int64, caller string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func newSignedResolveChain(t *testing.T, required bool) (http.Handler, *recordingResolutionService) {
	t.Helper()
	svc := &recordingResolutionService{}
	h := NewResolutionHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return middleware.SigAuth(required)(http.HandlerFunc(h.Resolve)), svc
}

func resolveRequest(t *testing.T, body []byte, headerCaller, keyHex string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/markets/1/resolve", bytes.NewReader(body))
	req.SetPathValue("id", "1")
	if keyHex != "" {
		sig, err := chain.SignPersonal(keyHex, body)
		require.NoError(t, err)
		req.Header.Set("X-Caller", headerCaller)
		req.Header.Set("X-Signature", sig)
	}
	return req
}

func TestSignedRequestActsOnlyAsSigner(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	keyHex := "0x" + hex.EncodeToString(ethcrypto.FromECDSA(key))
	signer := strings.ToLower(ethcrypto.PubkeyToAddress(key.PublicKey).Hex())
	victim := "0x1111111111111111111111111111111111111111"

	t.Run("caller must match the signer", func(t *testing.T) {
		chainH, svc := newSignedResolveChain(t, true)

		// A valid signature over the body, but the body names someone
		// else as the acting address.
		body := []byte(fmt.Sprintf(`{"caller":%q,"outcome":true}`, victim))
		rec := httptest.NewRecorder()
		chainH.ServeHTTP(rec, resolveRequest(t, body, signer, keyHex))

		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Empty(t, svc.resolvedAs, "service must not run as the victim")
	})

	t.Run("signer acting as itself passes", func(t *testing.T) {
		chainH, svc := newSignedResolveChain(t, true)

		body := []byte(fmt.Sprintf(`{"caller":%q,"outcome":true}`, signer))
		rec := httptest.NewRecorder()
		chainH.ServeHTTP(rec, resolveRequest(t, body, signer, keyHex))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, signer, svc.resolvedAs)
	})

	t.Run("unsigned request rejected when signatures are required", func(t *testing.T) {
		chainH, svc := newSignedResolveChain(t, true)

		body := []byte(fmt.Sprintf(`{"caller":%q,"outcome":true}`, signer))
		rec := httptest.NewRecorder()
		chainH.ServeHTTP(rec, resolveRequest(t, body, "", ""))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Empty(t, svc.resolvedAs)
	})

	t.Run("unsigned request passes when signatures are optional", func(t *testing.T) {
		chainH, svc := newSignedResolveChain(t, false)

		body := []byte(fmt.Sprintf(`{"caller":%q,"outcome":true}`, victim))
		rec := httptest.NewRecorder()
		chainH.ServeHTTP(rec, resolveRequest(t, body, "", ""))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, victim, svc.resolvedAs)
	})

	t.Run("signed request still verified when optional", func(t *testing.T) {
		chainH, svc := newSignedResolveChain(t, false)

		body := []byte(fmt.Sprintf(`{"caller":%q,"outcome":true}`, victim))
		rec := httptest.NewRecorder()
		chainH.ServeHTTP(rec, resolveRequest(t, body, signer, keyHex))

		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Empty(t, svc.resolvedAs)
	})
}
