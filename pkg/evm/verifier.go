package evm

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/rexpump/mediad/internal/logger"
	"github.com/rexpump/mediad/pkg/apperr"
	"github.com/rexpump/mediad/pkg/config"
)

// creatorSelector is the 4-byte selector of creator().
const creatorSelector = "0x02d05d3f"

// rpcTimeout bounds each eth_call, primary and fallback alike.
const rpcTimeout = 10 * time.Second

// CreatorVerifier answers who created a token on a given chain.
type CreatorVerifier interface {
	// CreatorOf returns the creator address, normalized to lowercase.
	CreatorOf(ctx context.Context, chainID uint64, tokenAddr string) (string, error)
}

// Verifier resolves creators through configured JSON-RPC endpoints, with
// one fallback endpoint per network.
type Verifier struct {
	networks config.RexPumpConfig
}

// NewVerifier builds a Verifier over the configured networks.
func NewVerifier(cfg config.RexPumpConfig) *Verifier {
	return &Verifier{networks: cfg}
}

// CreatorOf calls creator() on the token contract. The primary endpoint
// is tried first; on any transport or RPC error the fallback (if set)
// gets one attempt. Both failing is a server-side error, not an
// authorization verdict.
func (v *Verifier) CreatorOf(ctx context.Context, chainID uint64, tokenAddr string) (string, error) {
	network, ok := v.networks.NetworkByChainID(chainID)
	if !ok {
		return "", apperr.Ef(apperr.KindValidation, "chain %d is not configured", chainID)
	}

	addr := normalizeAddr(tokenAddr)

	creator, err := ethCallCreator(ctx, network.RPCURL, addr)
	if err == nil {
		return creator, nil
	}
	logger.Warn("primary rpc endpoint failed", "chain_id", chainID, "url", network.RPCURL, "error", err)

	if network.FallbackRPCURL != "" {
		creator, fbErr := ethCallCreator(ctx, network.FallbackRPCURL, addr)
		if fbErr == nil {
			return creator, nil
		}
		logger.Warn("fallback rpc endpoint failed", "chain_id", chainID, "url", network.FallbackRPCURL, "error", fbErr)
	}

	return "", apperr.Wrap(apperr.KindInternal, "querying token creator", err)
}

// ethCallCreator performs one eth_call of creator() against url.
func ethCallCreator(ctx context.Context, url, tokenAddr string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	client, err := rpc.DialContext(callCtx, url)
	if err != nil {
		return "", err
	}
	defer client.Close()

	var result string
	err = client.CallContext(callCtx, &result, "eth_call", map[string]string{
		"to":   tokenAddr,
		"data": creatorSelector,
	}, "latest")
	if err != nil {
		return "", err
	}

	return parseCreatorResult(result)
}

// parseCreatorResult extracts the address from a 32-byte eth_call return
// word: the creator is the low 20 bytes.
func parseCreatorResult(result string) (string, error) {
	hexStr := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(result)), "0x")
	if len(hexStr) < 40 {
		return "", apperr.Ef(apperr.KindInternal, "creator() returned short result: %q", result)
	}
	tail := hexStr[len(hexStr)-40:]
	if _, err := hex.DecodeString(tail); err != nil {
		return "", apperr.Ef(apperr.KindInternal, "creator() returned non-hex result: %q", result)
	}
	return "0x" + tail, nil
}

// VerifyTokenOwner checks that claimed owns the token on chain. A creator
// mismatch is not_authorized; RPC unavailability surfaces as internal.
func VerifyTokenOwner(ctx context.Context, v CreatorVerifier, chainID uint64, tokenAddr, claimed string) error {
	creator, err := v.CreatorOf(ctx, chainID, tokenAddr)
	if err != nil {
		return err
	}
	if creator != normalizeAddr(claimed) {
		return apperr.Ef(apperr.KindNotAuthorized, "address %s is not the creator of token %s", claimed, tokenAddr)
	}
	return nil
}
