package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/peacprotocol/peac-core/pkg/problemdetail"
)

// Fetcher retrieves the bytes at url. It is injected by the caller rather
// than owned by this package, which performs no network I/O of its own —
// the caller already has an HTTP client configured with the SSRF guard
// and timeouts appropriate to its deployment.
type Fetcher func(ctx context.Context, url string) ([]byte, error)

// ResolvePointer fetches the JWS referenced by p using fetch and checks
// the fetched bytes hash to the declared digest, returning
// E_POINTER_DIGEST_MISMATCH on mismatch — distinct from the structural
// E_INVALID_TRANSPORT errors ParseReceipt itself returns, since this
// requires the network round trip ParseReceipt never performs.
func ResolvePointer(ctx context.Context, p *Pointer, fetch Fetcher) (string, error) {
	raw, err := fetch(ctx, p.URL)
	if err != nil {
		return "", problemdetail.Wrap(problemdetail.EUpstreamError,
			fmt.Sprintf("pointer fetch %s failed", p.URL), err)
	}

	sum := sha256.Sum256(raw)
	got := hex.EncodeToString(sum[:])
	if got != p.Digest {
		return "", problemdetail.New(problemdetail.EPointerDigestMismatch,
			fmt.Sprintf("fetched content digest %s does not match declared %s", got, p.Digest))
	}

	jws := string(raw)
	if err := validateCompactJWSShape(jws); err != nil {
		return "", err
	}
	return jws, nil
}
