// Package replay provides first-writer-wins replay protection for
// (issuer, kid, nonce) triples across several storage backends.
package replay

import (
	"context"
	"time"
)

// Store records whether an (issuer, kid, nonce) triple has been seen
// before. Seen reports true if the triple was already present (replay),
// and atomically records it as seen — with ttl validity — if it was not.
// Implementations must make the check-and-record step atomic: two
// concurrent callers racing on the same triple must never both receive
// false.
type Store interface {
	Seen(ctx context.Context, issuer, kid, nonce string, ttl time.Duration) (bool, error)
}

func compositeKey(issuer, kid, nonce string) string {
	return issuer + "\x1f" + kid + "\x1f" + nonce
}
