package identity

import (
	"strconv"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// Assignment is the outcome of resolving one row's identity.
type Assignment struct {
	Hash string
	// Renamed is set when a suffix was needed to keep the hash unique.
	Renamed bool
	// Random is set when the row could not be hashed deterministically.
	Random bool
}

// Resolver hands out unique hashes for one ingestion batch. It sees both
// the hashes already persisted and the ones it assigned earlier in the batch.
// Not safe for concurrent use.
type Resolver struct {
	taken map[string]struct{}
}

// NewResolver seeds the resolver with persisted hashes
func NewResolver(existing []string) *Resolver {
	taken := make(map[string]struct{}, len(existing))
	for _, h := range existing {
		taken[h] = struct{}{}
	}
	return &Resolver{taken: taken}
}

// Resolve computes the row's hash and suffixes it with _1, _2, ... until unused.
func (r *Resolver) Resolve(source ledger.SourceType, f ledger.Fields) Assignment {
	canonical, err := Canonical(source, f)
	if err != nil {
		token := randomToken()
		r.taken[token] = struct{}{}
		return Assignment{Hash: token, Random: true}
	}

	base := Hash(canonical)
	hash := base
	for n := 1; r.isTaken(hash); n++ {
		hash = base + "_" + strconv.Itoa(n)
	}
	r.taken[hash] = struct{}{}

	return Assignment{Hash: hash, Renamed: hash != base}
}

// Taken reports whether a hash is already in use
func (r *Resolver) Taken(hash string) bool {
	return r.isTaken(hash)
}

func (r *Resolver) isTaken(hash string) bool {
	_, ok := r.taken[hash]
	return ok
}
