package sol

import (
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Authorizer accepts an owner as its own signer, plus any signer the owner
// has approved.
type Authorizer struct {
	mu        sync.RWMutex
	delegates map[solana.PublicKey]map[solana.PublicKey]struct{}
}

func NewAuthorizer() *Authorizer {
	return &Authorizer{delegates: make(map[solana.PublicKey]map[solana.PublicKey]struct{})}
}

func (a *Authorizer) Approve(owner, signer solana.PublicKey) {
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.delegates[owner]
	if !ok {
		set = make(map[solana.PublicKey]struct{})
		a.delegates[owner] = set
	}
	set[signer] = struct{}{}
}

func (a *Authorizer) Revoke(owner, signer solana.PublicKey) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.delegates[owner], signer)
	if len(a.delegates[owner]) == 0 {
		delete(a.delegates, owner)
	}
}

func (a *Authorizer) Verify(owner, signer solana.PublicKey) bool {
	if owner.Equals(signer) {
		return true
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.delegates[owner][signer]
	return ok
}
