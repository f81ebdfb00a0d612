package adapter

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

// AccessController is the binary admin authorization set. Every privileged
// operation on the adapter requires the caller to be a current ward. The
// principal passed to NewAccessController is auto-authorized so the set can
// bootstrap itself.
type AccessController struct {
	mu    sync.RWMutex
	wards map[common.Address]bool
}

// NewAccessController creates an AccessController with root as the initial
// authorized principal.
func NewAccessController(root common.Address) *AccessController {
	return &AccessController{
		wards: map[common.Address]bool{root: true},
	}
}

// Authorized reports whether principal is currently in the admin set.
func (ac *AccessController) Authorized(principal common.Address) bool {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.wards[principal]
}

// Rely adds principal to the admin set. The caller must already be
// authorized.
func (ac *AccessController) Rely(caller, principal common.Address) error {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if !ac.wards[caller] {
		return domain.ErrNotAuthorized
	}
	ac.wards[principal] = true
	return nil
}

// Deny removes principal from the admin set. The caller must already be
// authorized. A principal may deny itself.
func (ac *AccessController) Deny(caller, principal common.Address) error {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if !ac.wards[caller] {
		return domain.ErrNotAuthorized
	}
	delete(ac.wards, principal)
	return nil
}
