package binance

import (
	"sync"

	"tradeflow/models"
)

// CredentialStore holds the active API key pair for the process
// lifetime. Replacement swaps the whole value under the lock, so a
// concurrent reader sees either the old or the new credentials in full,
// never an old key paired with a new secret.
type CredentialStore struct {
	mu    sync.RWMutex
	creds models.Credentials
	set   bool
}

// Set replaces the active credentials.
func (s *CredentialStore) Set(creds models.Credentials) {
	s.mu.Lock()
	s.creds = creds
	s.set = true
	s.mu.Unlock()
}

// Get returns the active credentials and whether any are configured.
func (s *CredentialStore) Get() (models.Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, s.set
}

// Clear drops the active credentials.
func (s *CredentialStore) Clear() {
	s.mu.Lock()
	s.creds = models.Credentials{}
	s.set = false
	s.mu.Unlock()
}
