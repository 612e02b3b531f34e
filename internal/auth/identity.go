// ABOUTME: Client-side identity holder: the signed-in actor and its bearer token
// ABOUTME: Notifies registered callbacks on sign-in and sign-out

package auth

import (
	"sync"
)

// Identity tracks who the client is signed in as.
type Identity struct {
	mu        sync.RWMutex
	actorID   string
	token     string
	callbacks []func(actorID string)
}

// NewIdentity returns a signed-out identity.
func NewIdentity() *Identity {
	return &Identity{}
}

// CurrentActor returns the signed-in actor, if any.
func (i *Identity) CurrentActor() (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.actorID, i.actorID != ""
}

// Token returns the bearer token, empty when signed out.
func (i *Identity) Token() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.token
}

// SignIn adopts token and reports the actor it names.
func (i *Identity) SignIn(token string) (string, error) {
	actorID, err := Subject(token)
	if err != nil {
		return "", err
	}

	i.mu.Lock()
	i.actorID = actorID
	i.token = token
	callbacks := append([]func(string){}, i.callbacks...)
	i.mu.Unlock()

	for _, cb := range callbacks {
		cb(actorID)
	}
	return actorID, nil
}

// SignOut forgets the token. Callbacks receive an empty actor ID.
func (i *Identity) SignOut() {
	i.mu.Lock()
	wasSignedIn := i.actorID != ""
	i.actorID = ""
	i.token = ""
	callbacks := append([]func(string){}, i.callbacks...)
	i.mu.Unlock()

	if !wasSignedIn {
		return
	}
	for _, cb := range callbacks {
		cb("")
	}
}

// OnAuthChange registers cb to run after every sign-in and sign-out.
func (i *Identity) OnAuthChange(cb func(actorID string)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.callbacks = append(i.callbacks, cb)
}
