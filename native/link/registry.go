package link

import (
	"errors"
	"fmt"
	"time"

	"pointchain/core/events"
	"pointchain/core/sigverify"
	"pointchain/native/quorum"
)

var (
	ErrInvalidIdentityHash = errors.New("link: identity hash of empty string rejected")
	ErrDuplicateRequest    = errors.New("link: request id already used")
	ErrRequestNotFound     = errors.New("link: request not found")
	ErrRequestNotOpen      = errors.New("link: request is not open for voting")
	ErrNotLinked           = errors.New("link: address has no identity mapping")
)

// DefaultRequestTTL bounds how long an unapproved request stays votable.
// Tallying past this window transitions the request to Expired so the
// identity and address become claimable again.
const DefaultRequestTTL = 7 * 24 * time.Hour

type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	Nonce(addr [20]byte) (uint64, error)
	BumpNonce(addr [20]byte) error
}

var (
	requestPrefix = []byte("link/request/")
	forwardPrefix = []byte("link/identity/") // identity hash -> address
	reversePrefix = []byte("link/account/")  // address -> identity hash
)

func requestKey(id [32]byte) []byte {
	return append(append([]byte(nil), requestPrefix...), id[:]...)
}

func forwardKey(identityHash [32]byte) []byte {
	return append(append([]byte(nil), forwardPrefix...), identityHash[:]...)
}

func reverseKey(account [20]byte) []byte {
	return append(append([]byte(nil), reversePrefix...), account[:]...)
}

// Registry maintains the voted, bidirectional identity-to-address mapping.
// The two mapping directions are only ever written together.
type Registry struct {
	st         registryState
	validators *quorum.Set
	emitter    events.Emitter
	ttl        time.Duration
	nowFn      func() int64
}

// NewRegistry creates a link registry bound to the provided state and
// validator set.
func NewRegistry(st registryState, validators *quorum.Set) *Registry {
	return &Registry{
		st:         st,
		validators: validators,
		emitter:    events.NoopEmitter{},
		ttl:        DefaultRequestTTL,
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetRequestTTL overrides the request expiry window.
func (r *Registry) SetRequestTTL(ttl time.Duration) {
	if ttl > 0 {
		r.ttl = ttl
	}
}

// SetNowFunc overrides the time source, for deterministic tests.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

// AddRequest stores a new link request after verifying the requester's
// signature over (identityHash, account, nonce).
func (r *Registry) AddRequest(requestID, identityHash [32]byte, account [20]byte, signature []byte) error {
	if sigverify.IsEmptyIdentity(identityHash) {
		return ErrInvalidIdentityHash
	}
	exists, err := r.st.KVGet(requestKey(requestID), nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %x", ErrDuplicateRequest, requestID)
	}
	nonce, err := r.st.Nonce(account)
	if err != nil {
		return err
	}
	hash := sigverify.LinkMessage(identityHash, account, nonce)
	if err := sigverify.Verify(hash, signature, account); err != nil {
		return err
	}
	request := &Request{
		ID:           requestID,
		IdentityHash: identityHash,
		Account:      account,
		State:        StateRequested,
		ExpiresAt:    uint64(r.nowFn()) + uint64(r.ttl/time.Second),
	}
	if err := r.st.KVPut(requestKey(requestID), request); err != nil {
		return err
	}
	if err := r.st.BumpNonce(account); err != nil {
		return err
	}
	r.emitter.Emit(events.LinkRequestAdded{
		RequestID:    requestID,
		IdentityHash: identityHash,
		Account:      account,
	})
	return nil
}

// VoteRequest records one validator vote on an open request. A validator may
// vote at most once per request.
func (r *Registry) VoteRequest(requestID [32]byte, validator [20]byte) error {
	if !r.validators.IsActive(validator) {
		return quorum.ErrNotValidator
	}
	request, err := r.getRequest(requestID)
	if err != nil {
		return err
	}
	if request.State != StateRequested {
		return fmt.Errorf("%w: state %s", ErrRequestNotOpen, request.State)
	}
	if err := request.Votes.Add(validator); err != nil {
		return err
	}
	return r.st.KVPut(requestKey(requestID), request)
}

// CountVote tallies an open request. Reaching a simple majority of active
// validators commits the mapping in both directions, displacing any prior
// mapping of either side. Tallying an already accepted request is a no-op,
// and tallying past the expiry window retires the request.
func (r *Registry) CountVote(requestID [32]byte) error {
	request, err := r.getRequest(requestID)
	if err != nil {
		return err
	}
	switch request.State {
	case StateAccepted, StateExpired:
		return nil
	case StateRequested:
	default:
		return fmt.Errorf("%w: state %s", ErrRequestNotOpen, request.State)
	}
	if uint64(r.nowFn()) >= request.ExpiresAt {
		request.State = StateExpired
		if err := r.st.KVPut(requestKey(requestID), request); err != nil {
			return err
		}
		r.emitter.Emit(events.LinkRequestExpired{
			RequestID:    request.ID,
			IdentityHash: request.IdentityHash,
			Account:      request.Account,
		})
		return nil
	}
	if request.Votes.Count() < r.validators.Quorum() {
		return nil
	}
	if err := r.commit(request.IdentityHash, request.Account); err != nil {
		return err
	}
	request.State = StateAccepted
	if err := r.st.KVPut(requestKey(requestID), request); err != nil {
		return err
	}
	r.emitter.Emit(events.LinkRequestAccepted{
		RequestID:    request.ID,
		IdentityHash: request.IdentityHash,
		Account:      request.Account,
		Votes:        request.Votes.Count(),
	})
	return nil
}

// Remove clears the mapping for account in both directions. The removal
// message must be signed by the account itself and submitted by an active
// validator.
func (r *Registry) Remove(account [20]byte, validator [20]byte, signature []byte) error {
	if !r.validators.IsActive(validator) {
		return quorum.ErrNotValidator
	}
	identityHash, ok, err := r.IdentityOf(account)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotLinked
	}
	nonce, err := r.st.Nonce(account)
	if err != nil {
		return err
	}
	hash := sigverify.RemoveMessage(account, nonce)
	if err := sigverify.Verify(hash, signature, account); err != nil {
		return err
	}
	if err := r.clear(identityHash, account); err != nil {
		return err
	}
	if err := r.st.BumpNonce(account); err != nil {
		return err
	}
	r.emitter.Emit(events.LinkRemoved{IdentityHash: identityHash, Account: account})
	return nil
}

// AddressOf resolves an identity hash to its linked address.
func (r *Registry) AddressOf(identityHash [32]byte) ([20]byte, bool, error) {
	var account [20]byte
	ok, err := r.st.KVGet(forwardKey(identityHash), &account)
	return account, ok, err
}

// IdentityOf resolves an address to its linked identity hash.
func (r *Registry) IdentityOf(account [20]byte) ([32]byte, bool, error) {
	var identityHash [32]byte
	ok, err := r.st.KVGet(reverseKey(account), &identityHash)
	return identityHash, ok, err
}

// Request returns the stored request record.
func (r *Registry) Request(requestID [32]byte) (*Request, error) {
	return r.getRequest(requestID)
}

func (r *Registry) getRequest(requestID [32]byte) (*Request, error) {
	request := &Request{}
	ok, err := r.st.KVGet(requestKey(requestID), request)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrRequestNotFound, requestID)
	}
	return request, nil
}

// commit writes both mapping directions together, first clearing any mapping
// previously held by either side.
func (r *Registry) commit(identityHash [32]byte, account [20]byte) error {
	if prior, ok, err := r.AddressOf(identityHash); err != nil {
		return err
	} else if ok {
		if err := r.st.KVDelete(reverseKey(prior)); err != nil {
			return err
		}
	}
	if prior, ok, err := r.IdentityOf(account); err != nil {
		return err
	} else if ok {
		if err := r.st.KVDelete(forwardKey(prior)); err != nil {
			return err
		}
	}
	if err := r.st.KVPut(forwardKey(identityHash), account); err != nil {
		return err
	}
	return r.st.KVPut(reverseKey(account), identityHash)
}

// clear removes both mapping directions together.
func (r *Registry) clear(identityHash [32]byte, account [20]byte) error {
	if err := r.st.KVDelete(forwardKey(identityHash)); err != nil {
		return err
	}
	return r.st.KVDelete(reverseKey(account))
}
