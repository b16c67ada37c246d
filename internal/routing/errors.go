package routing

import "errors"

// Ownership failures are ordinary outcomes; the command layer turns them into replies.
var (
	ErrAlreadyOwner            = errors.New("you already own this session")
	ErrOwnerStillPresent       = errors.New("the session owner is still in the channel")
	ErrTargetNotInChannel      = errors.New("that user isn't in the voice channel")
	ErrTargetAlreadyOwner      = errors.New("that user already owns this session")
	ErrNotAuthorizedToTransfer = errors.New("only the session owner can transfer ownership")
	ErrNotOwner                = errors.New("only the session owner can do that")
)

// ErrEmptyPool is returned when a pool is built without identities. Callers treat it as fatal.
var ErrEmptyPool = errors.New("bot pool has no identities")
