package routing

import (
	"context"
	"fmt"
)

// OwnedSession is the part of an audio session the ownership rules need.
// An empty Owner means nobody controls the session.
type OwnedSession interface {
	GuildID() string
	ChannelID() string
	Owner() string
	SetOwner(userID string)
}

type Membership interface {
	IsUserInChannel(ctx context.Context, guildID, channelID, userID string) (bool, error)
}

// Privileges reports guild owners and bot developers.
type Privileges interface {
	IsPrivileged(ctx context.Context, guildID, userID string) (bool, error)
}

// Tracker enforces who may take or hand over control of a session.
// Calls for one session are expected to come from the owning identity's event loop.
type Tracker struct {
	members    Membership
	privileges Privileges
}

func NewTracker(members Membership, privileges Privileges) *Tracker {
	return &Tracker{members: members, privileges: privileges}
}

func (t *Tracker) Owner(s OwnedSession) string { return s.Owner() }

// Claim makes user the owner. An owner who is still listening can only be displaced
// by a privileged user.
func (t *Tracker) Claim(ctx context.Context, s OwnedSession, user string) error {
	owner := s.Owner()
	if owner == "" {
		s.SetOwner(user)
		return nil
	}
	if owner == user {
		return ErrAlreadyOwner
	}
	present, err := t.members.IsUserInChannel(ctx, s.GuildID(), s.ChannelID(), owner)
	if err != nil {
		return fmt.Errorf("check owner presence: %w", err)
	}
	if present {
		priv, err := t.privileges.IsPrivileged(ctx, s.GuildID(), user)
		if err != nil {
			return fmt.Errorf("check privileges: %w", err)
		}
		if !priv {
			return ErrOwnerStillPresent
		}
	}
	s.SetOwner(user)
	return nil
}

// Transfer hands ownership from the current owner (or a privileged user) to target,
// who must be listening in the session's channel.
func (t *Tracker) Transfer(ctx context.Context, s OwnedSession, requester, target string) error {
	if s.Owner() != requester {
		priv, err := t.privileges.IsPrivileged(ctx, s.GuildID(), requester)
		if err != nil {
			return fmt.Errorf("check privileges: %w", err)
		}
		if !priv {
			return ErrNotAuthorizedToTransfer
		}
	}
	present, err := t.members.IsUserInChannel(ctx, s.GuildID(), s.ChannelID(), target)
	if err != nil {
		return fmt.Errorf("check target presence: %w", err)
	}
	if !present {
		return ErrTargetNotInChannel
	}
	if s.Owner() == target {
		return ErrTargetAlreadyOwner
	}
	s.SetOwner(target)
	return nil
}

// Authorize guards destructive commands: allowed for the owner, for privileged users,
// and for anyone while the session has no owner.
func (t *Tracker) Authorize(ctx context.Context, s OwnedSession, user string) error {
	owner := s.Owner()
	if owner == "" || owner == user {
		return nil
	}
	priv, err := t.privileges.IsPrivileged(ctx, s.GuildID(), user)
	if err != nil {
		return fmt.Errorf("check privileges: %w", err)
	}
	if !priv {
		return ErrNotOwner
	}
	return nil
}
