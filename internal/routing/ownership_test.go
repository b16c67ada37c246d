package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	guild, channel, owner string
}

func (s *fakeSession) GuildID() string        { return s.guild }
func (s *fakeSession) ChannelID() string      { return s.channel }
func (s *fakeSession) Owner() string          { return s.owner }
func (s *fakeSession) SetOwner(userID string) { s.owner = userID }

type fakeMembers struct {
	present map[string]bool // userID -> in the session channel
	err     error
}

func (f *fakeMembers) IsUserInChannel(_ context.Context, _, _, userID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.present[userID], nil
}

type fakePrivileges struct {
	privileged map[string]bool
}

func (f *fakePrivileges) IsPrivileged(_ context.Context, _, userID string) (bool, error) {
	return f.privileged[userID], nil
}

func newTestTracker(present, privileged []string) *Tracker {
	m := &fakeMembers{present: map[string]bool{}}
	for _, u := range present {
		m.present[u] = true
	}
	p := &fakePrivileges{privileged: map[string]bool{}}
	for _, u := range privileged {
		p.privileged[u] = true
	}
	return NewTracker(m, p)
}

func TestClaim(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		owner      string
		requester  string
		present    []string
		privileged []string
		wantErr    error
		wantOwner  string
	}{
		{name: "unowned session", owner: "", requester: "u2", wantOwner: "u2"},
		{name: "existing owner", owner: "u1", requester: "u1", present: []string{"u1"}, wantErr: ErrAlreadyOwner, wantOwner: "u1"},
		{name: "owner still present", owner: "u1", requester: "u2", present: []string{"u1", "u2"}, wantErr: ErrOwnerStillPresent, wantOwner: "u1"},
		{name: "privileged override", owner: "u1", requester: "dev", present: []string{"u1"}, privileged: []string{"dev"}, wantOwner: "dev"},
		{name: "owner left", owner: "u1", requester: "u2", present: []string{"u2"}, wantOwner: "u2"},
		{name: "owner left, requester absent too", owner: "u1", requester: "u3", wantOwner: "u3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSession{guild: "g", channel: "c", owner: tt.owner}
			err := newTestTracker(tt.present, tt.privileged).Claim(ctx, s, tt.requester)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantOwner, s.Owner())
		})
	}
}

func TestClaim_MembershipError(t *testing.T) {
	boom := errors.New("state miss")
	tr := NewTracker(&fakeMembers{err: boom}, &fakePrivileges{})
	s := &fakeSession{guild: "g", channel: "c", owner: "u1"}

	err := tr.Claim(context.Background(), s, "u2")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "u1", s.Owner())
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		owner      string
		requester  string
		target     string
		present    []string
		privileged []string
		wantErr    error
		wantOwner  string
	}{
		{name: "owner hands over", owner: "u1", requester: "u1", target: "u2", present: []string{"u1", "u2"}, wantOwner: "u2"},
		{name: "privileged hands over", owner: "u1", requester: "dev", target: "u2", present: []string{"u2"}, privileged: []string{"dev"}, wantOwner: "u2"},
		{name: "stranger refused", owner: "u1", requester: "u3", target: "u2", present: []string{"u2", "u3"}, wantErr: ErrNotAuthorizedToTransfer, wantOwner: "u1"},
		{name: "target absent", owner: "u1", requester: "u1", target: "u2", present: []string{"u1"}, wantErr: ErrTargetNotInChannel, wantOwner: "u1"},
		{name: "target absent even for privileged", owner: "u1", requester: "dev", target: "u2", privileged: []string{"dev"}, wantErr: ErrTargetNotInChannel, wantOwner: "u1"},
		{name: "target already owner", owner: "u1", requester: "dev", target: "u1", present: []string{"u1"}, privileged: []string{"dev"}, wantErr: ErrTargetAlreadyOwner, wantOwner: "u1"},
		{name: "unowned session, privileged", owner: "", requester: "dev", target: "u2", present: []string{"u2"}, privileged: []string{"dev"}, wantOwner: "u2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSession{guild: "g", channel: "c", owner: tt.owner}
			err := newTestTracker(tt.present, tt.privileged).Transfer(ctx, s, tt.requester, tt.target)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantOwner, s.Owner())
		})
	}
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(nil, []string{"dev"})

	assert.NoError(t, tr.Authorize(ctx, &fakeSession{owner: ""}, "anyone"))
	assert.NoError(t, tr.Authorize(ctx, &fakeSession{owner: "u1"}, "u1"))
	assert.NoError(t, tr.Authorize(ctx, &fakeSession{owner: "u1"}, "dev"))
	assert.ErrorIs(t, tr.Authorize(ctx, &fakeSession{owner: "u1"}, "u2"), ErrNotOwner)
}

func TestOwner_ReadOnly(t *testing.T) {
	tr := newTestTracker(nil, nil)
	s := &fakeSession{owner: "u1"}
	assert.Equal(t, "u1", tr.Owner(s))
	assert.Equal(t, "u1", s.owner)
}
