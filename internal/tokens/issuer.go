package tokens

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultAgentIdentity = "alex-agent"
	DefaultTTL           = 6 * time.Hour
)

var (
	ErrReservedIdentity = errors.New("identity is reserved for the automated agent")
	ErrInvalidRequest   = errors.New("invalid token request")
)

type Role string

const (
	RoleParticipant Role = "participant"
	RoleAdmin       Role = "admin"
)

func RoleFor(isAdmin bool) Role {
	if isAdmin {
		return RoleAdmin
	}
	return RoleParticipant
}

// Issuer shapes room grants by role on top of a Signer.
type Issuer struct {
	signer        *Signer
	agentIdentity string
	ttl           time.Duration
}

func NewIssuer(signer *Signer, agentIdentity string, ttl time.Duration) *Issuer {
	agentIdentity = strings.TrimSpace(agentIdentity)
	if agentIdentity == "" {
		agentIdentity = DefaultAgentIdentity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{signer: signer, agentIdentity: agentIdentity, ttl: ttl}
}

func (i *Issuer) AgentIdentity() string {
	return i.agentIdentity
}

// Issue mints a join token. The reserved agent identity is only handed to admins.
func (i *Issuer) Issue(room, identity string, role Role) (string, error) {
	room = strings.TrimSpace(room)
	identity = strings.TrimSpace(identity)
	if room == "" || identity == "" {
		return "", fmt.Errorf("%w: room and identity are required", ErrInvalidRequest)
	}
	switch role {
	case RoleParticipant, RoleAdmin:
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, role)
	}
	if identity == i.agentIdentity && role != RoleAdmin {
		return "", ErrReservedIdentity
	}

	grant := joinGrant(room)
	grant.RoomAdmin = role == RoleAdmin
	return i.signer.Sign(identity, grant, "", i.ttl)
}

// IssueAgent mints the token the server hands to the automated participant. It
// carries no admin capability.
func (i *Issuer) IssueAgent(room string) (string, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		return "", fmt.Errorf("%w: room is required", ErrInvalidRequest)
	}
	grant := joinGrant(room)
	grant.Agent = true
	return i.signer.Sign(i.agentIdentity, grant, KindAgent, i.ttl)
}

func joinGrant(room string) VideoGrant {
	return VideoGrant{
		Room:           room,
		RoomJoin:       true,
		CanPublish:     boolPtr(true),
		CanSubscribe:   boolPtr(true),
		CanPublishData: boolPtr(true),
	}
}
