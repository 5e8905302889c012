package joinflow

import "strings"

// DisconnectReason is the media server's reason code for ending a participant's session.
type DisconnectReason string

const (
	ReasonUnknown            DisconnectReason = "UNKNOWN_REASON"
	ReasonClientInitiated    DisconnectReason = "CLIENT_INITIATED"
	ReasonDuplicateIdentity  DisconnectReason = "DUPLICATE_IDENTITY"
	ReasonServerShutdown     DisconnectReason = "SERVER_SHUTDOWN"
	ReasonParticipantRemoved DisconnectReason = "PARTICIPANT_REMOVED"
	ReasonRoomDeleted        DisconnectReason = "ROOM_DELETED"
	ReasonStateMismatch      DisconnectReason = "STATE_MISMATCH"
	ReasonJoinFailure        DisconnectReason = "JOIN_FAILURE"
)

var knownReasons = map[DisconnectReason]struct{}{
	ReasonUnknown:            {},
	ReasonClientInitiated:    {},
	ReasonDuplicateIdentity:  {},
	ReasonServerShutdown:     {},
	ReasonParticipantRemoved: {},
	ReasonRoomDeleted:        {},
	ReasonStateMismatch:      {},
	ReasonJoinFailure:        {},
}

// ParseDisconnectReason accepts the reason code in any case; unrecognized codes map to
// ReasonUnknown.
func ParseDisconnectReason(raw string) DisconnectReason {
	reason := DisconnectReason(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := knownReasons[reason]; ok {
		return reason
	}
	return ReasonUnknown
}

// Message is the text shown to the participant after a disconnect.
func (r DisconnectReason) Message() string {
	switch r {
	case ReasonRoomDeleted:
		return "The room has been closed."
	case ReasonParticipantRemoved:
		return "You were removed from the room."
	case ReasonStateMismatch:
		return "Connection error (state mismatch)."
	case ReasonJoinFailure:
		return "Failed to join the room. The room may not exist or the token might be invalid."
	case ReasonDuplicateIdentity:
		return "Another participant with the same identity is already in the room."
	default:
		return "You have been disconnected."
	}
}

// CanRejoin reports whether reconnecting with the same identity makes sense. A duplicate
// identity would just kick the other session out again.
func (r DisconnectReason) CanRejoin() bool {
	return r != ReasonDuplicateIdentity
}
