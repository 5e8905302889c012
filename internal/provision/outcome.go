package provision

import "github.com/Aaditya4007/AI-interviewer/internal/recording"

type Step string

const (
	StepRoom      Step = "room"
	StepSubject   Step = "subject"
	StepRecord    Step = "record"
	StepRecording Step = "recording"
)

type RecordState string

const (
	RecordCreated  RecordState = "created"
	RecordExisting RecordState = "existing"
	RecordFailed   RecordState = "failed"
	RecordSkipped  RecordState = "skipped"
)

// Session is the identity handed back to callers.
type Session struct {
	Name string `json:"name"`
	SID  string `json:"sid"`
}

type RecordStatus struct {
	State         RecordState `json:"state"`
	RecordID      string      `json:"record_id,omitempty"`
	SubjectID     string      `json:"subject_id,omitempty"`
	SubjectLinked bool        `json:"subject_linked"`
	Reason        string      `json:"reason,omitempty"`
}

// Warning describes an absorbed failure from a best-effort step.
type Warning struct {
	Step     Step   `json:"step"`
	RoomName string `json:"room_name"`
	RoomSID  string `json:"room_sid"`
	Message  string `json:"message"`
}

// Outcome aggregates one provisioning call. Session is always populated when
// ProvisionSession returns a nil error; the other fields never turn into errors.
type Outcome struct {
	Session   Session          `json:"session"`
	Record    RecordStatus     `json:"record"`
	Recording recording.Result `json:"recording"`
	Warnings  []Warning        `json:"warnings,omitempty"`
}

func (o *Outcome) warn(step Step, message string) {
	o.Warnings = append(o.Warnings, Warning{
		Step:     step,
		RoomName: o.Session.Name,
		RoomSID:  o.Session.SID,
		Message:  message,
	})
}
