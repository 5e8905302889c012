package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Aaditya4007/AI-interviewer/internal/media"
	"github.com/Aaditya4007/AI-interviewer/internal/naming"
)

const (
	DefaultBucket   = "recording-xpo"
	DefaultLayout   = "speaker-dark"
	DefaultPreset   = "H264_720P_30FPS_3_LAYERS"
	DefaultFileType = "MP4"
	DefaultTimeout  = 15 * time.Second
)

var (
	knownLayouts = map[string]struct{}{
		"grid": {}, "grid-dark": {}, "grid-light": {},
		"speaker": {}, "speaker-dark": {}, "speaker-light": {},
		"single-speaker": {}, "single-speaker-dark": {}, "single-speaker-light": {},
	}
	knownPresets = map[string]struct{}{
		"H264_720P_30": {}, "H264_720P_60": {}, "H264_1080P_30": {}, "H264_1080P_60": {},
		"PORTRAIT_H264_720P_30": {}, "PORTRAIT_H264_720P_60": {},
		"PORTRAIT_H264_1080P_30": {}, "PORTRAIT_H264_1080P_60": {},
		"H264_720P_30FPS_3_LAYERS": {}, "H264_1080P_30FPS_3_LAYERS": {},
		"H264_540P_25FPS_2_LAYERS": {}, "H264_360P_30FPS_3_LAYERS": {},
	}
	fileExtensions = map[string]string{
		"MP4": "mp4",
		"OGG": "ogg",
	}
)

type Status string

const (
	StatusStarted Status = "started"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

type Result struct {
	Status   Status `json:"status"`
	EgressID string `json:"egress_id,omitempty"`
	Filepath string `json:"filepath,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type Config struct {
	CredentialsJSON string
	Bucket          string
	Layout          string
	Preset          string
	FileType        string
	Timeout         time.Duration
}

func (c Config) withDefaults() Config {
	c.CredentialsJSON = strings.TrimSpace(c.CredentialsJSON)
	if strings.TrimSpace(c.Bucket) == "" {
		c.Bucket = DefaultBucket
	}
	if strings.TrimSpace(c.Layout) == "" {
		c.Layout = DefaultLayout
	}
	if strings.TrimSpace(c.Preset) == "" {
		c.Preset = DefaultPreset
	}
	c.FileType = strings.ToUpper(strings.TrimSpace(c.FileType))
	if c.FileType == "" {
		c.FileType = DefaultFileType
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Starter is the part of media.Provider the recorder needs.
type Starter interface {
	StartCompositeRecording(ctx context.Context, req media.CompositeRecordingRequest) (media.RecordingInfo, error)
}

// Recorder starts room-composite recordings. Whether it is enabled is decided once in
// New; Start never fails its caller.
type Recorder struct {
	cfg      Config
	starter  Starter
	logger   *log.Logger
	disabled string
}

func New(cfg Config, starter Starter, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	r := &Recorder{cfg: cfg.withDefaults(), starter: starter, logger: logger}
	if err := r.resolve(); err != nil {
		r.disabled = err.Error()
		logger.Printf("recording disabled reason=%q", r.disabled)
		return r
	}
	logger.Printf("recording enabled bucket=%s layout=%s preset=%s file_type=%s timeout=%s",
		r.cfg.Bucket, r.cfg.Layout, r.cfg.Preset, r.cfg.FileType, r.cfg.Timeout)
	return r
}

func (r *Recorder) resolve() error {
	if r.starter == nil {
		return errors.New("no media provider")
	}
	if r.cfg.CredentialsJSON == "" {
		return errors.New("storage credentials not configured")
	}
	if !gjson.Valid(r.cfg.CredentialsJSON) || !gjson.Parse(r.cfg.CredentialsJSON).IsObject() {
		return errors.New("storage credentials are not a JSON object")
	}
	if !gjson.Get(r.cfg.CredentialsJSON, "project_id").Exists() {
		r.logger.Printf("recording credentials have no project_id; continuing")
	}
	if _, ok := knownLayouts[r.cfg.Layout]; !ok {
		return fmt.Errorf("unknown layout %q", r.cfg.Layout)
	}
	if _, ok := knownPresets[r.cfg.Preset]; !ok {
		return fmt.Errorf("unknown encoding preset %q", r.cfg.Preset)
	}
	if _, ok := fileExtensions[r.cfg.FileType]; !ok {
		return fmt.Errorf("unknown file type %q", r.cfg.FileType)
	}
	return nil
}

func (r *Recorder) Enabled() bool {
	return r != nil && r.disabled == ""
}

// DisabledReason is empty when the recorder is enabled.
func (r *Recorder) DisabledReason() string {
	if r == nil {
		return "recorder not configured"
	}
	return r.disabled
}

// Start asks the media server to record roomName. The call is bounded by the configured
// timeout regardless of ctx.
func (r *Recorder) Start(ctx context.Context, roomName, roomSID string) Result {
	if !r.Enabled() {
		return Result{Status: StatusSkipped, Reason: r.DisabledReason()}
	}

	path := naming.RecordingPath(roomName, roomSID, fileExtensions[r.cfg.FileType])
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	info, err := r.starter.StartCompositeRecording(callCtx, media.CompositeRecordingRequest{
		RoomName: roomName,
		Layout:   r.cfg.Layout,
		Preset:   r.cfg.Preset,
		FileType: r.cfg.FileType,
		Filepath: path,
		Upload: media.GCPUpload{
			Credentials: r.cfg.CredentialsJSON,
			Bucket:      r.cfg.Bucket,
		},
	})
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("timed out after %s", r.cfg.Timeout)
		}
		r.logger.Printf("recording start failed room=%q sid=%s err=%v", roomName, roomSID, err)
		return Result{Status: StatusFailed, Filepath: path, Reason: reason}
	}
	r.logger.Printf("recording started room=%q sid=%s egress_id=%s path=%s", roomName, roomSID, info.EgressID, path)
	return Result{Status: StatusStarted, EgressID: info.EgressID, Filepath: path}
}
