package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultAirtableURL = "https://api.airtable.com"

	// Field names as they appear in the base.
	FieldSubjectTextID      = "Unique generated ID"
	FieldSubjectDisplayName = "Name"
	FieldRoomSID            = "LiveKitRoomSID"
	FieldRequestedName      = "RequestedRoomName"
	FieldSubjectLink        = "CandidateLink"
	FieldSubjectText        = "CandidateID_Text"
	FieldStartedAt          = "InterviewStartTime"
	FieldTranscript         = "Transcript"

	airtableTimeout      = 10 * time.Second
	maxAirtableBodyBytes = 2 << 20
)

type AirtableConfig struct {
	Token         string
	BaseID        string
	SubjectsTable string
	SessionsTable string
	// BaseURL overrides DefaultAirtableURL.
	BaseURL    string
	HTTPClient *http.Client
}

// AirtableStore reads and writes the session and subject tables over the REST API.
// Airtable has no uniqueness constraint, so two processes reconciling the same SID can
// still both insert.
type AirtableStore struct {
	cfg        AirtableConfig
	baseURL    string
	httpClient *http.Client
}

var _ Store = (*AirtableStore)(nil)

// AirtableError is a non-2xx response from the API.
type AirtableError struct {
	Status  int
	Type    string
	Message string
}

func (e *AirtableError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("airtable status=%d", e.Status)
	}
	return fmt.Sprintf("airtable status=%d type=%s message=%q", e.Status, e.Type, e.Message)
}

func NewAirtableStore(cfg AirtableConfig) (*AirtableStore, error) {
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.BaseID = strings.TrimSpace(cfg.BaseID)
	cfg.SubjectsTable = strings.TrimSpace(cfg.SubjectsTable)
	cfg.SessionsTable = strings.TrimSpace(cfg.SessionsTable)
	if cfg.Token == "" {
		return nil, errors.New("airtable token is required")
	}
	if cfg.BaseID == "" || cfg.SubjectsTable == "" || cfg.SessionsTable == "" {
		return nil, errors.New("airtable base id and table ids are required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultAirtableURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: airtableTimeout}
	}
	return &AirtableStore{cfg: cfg, baseURL: baseURL, httpClient: httpClient}, nil
}

type airtableRecord struct {
	ID     string         `json:"id,omitempty"`
	Fields map[string]any `json:"fields"`
}

type airtableListResponse struct {
	Records []airtableRecord `json:"records"`
}

type airtableCreateRequest struct {
	Records  []airtableRecord `json:"records"`
	Typecast bool             `json:"typecast"`
}

func (s *AirtableStore) FindSessionBySID(ctx context.Context, roomSID string) (SessionRecord, error) {
	rec, err := s.findOne(ctx, s.cfg.SessionsTable, FieldRoomSID, strings.TrimSpace(roomSID))
	if err != nil {
		return SessionRecord{}, err
	}
	return sessionFromAirtable(rec), nil
}

func (s *AirtableStore) FindSubjectByTextID(ctx context.Context, textID string) (Subject, error) {
	rec, err := s.findOne(ctx, s.cfg.SubjectsTable, FieldSubjectTextID, strings.TrimSpace(textID))
	if err != nil {
		return Subject{}, err
	}
	return Subject{
		ID:          rec.ID,
		TextID:      stringField(rec.Fields, FieldSubjectTextID),
		DisplayName: stringField(rec.Fields, FieldSubjectDisplayName),
	}, nil
}

func (s *AirtableStore) CreateSessionRecord(ctx context.Context, in NewSessionRecord) (SessionRecord, error) {
	in = in.normalized(time.Now().UTC())
	fields := map[string]any{
		FieldRoomSID:       in.RoomSID,
		FieldRequestedName: in.RequestedName,
		FieldSubjectText:   in.SubjectTextID,
		FieldStartedAt:     in.StartedAt.Format(time.RFC3339Nano),
		FieldTranscript:    "",
	}
	if in.SubjectRecordID != "" {
		fields[FieldSubjectLink] = []string{in.SubjectRecordID}
	}
	body := airtableCreateRequest{
		Records:  []airtableRecord{{Fields: fields}},
		Typecast: true,
	}

	var out airtableListResponse
	if err := s.do(ctx, http.MethodPost, s.tableURL(s.cfg.SessionsTable), body, &out); err != nil {
		return SessionRecord{}, fmt.Errorf("create session record: %w", err)
	}
	if len(out.Records) == 0 {
		return SessionRecord{}, errors.New("create session record: no record returned")
	}
	return sessionFromAirtable(out.Records[0]), nil
}

func (s *AirtableStore) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

func (s *AirtableStore) findOne(ctx context.Context, table, field, value string) (airtableRecord, error) {
	if value == "" {
		return airtableRecord{}, ErrNotFound
	}
	query := url.Values{}
	query.Set("filterByFormula", EqualsFormula(field, value))
	query.Set("maxRecords", "1")

	var out airtableListResponse
	if err := s.do(ctx, http.MethodGet, s.tableURL(table)+"?"+query.Encode(), nil, &out); err != nil {
		return airtableRecord{}, fmt.Errorf("query %s: %w", table, err)
	}
	if len(out.Records) == 0 {
		return airtableRecord{}, ErrNotFound
	}
	return out.Records[0], nil
}

func (s *AirtableStore) tableURL(table string) string {
	return s.baseURL + "/v0/" + url.PathEscape(s.cfg.BaseID) + "/" + url.PathEscape(table)
}

func (s *AirtableStore) do(ctx context.Context, method, target string, in, out any) error {
	var reader io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxAirtableBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeAirtableError(resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// The API returns either {"error":{"type","message"}} or {"error":"TYPE"}.
func decodeAirtableError(status int, body []byte) error {
	out := &AirtableError{Status: status}
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return out
	}
	var detailed struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &detailed); err == nil {
		out.Type, out.Message = detailed.Type, detailed.Message
		return out
	}
	_ = json.Unmarshal(envelope.Error, &out.Type)
	return out
}

// EqualsFormula builds `{field} = 'value'` with the value escaped as a formula string
// literal.
func EqualsFormula(field, value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
	return "{" + field + "} = '" + escaped + "'"
}

func sessionFromAirtable(rec airtableRecord) SessionRecord {
	out := SessionRecord{
		ID:            rec.ID,
		RoomSID:       stringField(rec.Fields, FieldRoomSID),
		RequestedName: stringField(rec.Fields, FieldRequestedName),
		SubjectTextID: stringField(rec.Fields, FieldSubjectText),
		Transcript:    stringField(rec.Fields, FieldTranscript),
	}
	if links, ok := rec.Fields[FieldSubjectLink].([]any); ok && len(links) > 0 {
		out.SubjectRecordID, _ = links[0].(string)
	}
	if raw := stringField(rec.Fields, FieldStartedAt); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			out.StartedAt = ts.UTC()
		}
	}
	return out
}

func stringField(fields map[string]any, name string) string {
	v, _ := fields[name].(string)
	return v
}
