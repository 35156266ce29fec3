package models

import (
	"time"
)

// JobStatus is the registry-level state of an AI job.
type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobError      JobStatus = "error"
)

// Terminal reports whether no further transitions follow s.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobError
}

// AuditStatus is the finer-grained status persisted on audit records.
// It is kept separate from JobStatus; clients read both.
type AuditStatus string

const (
	AuditPending    AuditStatus = "pending"
	AuditProcessing AuditStatus = "processing"
	AuditCompleted  AuditStatus = "completed"
	AuditFailed     AuditStatus = "failed"
	AuditError      AuditStatus = "error"
)

// AIRequest is the payload accepted by the submit endpoint.
type AIRequest struct {
	Prompt  string `json:"prompt"`
	Context string `json:"context"`
	Model   string `json:"model,omitempty"`
}

// AIResult is the normalized outcome of one AI tool invocation.
type AIResult struct {
	Success            bool           `json:"success"`
	Output             string         `json:"output,omitempty"`
	Raw                map[string]any `json:"raw,omitempty"`
	Error              string         `json:"error,omitempty"`
	ErrorKind          string         `json:"error_kind,omitempty"`
	PromptForClipboard string         `json:"prompt_for_clipboard,omitempty"`
}

// Job is a registry entry polled by clients.
type Job struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	Timestamp float64   `json:"timestamp"`
	Result    *AIResult `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// UnixSeconds renders t the way job timestamps are exposed.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// AuditRecord is one row of the AI prompt history.
type AuditRecord struct {
	ID            int64       `json:"id"`
	Timestamp     time.Time   `json:"timestamp"`
	Prompt        string      `json:"prompt"`
	Context       string      `json:"context"`
	Response      *string     `json:"response"`
	GitHashBefore string      `json:"git_hash_before"`
	GitHashAfter  *string     `json:"git_hash_after"`
	JobID         *string     `json:"job_id"`
	JobStatus     AuditStatus `json:"job_status"`
}

// Message is a contact-form submission.
type Message struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// FileInfo describes one uploaded file.
type FileInfo struct {
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	Modified float64 `json:"modified"`
}
