package job

import (
	"errors"
	"net/url"
	"strings"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	// StatusUnknown is reported for identifiers the registry has never seen.
	StatusUnknown Status = "unknown"
)

// IsTerminal returns true for statuses that represent a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Snapshot is the client-visible state of a job. URL is non-nil only when
// Status is StatusCompleted.
type Snapshot struct {
	Status Status  `json:"status"`
	URL    *string `json:"url"`
}

// Task is the captured copy of everything the runner needs for one job.
// It is built once by the submitter and never shared mutably afterwards.
type Task struct {
	ID           string
	UserID       int64
	WorkDir      string
	ImagePath    string
	DocumentPath string
	AudioPath    string
	Query        string
	Enhancer     string
	SourceLang   string
	TargetLang   string
	CallbackURL  string
	StagedFiles  []string
}

// Options carries the deployment-level choices a Task is validated against.
type Options struct {
	Enhancers []string
	Languages []string
}

// Validate checks a fully staged Task.
func (t *Task) Validate(opts Options) error {
	if t.ImagePath == "" {
		return errors.New("source_image is required")
	}
	if t.DocumentPath == "" {
		return errors.New("rag_document is required")
	}
	return t.ValidateParams(opts)
}

// ValidateParams checks the request parameters only, so a bad request can be
// refused before any input is written to disk.
func (t *Task) ValidateParams(opts Options) error {
	if strings.TrimSpace(t.Query) == "" {
		return errors.New("rag_query must not be empty")
	}
	if t.Enhancer != "" && !contains(opts.Enhancers, t.Enhancer) {
		return errors.New("enhancer must be one of: " + strings.Join(opts.Enhancers, ", "))
	}
	if !contains(opts.Languages, t.SourceLang) {
		return errors.New("unsupported source_lang: " + t.SourceLang)
	}
	if !contains(opts.Languages, t.TargetLang) {
		return errors.New("unsupported target_lang: " + t.TargetLang)
	}
	if t.CallbackURL != "" {
		u, err := url.Parse(t.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("callback_url must be an absolute http(s) URL")
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
