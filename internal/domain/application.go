package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Status 是投递记录的生命周期状态。
type Status string

const (
	StatusPendingBot Status = "pending_bot"
	StatusApplied    Status = "applied"
	StatusNeedsInput Status = "needs_input"
	StatusFailed     Status = "failed"
)

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	switch s {
	case StatusPendingBot, StatusApplied, StatusNeedsInput, StatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
}

// Platform 是投递所在的招聘平台。
type Platform string

const (
	PlatformLinkedIn  Platform = "LinkedIn"
	PlatformIndeed    Platform = "Indeed"
	PlatformGlassdoor Platform = "Glassdoor"
	PlatformGupy      Platform = "Gupy"
)

// Platforms is the closed set of supported job platforms.
var Platforms = []Platform{PlatformLinkedIn, PlatformIndeed, PlatformGlassdoor, PlatformGupy}

// ParsePlatform validates a raw platform string.
func ParsePlatform(raw string) (Platform, error) {
	for _, p := range Platforms {
		if string(p) == raw {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, raw)
}

// StatusDetail carries the data that only exists for one status.
// Implementations: PendingBot, Applied, NeedsInput, Failed.
type StatusDetail interface {
	Status() Status
	isStatusDetail()
}

// PendingBot means the robot has queued or is processing the application.
type PendingBot struct{}

// Applied is terminal success. Notes is set when a human answered a question.
type Applied struct {
	Notes string
}

// NeedsInput blocks the application until the user answers Question.
type NeedsInput struct {
	Question string
}

// Failed is terminal failure with the reason the robot recorded.
type Failed struct {
	Reason string
}

func (PendingBot) Status() Status { return StatusPendingBot }
func (Applied) Status() Status    { return StatusApplied }
func (NeedsInput) Status() Status { return StatusNeedsInput }
func (Failed) Status() Status     { return StatusFailed }

func (PendingBot) isStatusDetail() {}
func (Applied) isStatusDetail()    {}
func (NeedsInput) isStatusDetail() {}
func (Failed) isStatusDetail()     {}

// DetailFromFields rebuilds a StatusDetail from its flat storage form and
// rejects combinations the union cannot represent.
func DetailFromFields(status Status, notes, question *string) (StatusDetail, error) {
	hasQuestion := question != nil && strings.TrimSpace(*question) != ""
	switch status {
	case StatusPendingBot:
		if hasQuestion || (notes != nil && *notes != "") {
			return nil, fmt.Errorf("%w: pending_bot carries notes or question", ErrInvalidDetail)
		}
		return PendingBot{}, nil
	case StatusApplied:
		if hasQuestion {
			return nil, fmt.Errorf("%w: applied carries a question", ErrInvalidDetail)
		}
		return Applied{Notes: deref(notes)}, nil
	case StatusNeedsInput:
		if !hasQuestion {
			return nil, fmt.Errorf("%w: needs_input without a question", ErrInvalidDetail)
		}
		return NeedsInput{Question: *question}, nil
	case StatusFailed:
		if hasQuestion {
			return nil, fmt.Errorf("%w: failed carries a question", ErrInvalidDetail)
		}
		return Failed{Reason: deref(notes)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
}

// Fields flattens a StatusDetail into status, notes and question columns.
func Fields(detail StatusDetail) (status Status, notes, question *string) {
	switch d := detail.(type) {
	case NeedsInput:
		q := d.Question
		return StatusNeedsInput, nil, &q
	case Failed:
		return StatusFailed, optional(d.Reason), nil
	case Applied:
		return StatusApplied, optional(d.Notes), nil
	default:
		return StatusPendingBot, nil, nil
	}
}

// JobApplication 表示机器人生成的一条投递记录。
type JobApplication struct {
	ID        string
	Company   string
	Role      string
	Platform  Platform
	Date      time.Time
	CreatedAt *time.Time
	Detail    StatusDetail
}

// Status returns the status the detail is keyed by.
func (a JobApplication) Status() Status {
	if a.Detail == nil {
		return StatusPendingBot
	}
	return a.Detail.Status()
}

// Notes returns the audit note, if any.
func (a JobApplication) Notes() string {
	_, notes, _ := Fields(a.Detail)
	return deref(notes)
}

// QuestionToAnswer returns the pending question; empty unless needs_input.
func (a JobApplication) QuestionToAnswer() string {
	if d, ok := a.Detail.(NeedsInput); ok {
		return d.Question
	}
	return ""
}

const (
	manualAnswerPrefix = "Respondido manualmente: "
	manualAnswerMax    = 30
)

// Resolution is the detail a needs_input application takes once a human
// answers. The store applies it only to rows still awaiting input.
func Resolution(answer string) Applied {
	return Applied{Notes: ManualAnswerNote(answer)}
}

// ManualAnswerNote builds the audit note written when a human answers.
// The answer is kept verbatim, cut to 30 characters and ellipsized when cut.
func ManualAnswerNote(answer string) string {
	if utf8.RuneCountInString(answer) > manualAnswerMax {
		runes := []rune(answer)
		answer = string(runes[:manualAnswerMax]) + "..."
	}
	return manualAnswerPrefix + `"` + answer + `"`
}

type applicationJSON struct {
	ID               string     `json:"id"`
	Company          string     `json:"company"`
	Role             string     `json:"role"`
	Platform         Platform   `json:"platform"`
	Date             time.Time  `json:"date"`
	Status           Status     `json:"status"`
	Notes            *string    `json:"notes,omitempty"`
	QuestionToAnswer *string    `json:"questionToAnswer,omitempty"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
}

// MarshalJSON keeps the wire shape flat for the dashboard.
func (a JobApplication) MarshalJSON() ([]byte, error) {
	status, notes, question := Fields(a.Detail)
	return json.Marshal(applicationJSON{
		ID:               a.ID,
		Company:          a.Company,
		Role:             a.Role,
		Platform:         a.Platform,
		Date:             a.Date.UTC(),
		Status:           status,
		Notes:            notes,
		QuestionToAnswer: question,
		CreatedAt:        a.CreatedAt,
	})
}

// UnmarshalJSON validates the flat form back into a tagged detail.
func (a *JobApplication) UnmarshalJSON(data []byte) error {
	var raw applicationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	detail, err := DetailFromFields(raw.Status, raw.Notes, raw.QuestionToAnswer)
	if err != nil {
		return err
	}
	*a = JobApplication{
		ID:        raw.ID,
		Company:   raw.Company,
		Role:      raw.Role,
		Platform:  raw.Platform,
		Date:      raw.Date,
		CreatedAt: raw.CreatedAt,
		Detail:    detail,
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
