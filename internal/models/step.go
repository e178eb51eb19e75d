package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// StepKind names one navigation action.
type StepKind string

const (
	StepNavigate         StepKind = "navigate"
	StepFill             StepKind = "fill"
	StepClick            StepKind = "click"
	StepWaitForSelector  StepKind = "waitForSelector"
	StepWaitForResponse  StepKind = "waitForResponse"
	StepExtractAttribute StepKind = "extractAttribute"
	StepPrompt           StepKind = "prompt"
)

// StepAction is implemented by exactly one struct per StepKind. Each case
// carries only the fields it needs.
type StepAction interface {
	Kind() StepKind
	validate() error
}

// NavigationStep is one entry of a navigation flow.
type NavigationStep struct {
	Action  StepAction
	Comment string
}

// Kind reports the action kind, or "" for an empty step.
func (s NavigationStep) Kind() StepKind {
	if s.Action == nil {
		return ""
	}
	return s.Action.Kind()
}

// Validate checks that exactly one action is set and that it is well formed.
func (s NavigationStep) Validate() error {
	if s.Action == nil {
		return errors.New("step has no action")
	}
	if err := s.Action.validate(); err != nil {
		return fmt.Errorf("%s: %w", s.Action.Kind(), err)
	}
	return nil
}

// String is used in logs and errors.
func (s NavigationStep) String() string {
	if s.Comment != "" {
		return fmt.Sprintf("%s (%s)", s.Kind(), s.Comment)
	}
	return string(s.Kind())
}

// Navigate loads a URL. The URL may contain QueryPlaceholder.
type Navigate struct {
	URL string `json:"url"`
}

// ValueSource is either a literal or the product query of the scan.
type ValueSource struct {
	Literal   string
	FromQuery bool
}

// Resolve returns the text to type.
func (v ValueSource) Resolve(query string) string {
	if v.FromQuery {
		return query
	}
	return v.Literal
}

// Fill types a value into an input, optionally clearing it first.
type Fill struct {
	Selector   string
	Value      ValueSource
	ClearFirst bool
}

// Click clicks the first element matching Selector.
type Click struct {
	Selector string `json:"selector"`
}

// WaitForSelector waits until Selector matches. Zero Timeout means the
// session default.
type WaitForSelector struct {
	Selector string
	Timeout  time.Duration
}

// WaitForResponse waits for a network response whose URL matches Pattern.
type WaitForResponse struct {
	Pattern *regexp.Regexp
	Timeout time.Duration
}

// ExtractAttribute reads one attribute and stores it under CaptureAs.
type ExtractAttribute struct {
	Selector  string `json:"selector"`
	Attribute string `json:"attribute"`
	CaptureAs string `json:"captureAs"`
}

// RunPrompt is a free-form automation hint for a human or an agent. It has
// no browser effect.
type RunPrompt struct {
	Text string `json:"text"`
}

func (Navigate) Kind() StepKind         { return StepNavigate }
func (Fill) Kind() StepKind             { return StepFill }
func (Click) Kind() StepKind            { return StepClick }
func (WaitForSelector) Kind() StepKind  { return StepWaitForSelector }
func (WaitForResponse) Kind() StepKind  { return StepWaitForResponse }
func (ExtractAttribute) Kind() StepKind { return StepExtractAttribute }
func (RunPrompt) Kind() StepKind        { return StepPrompt }

func (a Navigate) validate() error {
	if strings.TrimSpace(a.URL) == "" {
		return errors.New("url is required")
	}
	return nil
}

func (a Fill) validate() error {
	if a.Selector == "" {
		return errors.New("selector is required")
	}
	if a.Value.FromQuery && a.Value.Literal != "" {
		return errors.New("value and fromQuery are mutually exclusive")
	}
	return nil
}

func (a Click) validate() error {
	if a.Selector == "" {
		return errors.New("selector is required")
	}
	return nil
}

func (a WaitForSelector) validate() error {
	if a.Selector == "" {
		return errors.New("selector is required")
	}
	if a.Timeout < 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

func (a WaitForResponse) validate() error {
	if a.Pattern == nil {
		return errors.New("pattern is required")
	}
	if a.Timeout < 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

func (a ExtractAttribute) validate() error {
	if a.Selector == "" || a.Attribute == "" || a.CaptureAs == "" {
		return errors.New("selector, attribute and captureAs are required")
	}
	return nil
}

func (a RunPrompt) validate() error {
	if strings.TrimSpace(a.Text) == "" {
		return errors.New("text is required")
	}
	return nil
}

// JSON wire shapes for the cases whose Go form differs from their JSON form.
type (
	fillJSON struct {
		Selector   string `json:"selector"`
		Value      string `json:"value,omitempty"`
		FromQuery  bool   `json:"fromQuery,omitempty"`
		ClearFirst bool   `json:"clearFirst,omitempty"`
	}
	waitSelectorJSON struct {
		Selector  string `json:"selector"`
		TimeoutMs *int64 `json:"timeoutMs,omitempty"`
	}
	waitResponseJSON struct {
		Pattern   string `json:"pattern"`
		TimeoutMs *int64 `json:"timeoutMs,omitempty"`
	}
)

// UnmarshalJSON decodes a step object holding exactly one action key plus an
// optional "comment".
func (s *NavigationStep) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if c, ok := raw["comment"]; ok {
		if err := json.Unmarshal(c, &s.Comment); err != nil {
			return fmt.Errorf("comment: %w", err)
		}
		delete(raw, "comment")
	}
	if len(raw) != 1 {
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Errorf("step must set exactly one action, got %v", keys)
	}

	for key, body := range raw {
		action, err := decodeAction(StepKind(key), body)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		s.Action = action
	}
	return nil
}

// MarshalJSON is the inverse of UnmarshalJSON.
func (s NavigationStep) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if s.Comment != "" {
		out["comment"] = s.Comment
	}
	switch a := s.Action.(type) {
	case Fill:
		out[string(StepFill)] = fillJSON{Selector: a.Selector, Value: a.Value.Literal, FromQuery: a.Value.FromQuery, ClearFirst: a.ClearFirst}
	case WaitForSelector:
		out[string(StepWaitForSelector)] = waitSelectorJSON{Selector: a.Selector, TimeoutMs: millis(a.Timeout)}
	case WaitForResponse:
		pattern := ""
		if a.Pattern != nil {
			pattern = a.Pattern.String()
		}
		out[string(StepWaitForResponse)] = waitResponseJSON{Pattern: pattern, TimeoutMs: millis(a.Timeout)}
	case nil:
		return nil, errors.New("step has no action")
	default:
		out[string(a.Kind())] = a
	}
	return json.Marshal(out)
}

func decodeAction(kind StepKind, body []byte) (StepAction, error) {
	switch kind {
	case StepNavigate:
		return decodeStrict[Navigate](body)
	case StepFill:
		var j fillJSON
		if err := strictUnmarshal(body, &j); err != nil {
			return nil, err
		}
		return Fill{Selector: j.Selector, Value: ValueSource{Literal: j.Value, FromQuery: j.FromQuery}, ClearFirst: j.ClearFirst}, nil
	case StepClick:
		return decodeStrict[Click](body)
	case StepWaitForSelector:
		var j waitSelectorJSON
		if err := strictUnmarshal(body, &j); err != nil {
			return nil, err
		}
		timeout, err := positiveMillis(j.TimeoutMs)
		if err != nil {
			return nil, err
		}
		return WaitForSelector{Selector: j.Selector, Timeout: timeout}, nil
	case StepWaitForResponse:
		var j waitResponseJSON
		if err := strictUnmarshal(body, &j); err != nil {
			return nil, err
		}
		timeout, err := positiveMillis(j.TimeoutMs)
		if err != nil {
			return nil, err
		}
		if j.Pattern == "" {
			return nil, errors.New("pattern is required")
		}
		re, err := regexp.Compile(j.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern: %w", err)
		}
		return WaitForResponse{Pattern: re, Timeout: timeout}, nil
	case StepExtractAttribute:
		return decodeStrict[ExtractAttribute](body)
	case StepPrompt:
		return decodeStrict[RunPrompt](body)
	}
	return nil, fmt.Errorf("unknown step kind %q", kind)
}

func decodeStrict[T StepAction](body []byte) (StepAction, error) {
	var a T
	if err := strictUnmarshal(body, &a); err != nil {
		return nil, err
	}
	return a, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func positiveMillis(ms *int64) (time.Duration, error) {
	if ms == nil {
		return 0, nil
	}
	if *ms <= 0 {
		return 0, fmt.Errorf("timeoutMs must be positive, got %d", *ms)
	}
	return time.Duration(*ms) * time.Millisecond, nil
}

func millis(d time.Duration) *int64 {
	if d <= 0 {
		return nil
	}
	ms := d.Milliseconds()
	return &ms
}
