package journeys

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	types "github.com/yungbote/journeys-backend/internal/domain"
)

type ValidationType string

const (
	ValidationCheckbox        ValidationType = "checkbox"
	ValidationMultiCheckbox   ValidationType = "multi_checkbox"
	ValidationTextAcknowledge ValidationType = "text_acknowledge"
	ValidationLinkVisit       ValidationType = "link_visit"
	ValidationFileUpload      ValidationType = "file_upload"
)

// ValidationTypes lists every supported variant.
var ValidationTypes = []ValidationType{
	ValidationCheckbox,
	ValidationMultiCheckbox,
	ValidationTextAcknowledge,
	ValidationLinkVisit,
	ValidationFileUpload,
}

const (
	ReasonNotConfirmed = "not_confirmed"
	ReasonNotVisited   = "not_visited"
	ReasonTooShort     = "too_short"
	ReasonMissingItems = "missing_items"
	ReasonInvalidType  = "invalid_type"
	ReasonTooLarge     = "too_large"
	ReasonNoAttachment = "no_attachment"
)

var (
	ErrUnknownValidationType = errors.New("unknown validation type")
	ErrInvalidRuleConfig     = errors.New("invalid validation config")
)

// Rejection explains why submitted data did not satisfy a task. Field names
// the payload key the caller should re-prompt for.
type Rejection struct {
	Reason  string `json:"reason"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (r *Rejection) Error() string {
	if r == nil {
		return ""
	}
	if r.Message != "" {
		return r.Message
	}
	return r.Reason
}

// Rule is one variant of the validation union. The unexported method keeps
// the set closed to this package.
type Rule interface {
	Type() ValidationType
	check(data map[string]any) *Rejection
}

type CheckboxRule struct{}

type LinkVisitRule struct {
	URL string `json:"url,omitempty"`
}

type TextAcknowledgeRule struct {
	MinTextLength int `json:"min_text_length"`
}

type MultiCheckboxRule struct {
	Items []string `json:"items"`
}

type FileUploadRule struct {
	AllowedTypes []string `json:"allowed_types,omitempty"`
	MaxSizeMB    float64  `json:"max_size_mb,omitempty"`
}

func (CheckboxRule) Type() ValidationType        { return ValidationCheckbox }
func (LinkVisitRule) Type() ValidationType       { return ValidationLinkVisit }
func (TextAcknowledgeRule) Type() ValidationType { return ValidationTextAcknowledge }
func (MultiCheckboxRule) Type() ValidationType   { return ValidationMultiCheckbox }
func (FileUploadRule) Type() ValidationType      { return ValidationFileUpload }

// ParseRule decodes a task's validation config into its variant.
func ParseRule(vt ValidationType, config []byte) (Rule, error) {
	raw := config
	if len(strings.TrimSpace(string(raw))) == 0 || strings.TrimSpace(string(raw)) == "null" {
		raw = []byte("{}")
	}
	switch vt {
	case ValidationCheckbox:
		return CheckboxRule{}, nil
	case ValidationLinkVisit:
		var r LinkVisitRule
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRuleConfig, vt, err)
		}
		return r, nil
	case ValidationTextAcknowledge:
		var r TextAcknowledgeRule
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRuleConfig, vt, err)
		}
		if r.MinTextLength <= 0 {
			r.MinTextLength = 1
		}
		return r, nil
	case ValidationMultiCheckbox:
		var r MultiCheckboxRule
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRuleConfig, vt, err)
		}
		return r, nil
	case ValidationFileUpload:
		var r FileUploadRule
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRuleConfig, vt, err)
		}
		if r.MaxSizeMB < 0 {
			return nil, fmt.Errorf("%w: %s: max_size_mb must be >= 0", ErrInvalidRuleConfig, vt)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownValidationType, vt)
	}
}

// RuleForTask parses the rule stored on a task.
func RuleForTask(t *types.Task) (Rule, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil task", ErrInvalidRuleConfig)
	}
	return ParseRule(ValidationType(strings.TrimSpace(t.ValidationType)), t.ValidationConfig)
}

// Validate checks submitted data against a rule. It returns nil, a
// *Rejection, or a configuration error.
func Validate(vt ValidationType, config []byte, data map[string]any) error {
	rule, err := ParseRule(vt, config)
	if err != nil {
		return err
	}
	if rej := rule.check(data); rej != nil {
		return rej
	}
	return nil
}

// Check runs a parsed rule against data.
func Check(rule Rule, data map[string]any) *Rejection {
	if rule == nil {
		return &Rejection{Reason: ReasonInvalidType, Message: "task has no validation rule"}
	}
	return rule.check(data)
}

func (CheckboxRule) check(data map[string]any) *Rejection {
	if v, ok := data["checked"]; ok && !truthy(v) {
		return &Rejection{Reason: ReasonNotConfirmed, Field: "checked", Message: "please confirm this task"}
	}
	return nil
}

func (LinkVisitRule) check(data map[string]any) *Rejection {
	if v, ok := data["visited"]; ok && !truthy(v) {
		return &Rejection{Reason: ReasonNotVisited, Field: "visited", Message: "please open the link first"}
	}
	return nil
}

func (r TextAcknowledgeRule) check(data map[string]any) *Rejection {
	text, _ := data["text"].(string)
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	if n < r.MinTextLength {
		return &Rejection{
			Reason:  ReasonTooShort,
			Field:   "text",
			Message: fmt.Sprintf("text must be at least %d characters (got %d)", r.MinTextLength, n),
		}
	}
	return nil
}

func (r MultiCheckboxRule) check(data map[string]any) *Rejection {
	checked := map[string]bool{}
	if items, ok := data["checked_items"].([]any); ok {
		for _, it := range items {
			checked[fmt.Sprint(it)] = true
		}
	}
	if items, ok := data["checked_items"].([]string); ok {
		for _, it := range items {
			checked[it] = true
		}
	}
	var missing []string
	for _, it := range r.Items {
		if !checked[it] {
			missing = append(missing, it)
		}
	}
	if len(missing) > 0 {
		return &Rejection{
			Reason:  ReasonMissingItems,
			Field:   "checked_items",
			Message: "unchecked items: " + strings.Join(missing, ", "),
		}
	}
	return nil
}

func (r FileUploadRule) check(data map[string]any) *Rejection {
	att, ok := AttachmentFromData(data)
	if !ok {
		return &Rejection{Reason: ReasonNoAttachment, Field: "file", Message: "upload a file before completing this task"}
	}
	return r.CheckFile(att.MimeType, att.SizeBytes)
}

// CheckFile applies the type and size constraints. Uploads use it before the
// blob store is touched; completions use it again on the returned handle.
func (r FileUploadRule) CheckFile(mimeType string, sizeBytes int64) *Rejection {
	if len(r.AllowedTypes) > 0 && !mimeAllowed(mimeType, r.AllowedTypes) {
		return &Rejection{
			Reason:  ReasonInvalidType,
			Field:   "file",
			Message: fmt.Sprintf("file type %q is not allowed (allowed: %s)", mimeType, strings.Join(r.AllowedTypes, ", ")),
		}
	}
	if r.MaxSizeMB > 0 && sizeBytes > r.MaxBytes() {
		return &Rejection{
			Reason:  ReasonTooLarge,
			Field:   "file",
			Message: fmt.Sprintf("file exceeds %g MB", r.MaxSizeMB),
		}
	}
	return nil
}

// MaxBytes is the size limit in bytes, 0 when unlimited.
func (r FileUploadRule) MaxBytes() int64 {
	if r.MaxSizeMB <= 0 {
		return 0
	}
	return int64(math.Floor(r.MaxSizeMB * 1024 * 1024))
}

// AttachmentFromData extracts a well-formed handle from validation_data.file.
func AttachmentFromData(data map[string]any) (types.Attachment, bool) {
	raw, ok := data["file"]
	if !ok || raw == nil {
		return types.Attachment{}, false
	}
	var att types.Attachment
	switch v := raw.(type) {
	case types.Attachment:
		att = v
	case *types.Attachment:
		if v == nil {
			return types.Attachment{}, false
		}
		att = *v
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil || json.Unmarshal(b, &att) != nil {
			return types.Attachment{}, false
		}
	default:
		return types.Attachment{}, false
	}
	if strings.TrimSpace(att.Filename) == "" || strings.TrimSpace(att.MimeType) == "" || att.SizeBytes < 0 {
		return types.Attachment{}, false
	}
	return att, true
}

func mimeAllowed(mimeType string, allowed []string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		switch {
		case a == "*/*" || a == mt:
			return true
		case strings.HasSuffix(a, "/*") && strings.HasPrefix(mt, strings.TrimSuffix(a, "*")):
			return true
		}
	}
	return false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s != "" && s != "false" && s != "0" && s != "no"
	case float64:
		return t != 0
	case int:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	default:
		return true
	}
}
