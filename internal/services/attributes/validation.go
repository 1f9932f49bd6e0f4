package attributes

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/divingclub/clubattrs/internal/entities"
	"github.com/divingclub/clubattrs/internal/services/codec"
)

// Rule names reported in FieldError.Rule besides the definition's rule keys.
const (
	RuleRequired = "required"
	RuleType     = "type"
	RuleOptions  = "options"
)

// FileDescriptor is the parsed form of a file attribute value.
type FileDescriptor struct {
	Mime string `json:"mime"`
	Size int64  `json:"size"`
	Path string `json:"path"`
}

// Validator checks candidate values against a definition's constraints.
// Plain EAV writes never go through it; callers opt in.
type Validator struct {
	expressions *ExpressionEngine
	patterns    sync.Map // pattern -> *regexp.Regexp
}

// NewValidator creates a validator. expressions may be nil, in which case
// the expression rule is reported as unsupported.
func NewValidator(expressions *ExpressionEngine) *Validator {
	return &Validator{expressions: expressions}
}

// CheckRules verifies that the rule values of a definition are usable:
// numeric limits are numbers, patterns compile and expressions type-check.
func (v *Validator) CheckRules(def *entities.AttributeDefinition) error {
	conflict := func(reason string) error {
		return &entities.DefinitionConflictError{EntityKind: def.EntityKind, AttributeKey: def.AttributeKey, Reason: reason}
	}

	for _, rule := range []string{entities.RuleMinLength, entities.RuleMaxLength, entities.RuleMin, entities.RuleMax, entities.RuleMaxSize} {
		if raw, ok := def.ValidationRules[rule]; ok {
			if _, ok := ruleNumber(raw); !ok {
				return conflict(fmt.Sprintf("rule %s must be a number, got %v", rule, raw))
			}
		}
	}
	if raw, ok := def.ValidationRules[entities.RulePattern]; ok {
		if _, err := v.pattern(fmt.Sprint(raw)); err != nil {
			return conflict(fmt.Sprintf("rule pattern does not compile: %v", err))
		}
	}
	if raw, ok := def.ValidationRules[entities.RuleExpression]; ok {
		if v.expressions == nil {
			return conflict("expression rules are not supported")
		}
		if err := v.expressions.ValidateExpression(fmt.Sprint(raw)); err != nil {
			return conflict(err.Error())
		}
	}
	return nil
}

// Validate returns a *entities.ValidationError listing every violated rule,
// or nil when value is acceptable for def.
func (v *Validator) Validate(def *entities.AttributeDefinition, value entities.Value) error {
	field := def.AttributeKey
	verr := &entities.ValidationError{}

	if value.IsNull() || (value.Kind() == entities.KindString && strings.TrimSpace(value.Text()) == "") {
		if def.Required {
			verr.Add(field, RuleRequired, "a value is required")
			return verr
		}
		return nil
	}

	// the value must survive the codec for the declared type
	decoded, ok := codec.DecodeChecked(def.ValueType, codec.Encode(def.ValueType, value))
	if !ok {
		verr.Add(field, RuleType, fmt.Sprintf("value %q is not a valid %s", value.Text(), def.ValueType))
		return verr
	}

	text := decoded.Text()
	rules := def.ValidationRules

	if n, ok := ruleNumber(rules[entities.RuleMinLength]); ok && float64(utf8.RuneCountInString(text)) < n {
		verr.Add(field, entities.RuleMinLength, fmt.Sprintf("must be at least %s characters", entities.FormatNumber(n)))
	}
	if n, ok := ruleNumber(rules[entities.RuleMaxLength]); ok && float64(utf8.RuneCountInString(text)) > n {
		verr.Add(field, entities.RuleMaxLength, fmt.Sprintf("must be at most %s characters", entities.FormatNumber(n)))
	}

	if raw, ok := rules[entities.RulePattern]; ok {
		re, err := v.pattern(fmt.Sprint(raw))
		switch {
		case err != nil:
			verr.Add(field, entities.RulePattern, "pattern is invalid")
		case !re.MatchString(text):
			verr.Add(field, entities.RulePattern, fmt.Sprintf("must match %s", raw))
		}
	}

	v.checkRange(verr, field, rules, decoded)

	if def.ValueType == entities.ValueTypeSelect && !def.HasOption(text) {
		verr.Add(field, RuleOptions, fmt.Sprintf("must be one of %s", strings.Join(def.Options, ", ")))
	}

	if def.ValueType == entities.ValueTypeFile {
		v.checkFile(verr, field, rules, text)
	}

	if raw, ok := rules[entities.RuleExpression]; ok {
		v.checkExpression(verr, field, fmt.Sprint(raw), decoded)
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

func (v *Validator) checkRange(verr *entities.ValidationError, field string, rules map[string]any, value entities.Value) {
	minRule, hasMin := ruleNumber(rules[entities.RuleMin])
	maxRule, hasMax := ruleNumber(rules[entities.RuleMax])
	if !hasMin && !hasMax {
		return
	}

	n, ok := value.AsNumber()
	if !ok {
		n, ok = codec.ParseNumber(value.Text())
	}
	if !ok {
		verr.Add(field, RuleType, "must be a number to apply min/max")
		return
	}
	if hasMin && n < minRule {
		verr.Add(field, entities.RuleMin, fmt.Sprintf("must be at least %s", entities.FormatNumber(minRule)))
	}
	if hasMax && n > maxRule {
		verr.Add(field, entities.RuleMax, fmt.Sprintf("must be at most %s", entities.FormatNumber(maxRule)))
	}
}

func (v *Validator) checkFile(verr *entities.ValidationError, field string, rules map[string]any, text string) {
	allowed := ruleStrings(rules[entities.RuleAllowedMimeTypes])
	maxSize, hasMax := ruleNumber(rules[entities.RuleMaxSize])
	if len(allowed) == 0 && !hasMax {
		return
	}

	file, err := ParseFileDescriptor(text)
	if err != nil {
		verr.Add(field, RuleType, err.Error())
		return
	}
	if len(allowed) > 0 && !mimeAllowed(file.Mime, allowed) {
		verr.Add(field, entities.RuleAllowedMimeTypes, fmt.Sprintf("file type %s is not allowed", file.Mime))
	}
	if hasMax && float64(file.Size) > maxSize {
		verr.Add(field, entities.RuleMaxSize, fmt.Sprintf("file exceeds %s bytes", entities.FormatNumber(maxSize)))
	}
}

func (v *Validator) checkExpression(verr *entities.ValidationError, field, expression string, value entities.Value) {
	if v.expressions == nil {
		verr.Add(field, entities.RuleExpression, "expression rules are not supported")
		return
	}
	ok, err := v.expressions.Evaluate(expression, value.Interface())
	switch {
	case err != nil:
		verr.Add(field, entities.RuleExpression, "expression could not be evaluated")
	case !ok:
		verr.Add(field, entities.RuleExpression, fmt.Sprintf("must satisfy %s", expression))
	}
}

// pattern compiles p anchored at both ends.
func (v *Validator) pattern(p string) (*regexp.Regexp, error) {
	if re, ok := v.patterns.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(`^(?:` + p + `)$`)
	if err != nil {
		return nil, err
	}
	v.patterns.Store(p, re)
	return re, nil
}

// ParseFileDescriptor reads "<mime>;<size>;<path>" or a JSON object with
// mime, size and path.
func ParseFileDescriptor(s string) (FileDescriptor, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		var fd FileDescriptor
		if err := json.Unmarshal([]byte(s), &fd); err != nil {
			return FileDescriptor{}, fmt.Errorf("malformed file descriptor: %v", err)
		}
		if fd.Mime == "" {
			return FileDescriptor{}, fmt.Errorf("file descriptor has no mime type")
		}
		return fd, nil
	}

	parts := strings.SplitN(s, ";", 3)
	if len(parts) != 3 || strings.TrimSpace(parts[0]) == "" {
		return FileDescriptor{}, fmt.Errorf("file descriptor must be <mime>;<size>;<path>")
	}
	size, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil || size < 0 {
		return FileDescriptor{}, fmt.Errorf("file size %q is not a valid byte count", parts[1])
	}
	return FileDescriptor{
		Mime: strings.ToLower(strings.TrimSpace(parts[0])),
		Size: size,
		Path: strings.TrimSpace(parts[2]),
	}, nil
}

// mimeAllowed matches exact types and "type/*" wildcards.
func mimeAllowed(mime string, allowed []string) bool {
	mime = strings.ToLower(mime)
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == mime {
			return true
		}
		if prefix, ok := strings.CutSuffix(a, "/*"); ok && strings.HasPrefix(mime, prefix+"/") {
			return true
		}
	}
	return false
}

func ruleNumber(raw any) (float64, bool) {
	switch n := raw.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		return codec.ParseNumber(n)
	default:
		return 0, false
	}
}

func ruleStrings(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out
	default:
		return nil
	}
}
