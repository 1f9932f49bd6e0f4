package attributes

import (
	"errors"
	"testing"
	"time"

	"github.com/divingclub/clubattrs/internal/entities"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	engine, err := NewExpressionEngine()
	if err != nil {
		t.Fatalf("NewExpressionEngine() error = %v", err)
	}
	return NewValidator(engine)
}

func rulesOf(err error) []string {
	var verr *entities.ValidationError
	if !errors.As(err, &verr) {
		return nil
	}
	rules := make([]string, len(verr.Errors))
	for i, fe := range verr.Errors {
		rules[i] = fe.Rule
	}
	return rules
}

func TestValidator_Validate(t *testing.T) {
	v := newTestValidator(t)

	text := func(rules map[string]any) *entities.AttributeDefinition {
		return &entities.AttributeDefinition{
			EntityKind: "User", AttributeKey: "licence", DisplayName: "Licence",
			ValueType: entities.ValueTypeText, ValidationRules: rules,
		}
	}
	number := func(rules map[string]any) *entities.AttributeDefinition {
		return &entities.AttributeDefinition{
			EntityKind: "User", AttributeKey: "max_depth", DisplayName: "Max depth",
			ValueType: entities.ValueTypeNumber, ValidationRules: rules,
		}
	}
	file := &entities.AttributeDefinition{
		EntityKind: "User", AttributeKey: "certificat", DisplayName: "Certificat médical",
		ValueType: entities.ValueTypeFile,
		ValidationRules: map[string]any{
			entities.RuleAllowedMimeTypes: []any{"application/pdf", "image/*"},
			entities.RuleMaxSize:          1048576,
		},
	}
	required := &entities.AttributeDefinition{
		EntityKind: "User", AttributeKey: "phone", DisplayName: "Phone",
		ValueType: entities.ValueTypeText, Required: true,
	}

	tests := []struct {
		name      string
		def       *entities.AttributeDefinition
		value     entities.Value
		wantRules []string
	}{
		{"required missing", required, entities.Null(), []string{RuleRequired}},
		{"required blank", required, entities.String("  "), []string{RuleRequired}},
		{"required present", required, entities.String("0601020304"), nil},
		{"optional null skips rules", text(map[string]any{entities.RuleMinLength: 3}), entities.Null(), nil},
		{"optional empty skips rules", text(map[string]any{entities.RuleMinLength: 3}), entities.String(""), nil},
		{"min length counts runes", text(map[string]any{entities.RuleMinLength: 3}), entities.String("éé"), []string{entities.RuleMinLength}},
		{"max length", text(map[string]any{entities.RuleMaxLength: 4.0}), entities.String("A-12345"), []string{entities.RuleMaxLength}},
		{"pattern full match", text(map[string]any{entities.RulePattern: `[A-Z]-\d+`}), entities.String("A-12345"), nil},
		{"pattern partial match rejected", text(map[string]any{entities.RulePattern: `[A-Z]-\d+`}), entities.String("xA-12345"), []string{entities.RulePattern}},
		{"several violations reported", text(map[string]any{entities.RuleMaxLength: 2, entities.RulePattern: `\d+`}), entities.String("abc"), []string{entities.RuleMaxLength, entities.RulePattern}},
		{"number within range", number(map[string]any{entities.RuleMin: 0, entities.RuleMax: 60}), entities.Number(40), nil},
		{"number below min", number(map[string]any{entities.RuleMin: 0}), entities.Number(-1), []string{entities.RuleMin}},
		{"number above max from string", number(map[string]any{entities.RuleMax: "60"}), entities.String("61"), []string{entities.RuleMax}},
		{"number not numeric", number(nil), entities.String("deep"), []string{RuleType}},
		{"text min on non number", text(map[string]any{entities.RuleMin: 1}), entities.String("abc"), []string{RuleType}},
		{"select member", levelDefinition(), entities.String("niveau1"), nil},
		{"select non member", levelDefinition(), entities.String("niveau4"), []string{RuleOptions}},
		{"file pdf", file, entities.String("application/pdf;2048;certs/42.pdf"), nil},
		{"file image wildcard json", file, entities.String(`{"mime":"image/png","size":10,"path":"a.png"}`), nil},
		{"file wrong type", file, entities.String("text/plain;10;a.txt"), []string{entities.RuleAllowedMimeTypes}},
		{"file too big", file, entities.String("application/pdf;2097152;big.pdf"), []string{entities.RuleMaxSize}},
		{"file malformed", file, entities.String("certificate.pdf"), []string{RuleType}},
		{"expression satisfied", number(map[string]any{entities.RuleExpression: "value >= 0.0 && value <= 60.0"}), entities.Number(20), nil},
		{"expression int literal", number(map[string]any{entities.RuleExpression: "value <= 60"}), entities.Number(61), []string{entities.RuleExpression}},
		{"expression on text", text(map[string]any{entities.RuleExpression: `value.startsWith("FFESSM")`}), entities.String("CMAS-1"), []string{entities.RuleExpression}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.def, tt.value)
			if tt.wantRules == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			got := rulesOf(err)
			if len(got) != len(tt.wantRules) {
				t.Fatalf("Validate() rules = %v, want %v (err=%v)", got, tt.wantRules, err)
			}
			for i := range got {
				if got[i] != tt.wantRules[i] {
					t.Errorf("Validate() rules = %v, want %v", got, tt.wantRules)
				}
			}
		})
	}
}

func TestValidator_DateExpression(t *testing.T) {
	v := newTestValidator(t)
	def := &entities.AttributeDefinition{
		EntityKind: "User", AttributeKey: "certificate_end", DisplayName: "Fin du certificat",
		ValueType:       entities.ValueTypeDate,
		ValidationRules: map[string]any{entities.RuleExpression: `value > timestamp("2020-01-01T00:00:00Z")`},
	}

	if err := v.Validate(def, entities.Date(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))); err != nil {
		t.Errorf("Validate() future date error = %v", err)
	}
	if err := v.Validate(def, entities.String("2019-05-01")); err == nil {
		t.Error("Validate() expected expression failure for old date")
	}
	if got := rulesOf(v.Validate(def, entities.String("someday"))); len(got) != 1 || got[0] != RuleType {
		t.Errorf("Validate() unparsable date rules = %v, want [type]", got)
	}
}

func TestValidator_WithoutExpressionEngine(t *testing.T) {
	v := NewValidator(nil)
	def := &entities.AttributeDefinition{
		EntityKind: "User", AttributeKey: "x", DisplayName: "X", ValueType: entities.ValueTypeNumber,
		ValidationRules: map[string]any{entities.RuleExpression: "value > 0"},
	}
	if err := v.CheckRules(def); !errors.Is(err, entities.ErrDefinitionConflict) {
		t.Errorf("CheckRules() error = %v, want DefinitionConflict", err)
	}
	if got := rulesOf(v.Validate(def, entities.Number(1))); len(got) != 1 || got[0] != entities.RuleExpression {
		t.Errorf("Validate() rules = %v, want [expression]", got)
	}
}

func TestParseFileDescriptor(t *testing.T) {
	tests := []struct {
		in      string
		want    FileDescriptor
		wantErr bool
	}{
		{in: "application/pdf;1024;docs/a.pdf", want: FileDescriptor{Mime: "application/pdf", Size: 1024, Path: "docs/a.pdf"}},
		{in: " Image/PNG ; 10 ; a;b.png", want: FileDescriptor{Mime: "image/png", Size: 10, Path: "a;b.png"}},
		{in: `{"mime":"image/jpeg","size":5,"path":"p.jpg"}`, want: FileDescriptor{Mime: "image/jpeg", Size: 5, Path: "p.jpg"}},
		{in: "application/pdf;-1;a.pdf", wantErr: true},
		{in: "application/pdf;big;a.pdf", wantErr: true},
		{in: ";1;a.pdf", wantErr: true},
		{in: `{"size":5}`, wantErr: true},
		{in: `{broken`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFileDescriptor(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFileDescriptor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseFileDescriptor() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExpressionEngine(t *testing.T) {
	engine, err := NewExpressionEngine()
	if err != nil {
		t.Fatalf("NewExpressionEngine() error = %v", err)
	}

	tests := []struct {
		name    string
		expr    string
		value   any
		want    bool
		wantErr bool
	}{
		{"double compare", "value > 1.5", 2.0, true, false},
		{"cross type compare", "value >= 18", 17.0, false, false},
		{"string function", `value.contains("plong")`, "plongeur", true, false},
		{"list membership", `value in ["niveau1", "niveau2"]`, "niveau2", true, false},
		{"map field", `value.size > 10`, map[string]any{"size": 20.0}, true, false},
		{"non boolean", `value + 1.0`, 1.0, false, true},
		{"syntax error", `value >`, 1.0, false, true},
		{"runtime type error", `value > 1.0`, "abc", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Evaluate(tt.expr, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Evaluate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}

	// compiled programs are reused
	if _, ok := engine.programs.Load("value > 1.5"); !ok {
		t.Error("expected compiled program to be cached")
	}
	if _, ok := engine.programs.Load("value >"); ok {
		t.Error("invalid expression must not be cached")
	}
}
