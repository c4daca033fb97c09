package tool

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateArgs(t *testing.T) {
	schema := Schema{
		Name: "demo",
		Params: []Param{
			{Name: "path", Type: "string", Required: true},
			{Name: "count", Type: "integer"},
			{Name: "deep", Type: "boolean"},
			{Name: "mode", Type: "string", Enum: []string{"fast", "slow"}},
			{Name: "extra", Type: "object"},
		},
	}

	cases := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{"all valid", `{"path":"/tmp","count":3,"deep":true,"mode":"fast","extra":{}}`, false},
		{"only required", `{"path":"/tmp"}`, false},
		{"missing required", `{"count":3}`, true},
		{"wrong string type", `{"path":42}`, true},
		{"wrong integer type", `{"path":"/tmp","count":"three"}`, true},
		{"wrong boolean type", `{"path":"/tmp","deep":"yes"}`, true},
		{"enum violation", `{"path":"/tmp","mode":"medium"}`, true},
		{"wrong object type", `{"path":"/tmp","extra":[1,2]}`, true},
		{"not an object", `[1,2,3]`, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateArgs(schema, json.RawMessage(tc.args))
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateArgs(%s) error = %v, wantErr %v", tc.args, err, tc.wantErr)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	s := strings.Repeat("a", 100)

	if got := Truncate(s, 200); got != s {
		t.Error("Truncate modified a string under the cap")
	}
	if got := Truncate(s, 0); got != s {
		t.Error("Truncate with zero cap modified the string")
	}

	got := Truncate(s, 10)
	if !strings.HasPrefix(got, strings.Repeat("a", 10)) {
		t.Errorf("Truncate prefix wrong: %q", got)
	}
	if !strings.Contains(got, "truncated") {
		t.Errorf("Truncate missing annotation: %q", got)
	}
}
