package agent

import "testing"

func TestExtractFirstJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, true},
		{"fenced", "```json\n{\"a\": {\"b\": 2}}\n```", `{"a": {"b": 2}}`, true},
		{"prose", `Here you go: {"x":"y"} thanks`, `{"x":"y"}`, true},
		{"brace in string", `{"q":"use } carefully","n":1}`, `{"q":"use } carefully","n":1}`, true},
		{"escaped quote", `{"q":"say \"}\" now"}`, `{"q":"say \"}\" now"}`, true},
		{"array", `list: [1, 2, {"a": 3}]`, `[1, 2, {"a": 3}]`, true},
		{"none", `no json here`, "", false},
		{"unbalanced", `{"a": 1`, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := extractFirstJSON(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("extractFirstJSON(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Score float64 `json:"score"`
	}
	if err := decodeJSON("Result:\n{\"score\": 0.4}", &out); err != nil || out.Score != 0.4 {
		t.Fatalf("decodeJSON: %v %+v", err, out)
	}
	if err := decodeJSON("nothing", &out); err == nil {
		t.Fatal("expected error for missing JSON")
	}
}
