package aijson

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustParse(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("JSONのパースに失敗しました: %v\ninput: %q", err, s)
	}
	return v
}

func TestSanitize_IdempotentOnValidJSON(t *testing.T) {
	inputs := []string{
		`{"rating": 7, "feedback": "Good job"}`,
		`[{"question":"What is a goroutine?","answer":"A lightweight thread"}]`,
		`{"nested": {"list": [1, 2.5, -3e2, true, false, null]}, "s": "with \"quotes\" and 'apostrophes'"}`,
		`"a {string} with [brackets]"`,
		`42`,
		`[]`,
		`{"code": "line1\nline2\n` + "```go" + `\nfmt.Println()\n` + "```" + `"}`,
		"{\r\n  \"a\": 1\r\n}",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			out, err := Sanitize(in)
			if err != nil {
				t.Fatalf("Sanitize がエラーを返した: %v", err)
			}
			if diff := cmp.Diff(mustParse(t, in), mustParse(t, out)); diff != "" {
				t.Errorf("パース結果が一致しない (-want +got):\n%s", diff)
			}

			again, err := Sanitize(out)
			if err != nil {
				t.Fatalf("2回目の Sanitize がエラーを返した: %v", err)
			}
			if again != out {
				t.Errorf("2回目の出力 = %q, want %q", again, out)
			}
		})
	}
}

func TestSanitize_FencedSingleQuotedTrailingComma(t *testing.T) {
	raw := "```json\n{'rating': 7, 'feedback': 'Good job',}\n```"

	out, err := Sanitize(raw)
	if err != nil {
		t.Fatalf("Sanitize がエラーを返した: %v", err)
	}

	want := map[string]any{"rating": float64(7), "feedback": "Good job"}
	if diff := cmp.Diff(want, mustParse(t, out)); diff != "" {
		t.Errorf("復元結果が一致しない (-want +got):\n%s", diff)
	}
}

func TestSanitize_ProseAroundFencedArray(t *testing.T) {
	raw := "Here you go:\n```json\n[{\"question\":\"What is a goroutine?\",\"answer\":\"...\"}]\n```"

	var got []map[string]string
	if err := Decode(raw, &got); err != nil {
		t.Fatalf("Decode がエラーを返した: %v", err)
	}

	want := []map[string]string{{"question": "What is a goroutine?", "answer": "..."}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("復元結果が一致しない (-want +got):\n%s", diff)
	}
}

func TestSanitize_Recovers(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{
			name: "trailing commas in nested array",
			raw:  `{"tips": ["a", "b",], "score": 80,}`,
			want: map[string]any{"tips": []any{"a", "b"}, "score": float64(80)},
		},
		{
			name: "comma inside string is preserved",
			raw:  `{"feedback": "fine, ]", "rating": 3,}`,
			want: map[string]any{"feedback": "fine, ]", "rating": float64(3)},
		},
		{
			name: "single quoted value with embedded double quote",
			raw:  `{'feedback': 'say "hi"'}`,
			want: map[string]any{"feedback": `say "hi"`},
		},
		{
			name: "escaped apostrophe in single quoted value",
			raw:  `{'feedback': 'don\'t panic'}`,
			want: map[string]any{"feedback": "don't panic"},
		},
		{
			name: "apostrophe inside double quoted string is untouched",
			raw:  "```\n{\"feedback\": \"don't\", 'rating': 5}\n```",
			want: map[string]any{"feedback": "don't", "rating": float64(5)},
		},
		{
			name: "control characters removed",
			raw:  "{\"a\":\x01 1,\x0b \"b\": \"x\"}\x00",
			want: map[string]any{"a": float64(1), "b": "x"},
		},
		{
			name: "raw newline inside string literal",
			raw:  "{\"feedback\": \"first line\nsecond line\"}",
			want: map[string]any{"feedback": "first line\nsecond line"},
		},
		{
			name: "inline fence on one line",
			raw:  "```json{\"rating\": 9, \"feedback\": \"ok\"}```",
			want: map[string]any{"rating": float64(9), "feedback": "ok"},
		},
		{
			name: "bracket in prose before object",
			raw:  "Result [final]: {\"rating\": 4, \"feedback\": \"meh\"}",
			want: map[string]any{"rating": float64(4), "feedback": "meh"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Sanitize(tt.raw)
			if err != nil {
				t.Fatalf("Sanitize がエラーを返した: %v", err)
			}
			if diff := cmp.Diff(tt.want, mustParse(t, out)); diff != "" {
				t.Errorf("復元結果が一致しない (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSanitize_Unrecoverable(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"I'm sorry, I cannot help with that.",
		"```json\n{\"rating\": 7, \"feedback\": \n```",
		"{{{{",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Sanitize(in)
			if !errors.Is(err, ErrUnrecoverable) {
				t.Errorf("err = %v, want ErrUnrecoverable", err)
			}
		})
	}
}

func TestDecode_TypeMismatchIsUnrecoverable(t *testing.T) {
	var got []string
	err := Decode(`{"rating": 7}`, &got)
	if !errors.Is(err, ErrUnrecoverable) {
		t.Errorf("err = %v, want ErrUnrecoverable", err)
	}
}

func TestDecodeValue_ReturnsUntypedValue(t *testing.T) {
	v, err := DecodeValue("```json\n[1, 2,]\n```")
	if err != nil {
		t.Fatalf("DecodeValue がエラーを返した: %v", err)
	}
	if diff := cmp.Diff([]any{float64(1), float64(2)}, v); diff != "" {
		t.Errorf("値が一致しない (-want +got):\n%s", diff)
	}
}
