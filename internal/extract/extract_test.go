package extract

import (
	"errors"
	"testing"
)

func TestPayload(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{"bare json", `{"theme":"DX"}`, `{"theme":"DX"}`, false},
		{"fenced json block", "説明します。\n```json\n{\"theme\":\"DX\"}\n```\nよろしく。", `{"theme":"DX"}`, false},
		{"anonymous fence", "```\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose around braces", "結果は {\"a\":1} です", `{"a":1}`, false},
		{"array payload via fence", "```json\n[1,2,3]\n```", `[1,2,3]`, false},
		{"no payload at all", "JSONはありません", "", true},
		{"empty input", "", "", true},
		{"invalid json in fence", "```json\n{broken\n```", "", true},
		// 围栏命中即定格：围栏内损坏时不回退到 braceSpan
		{"broken fence no fallback", "```json\n{broken}\n```\n{\"ok\":true}", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Payload(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Payload(%q) = %q, want error", tt.text, got)
				}
				var extractErr *Error
				if !errors.As(err, &extractErr) {
					t.Fatalf("error type = %T, want *Error", err)
				}
				if extractErr.Raw != tt.text {
					t.Errorf("Error.Raw = %q, want full input %q", extractErr.Raw, tt.text)
				}
				return
			}
			if err != nil {
				t.Fatalf("Payload(%q) error: %v", tt.text, err)
			}
			if string(got) != tt.want {
				t.Errorf("Payload(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestPayloadPrefersJSONFence(t *testing.T) {
	// 标注了 json 的围栏优先于更早出现的匿名围栏
	text := "```\nnot json here\n```\n```json\n{\"picked\":true}\n```"
	got, err := Payload(text)
	if err != nil {
		t.Fatalf("Payload() error: %v", err)
	}
	if string(got) != `{"picked":true}` {
		t.Errorf("Payload() = %q, want the json-tagged fence content", got)
	}
}
