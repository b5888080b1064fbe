package core

import (
	"errors"
	"strings"
	"testing"
)

func TestDirectKeyIsUnordered(t *testing.T) {
	if DirectKey("b", "a") != DirectKey("a", "b") {
		t.Fatal("direct key depends on argument order")
	}
	k := DirectKey("bob", "alice")
	if k.String() != "dm:alice:bob" {
		t.Fatalf("string = %q", k.String())
	}
	if k.Peer("alice") != "bob" || k.Peer("bob") != "alice" {
		t.Fatal("peer resolution")
	}
	parsed, err := ParseConversationKey(k.String())
	if err != nil || parsed != k {
		t.Fatalf("parse: %v %v", parsed, err)
	}
	if _, err := ParseConversationKey("dm:alice"); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		wantErr bool
	}{
		{"text", Payload{Type: PayloadText, Text: "hi"}, false},
		{"implicit text", Payload{Text: "hi"}, false},
		{"blank text", Payload{Type: PayloadText, Text: "  "}, true},
		{"too long", Payload{Type: PayloadText, Text: strings.Repeat("x", 11)}, true},
		{"voice", Payload{Type: PayloadVoice, AudioURL: "https://cdn/a.webm", Duration: 3.5}, false},
		{"voice without url", Payload{Type: PayloadVoice}, true},
		{"image", Payload{Type: PayloadImage, FileURL: "https://cdn/x.png"}, false},
		{"file without url", Payload{Type: PayloadFile, FileName: "x.pdf"}, true},
		{"unknown", Payload{Type: "sticker"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate(10)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrBadRequest) {
				t.Fatalf("error should wrap ErrBadRequest: %v", err)
			}
		})
	}
}

func TestAsCoreErrorMapsSentinels(t *testing.T) {
	cases := map[error]string{
		ErrForbidden:                ErrCodeForbidden,
		ErrNotFound:                 ErrCodeNotFound,
		errors.New("disk full"):     ErrCodePersistFailed,
		coreError("custom", "boom"): "custom",
	}
	for err, code := range cases {
		if got := AsCoreError(err); got.Code != code {
			t.Errorf("%v: code %q, want %q", err, got.Code, code)
		}
	}
	if AsCoreError(nil) != nil {
		t.Fatal("nil error should map to nil")
	}
}

func TestNewErrorKeepsMessage(t *testing.T) {
	ce := AsCoreError(NewError(ErrForbidden, "Not authorized to delete this message"))
	if ce.Code != ErrCodeForbidden {
		t.Fatalf("code = %q", ce.Code)
	}
	if ce.Message != "Not authorized to delete this message" {
		t.Fatalf("message = %q", ce.Message)
	}
}
