package chat

import (
	"bytes"
	"encoding/base64"
	"errors"
	"math/rand"
	"strings"
	"testing"
)

func TestEncodeAttachmentRoundTrip(t *testing.T) {
	payload := make([]byte, 10*1024)
	rand.New(rand.NewSource(7)).Read(payload)
	copy(payload, []byte("\x89PNG\r\n\x1a\n"))

	att, err := EncodeAttachment("ultrasound.PNG", "", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if att.MIMEType != "image/png" {
		t.Fatalf("mime type = %q", att.MIMEType)
	}
	decoded, err := base64.StdEncoding.DecodeString(att.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Fatalf("payload did not round-trip")
	}
}

func TestResolveMIMEType(t *testing.T) {
	cases := []struct {
		name, declared, want string
	}{
		{"a.jpg", "", "image/jpeg"},
		{"a.JPEG", "", "image/jpeg"},
		{"scan", "image/webp", "image/webp"},
		{"photo.heic", "application/octet-stream", "image/heic"},
		{"x.bin", "image/gif; charset=binary", "image/gif"},
		{"rash.heif", "", "image/heif"},
	}
	for _, tc := range cases {
		got, err := ResolveMIMEType(tc.name, tc.declared)
		if err != nil || got != tc.want {
			t.Fatalf("ResolveMIMEType(%q, %q) = %q, %v", tc.name, tc.declared, got, err)
		}
	}
	for _, name := range []string{"notes.pdf", "archive", "image.png.exe"} {
		if _, err := ResolveMIMEType(name, "application/pdf"); !errors.Is(err, ErrUnsupportedAttachment) {
			t.Fatalf("%s: expected ErrUnsupportedAttachment, got %v", name, err)
		}
	}
}

func TestEncodeAttachmentTooLarge(t *testing.T) {
	_, err := EncodeAttachmentLimit("big.png", "image/png", strings.NewReader(strings.Repeat("x", 11)), 10)
	if !errors.Is(err, ErrAttachmentTooLarge) {
		t.Fatalf("expected ErrAttachmentTooLarge, got %v", err)
	}
	att, err := EncodeAttachmentLimit("ok.png", "", strings.NewReader(strings.Repeat("x", 10)), 10)
	if err != nil || att.Name != "ok.png" {
		t.Fatalf("payload at limit should encode: %v", err)
	}
}
