package bencode

import (
	"errors"
	"testing"
)

func TestEncodeString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "5:hello"},
		{"", "0:"},
		{"spam", "4:spam"},
		{"\x00\x01\x02", "3:\x00\x01\x02"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result, err := Encode(tt.input)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, string(result))
			}
		})
	}
}

func TestEncodeInt(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "i0e"},
		{42, "i42e"},
		{-42, "i-42e"},
		{1234567890, "i1234567890e"},
	}

	for _, tt := range tests {
		result, err := Encode(tt.input)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if string(result) != tt.expected {
			t.Errorf("expected %q, got %q", tt.expected, string(result))
		}
	}
}

func TestEncodeDictSortsKeys(t *testing.T) {
	dict := map[string]interface{}{
		"zebra":  "z",
		"apple":  "a",
		"banana": "b",
	}
	result, err := Encode(dict)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	expected := "d5:apple1:a6:banana1:b5:zebra1:ze"
	if string(result) != expected {
		t.Errorf("expected %q, got %q", expected, string(result))
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	values := []interface{}{
		"hello world",
		int64(42),
		int64(-7),
		[]interface{}{int64(1), int64(2), "three"},
		map[string]interface{}{"a": int64(1), "b": "two"},
	}

	for _, v := range values {
		encoded, err := Encode(v)
		if err != nil {
			t.Fatalf("Encode(%v) failed: %v", v, err)
		}
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%q) failed: %v", encoded, err)
		}
		encodedAgain, err := Encode(decoded)
		if err != nil {
			t.Fatalf("re-Encode failed: %v", err)
		}
		if string(encoded) != string(encodedAgain) {
			t.Errorf("round trip mismatch: %q != %q", encoded, encodedAgain)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	inputs := [][]byte{
		[]byte("5:ab"),  // truncated string
		[]byte("i4.2e"), // non-integer
		[]byte("l1:a"),  // unterminated list
		[]byte("d1:ae"), // dict value missing
		[]byte("x"),     // unknown leading byte
	}
	for _, in := range inputs {
		if _, err := Decode(in); err == nil {
			t.Errorf("expected error decoding %q, got nil", in)
		} else if !errors.Is(err, ErrMalformed) {
			t.Errorf("expected ErrMalformed for %q, got %v", in, err)
		}
	}
}
