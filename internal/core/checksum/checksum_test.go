package checksum

import (
	"context"
	"io"
	"strings"
	"testing"
)

const helloSHA256 = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func TestCalculate_KnownVectors(t *testing.T) {
	calc := NewDefaultCalculator()
	ctx := context.Background()

	tests := []struct {
		algo Algorithm
		want string
	}{
		{MD5, "5eb63bbbe01eeed093cb22bb8f5acdc3"},
		{SHA1, "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed"},
		{SHA256, helloSHA256},
	}
	for _, tt := range tests {
		got, err := calc.Calculate(ctx, strings.NewReader("hello world"), tt.algo)
		if err != nil {
			t.Fatalf("Calculate(%s) failed: %v", tt.algo, err)
		}
		if got != tt.want {
			t.Errorf("%s mismatch: got %s, want %s", tt.algo, got, tt.want)
		}
	}
}

func TestCalculate_Empty(t *testing.T) {
	got, err := NewDefaultCalculator().Calculate(context.Background(), strings.NewReader(""), SHA256)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("Unexpected digest of empty input: %s", got)
	}
}

func TestCalculate_MaxSize(t *testing.T) {
	calc := NewCalculator(Options{MaxSize: 5, BufferSize: 2})

	if _, err := calc.Calculate(context.Background(), strings.NewReader("hello"), SHA256); err != nil {
		t.Errorf("Expected input at the limit to hash, got %v", err)
	}
	if _, err := calc.Calculate(context.Background(), strings.NewReader("hello!"), SHA256); err == nil {
		t.Error("Expected error for input over the limit")
	}
}

func TestCalculate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDefaultCalculator().Calculate(ctx, strings.NewReader("hello"), SHA256)
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestCalculate_Unsupported(t *testing.T) {
	_, err := NewDefaultCalculator().Calculate(context.Background(), strings.NewReader("x"), "crc32")
	if err == nil {
		t.Error("Expected error for unsupported algorithm")
	}
	if IsSupported("crc32") {
		t.Error("Expected crc32 to be unsupported")
	}
}

func TestHasher_TeeReader(t *testing.T) {
	h, err := NewHasher(SHA256)
	if err != nil {
		t.Fatal(err)
	}

	data, err := io.ReadAll(io.TeeReader(strings.NewReader("hello world"), h))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Errorf("Expected data to pass through, got %q", data)
	}
	if h.Sum() != helloSHA256 {
		t.Errorf("Expected %s, got %s", helloSHA256, h.Sum())
	}
	if h.Size() != 11 {
		t.Errorf("Expected 11 bytes, got %d", h.Size())
	}
}
