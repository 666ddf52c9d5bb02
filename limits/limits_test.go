package limits

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateMessageSize(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		max     int
		wantErr error
	}{
		{"empty", 0, MaxMessageSize, ErrMessageEmpty},
		{"single byte", 1, MaxMessageSize, nil},
		{"at limit", MaxMessageSize, MaxMessageSize, nil},
		{"over limit", MaxMessageSize + 1, MaxMessageSize, ErrMessageTooLarge},
		{"above line buffer", MaxLineBuffer + 1, MaxProcessingBuffer, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageSize(make([]byte, tt.size), tt.max)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateMessageSize(%d bytes) unexpected error: %v", tt.size, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateMessageSize(%d bytes) = %v, want %v", tt.size, err, tt.wantErr)
			}
		})
	}
}

func TestValidateMessageSizeReportsSizes(t *testing.T) {
	err := ValidateMessageSize(make([]byte, 11), 10)
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
	if !strings.Contains(err.Error(), "size 11 exceeds limit 10") {
		t.Errorf("error lacks size context: %q", err.Error())
	}
}

func TestEffectiveMax(t *testing.T) {
	cases := map[int]int{
		-1:                      MaxMessageSize,
		0:                       MaxMessageSize,
		512:                     512,
		MaxProcessingBuffer + 1: MaxProcessingBuffer,
	}
	for in, want := range cases {
		if got := EffectiveMax(in); got != want {
			t.Errorf("EffectiveMax(%d) = %d, want %d", in, got, want)
		}
	}
}
