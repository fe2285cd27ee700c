package parser

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{
			name:  "simple command",
			input: "GET mykey",
			want:  []string{"GET", "mykey"},
		},
		{
			name:  "multiple arguments",
			input: "PUT mykey myvalue",
			want:  []string{"PUT", "mykey", "myvalue"},
		},
		{
			name:  "double quoted argument with spaces",
			input: `PUT mykey "my value with spaces"`,
			want:  []string{"PUT", "mykey", "my value with spaces"},
		},
		{
			name:  "single quoted argument",
			input: `PUT mykey 'my value'`,
			want:  []string{"PUT", "mykey", "my value"},
		},
		{
			name:  "escaped character",
			input: `PUT mykey my\ value`,
			want:  []string{"PUT", "mykey", "my value"},
		},
		{
			name:  "extra whitespace collapses",
			input: "  GET    mykey  ",
			want:  []string{"GET", "mykey"},
		},
		{
			name:    "empty line",
			input:   "",
			wantErr: true,
		},
		{
			name:    "only whitespace",
			input:   "   ",
			wantErr: true,
		},
		{
			name:    "unterminated quote",
			input:   `PUT mykey "unterminated`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tokenize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Tokenize() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Tokenize() = %v, want %v", got, tt.want)
			}
		})
	}
}
