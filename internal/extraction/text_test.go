package extraction

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		want    string
		wantErr bool
	}{
		{name: "plain text", raw: []byte("Invoice #42\nTotal Due: $10.00"), want: "Invoice #42\nTotal Due: $10.00"},
		{name: "leading whitespace trimmed", raw: []byte("  \n\thello\n"), want: "hello"},
		{name: "empty payload", raw: nil, wantErr: true},
		{name: "invalid utf8", raw: []byte{0xff, 0xfe, 0x00}, wantErr: true},
		{name: "whitespace only", raw: []byte("   \n\t  "), wantErr: true},
		{name: "mostly binary", raw: append([]byte("ab"), make([]byte, 40)...), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractText(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrNoText)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractText_LargeDocument(t *testing.T) {
	raw := []byte(strings.Repeat("line item description\n", 2000))
	got, err := ExtractText(raw)
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}
