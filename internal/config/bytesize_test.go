package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"512MB", 512 * 1024 * 1024, false},
		{"2GB", 2 * 1024 * 1024 * 1024, false},
		{"10KB", 10 * 1024, false},
		{"1024", 1024, false},
		{"100B", 100, false},
		{"", 0, true},
		{"-5MB", 0, true},
		{"xyz", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			b, err := ParseByteSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Int64())
		})
	}
}

func TestByteSizeJSON(t *testing.T) {
	var b ByteSize
	require.NoError(t, json.Unmarshal([]byte(`"512MB"`), &b))
	assert.Equal(t, int64(512*1024*1024), b.Int64())

	require.NoError(t, json.Unmarshal([]byte(`2048`), &b))
	assert.Equal(t, int64(2048), b.Int64())
}

func TestByteSizeString(t *testing.T) {
	assert.Equal(t, "512MB", ByteSize(512*1024*1024).String())
	assert.Equal(t, "2GB", ByteSize(2*1024*1024*1024).String())
	assert.Equal(t, "100", ByteSize(100).String())
}
