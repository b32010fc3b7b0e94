package config_test

import (
	"fmt"
	"testing"

	"github.com/dustin/go-humanize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/percona/percona-docshell/config"
)

func TestParseAndValidateMaxDocumentSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		want    int64
		wantErr string
	}{
		{
			name:  "valid size 1MiB",
			value: "1MiB",
			want:  humanize.MiByte,
		},
		{
			name:  "valid size 16MiB",
			value: "16MiB",
			want:  16 * humanize.MiByte,
		},
		{
			name:  "zero value (default)",
			value: "0",
			want:  0,
		},
		{
			name:    "below minimum",
			value:   "512B",
			wantErr: "maxDocumentSize must be at least",
		},
		{
			name:    "above maximum",
			value:   "17MiB",
			wantErr: "maxDocumentSize must be at most",
		},
		{
			name:  "at minimum boundary (using exact bytes)",
			value: fmt.Sprintf("%dB", config.MinDocumentSizeBytes),
			want:  config.MinDocumentSizeBytes,
		},
		{
			name:    "invalid format",
			value:   "abc",
			wantErr: "invalid maxDocumentSize value",
		},
		{
			name:    "empty string",
			value:   "",
			wantErr: "invalid maxDocumentSize value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := config.ParseAndValidateMaxDocumentSize(tt.value)

			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestStoreConfig_MaxDocumentSizeBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		want  int64
	}{
		{
			name:  "empty string - returns default",
			value: "",
			want:  config.DefaultMaxDocumentSize,
		},
		{
			name:  "valid size 4MiB",
			value: "4MiB",
			want:  4 * humanize.MiByte,
		},
		{
			name:  "invalid format - returns default",
			value: "invalid",
			want:  config.DefaultMaxDocumentSize,
		},
		{
			name:  "zero value string - returns default",
			value: "0",
			want:  config.DefaultMaxDocumentSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &config.StoreConfig{MaxDocumentSize: tt.value}

			assert.Equal(t, tt.want, cfg.MaxDocumentSizeBytes())
		})
	}
}
