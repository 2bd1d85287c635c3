package fetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFTPURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPath string
		wantErr  bool
	}{
		{
			name:     "standard ftp url",
			url:      "ftp://ftp.example.com/pub/reference/cmc_bands.csv",
			wantHost: "ftp.example.com:21",
			wantPath: "/pub/reference/cmc_bands.csv",
		},
		{
			name:     "ftp url with port",
			url:      "ftp://ftp.example.com:2121/drops/specs.xlsx",
			wantHost: "ftp.example.com:2121",
			wantPath: "/drops/specs.xlsx",
		},
		{
			name:     "nested vendor path",
			url:      "ftp://files.hytorc.example/calibration/2026/torque_specs.csv",
			wantHost: "files.hytorc.example:21",
			wantPath: "/calibration/2026/torque_specs.csv",
		},
		{
			name:    "http scheme rejected",
			url:     "http://example.com/file.csv",
			wantErr: true,
		},
		{
			name:    "empty path",
			url:     "ftp://ftp.example.com",
			wantErr: true,
		},
		{
			name:    "invalid url",
			url:     "://bad",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, path, err := parseFTPURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestNewFTPFetcher_Defaults(t *testing.T) {
	f := NewFTPFetcher(FTPOptions{})
	assert.Equal(t, 30*time.Second, f.opts.Timeout)
	assert.Equal(t, "anonymous", f.opts.User)
	assert.Equal(t, "anonymous@", f.opts.Password)
}

func TestNewFTPFetcher_Credentials(t *testing.T) {
	f := NewFTPFetcher(FTPOptions{User: "lab-42", Password: "s3cret"})
	assert.Equal(t, "lab-42", f.opts.User)
	assert.Equal(t, "s3cret", f.opts.Password)
}
