package attachments

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio-secret",
		Bucket:    "tablero-files",
		Region:    "us-east-1",
	})
	require.NoError(t, err)
	return s
}

func TestPresignUploadScopesKeyToCell(t *testing.T) {
	s := newTestStore(t)
	up, err := s.PresignUpload(context.Background(), "brd_1", "itm_1", "col_1", "../Factura marzo.pdf")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(up.Key, "boards/brd_1/itm_1/col_1/"), up.Key)
	assert.True(t, strings.HasSuffix(up.Key, "-Factura_marzo.pdf"), up.Key)
	assert.NotContains(t, up.Key, "..")
	assert.False(t, up.ExpiresAt.IsZero())

	u, err := url.Parse(up.URL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestPresignDownloadRejectsForeignKeys(t *testing.T) {
	s := newTestStore(t)
	_, err := s.PresignDownload(context.Background(), "brd_1", "boards/brd_2/itm/col/x.pdf")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = s.PresignDownload(context.Background(), "brd_1", "boards/brd_1/../brd_2/x.pdf")
	assert.ErrorIs(t, err, ErrInvalidKey)

	link, err := s.PresignDownload(context.Background(), "brd_1", "boards/brd_1/itm/col/x.pdf")
	require.NoError(t, err)
	assert.Contains(t, link, "X-Amz-Signature")
}

func TestSanitize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"reporte.xlsx", "reporte.xlsx"},
		{"  ", "file"},
		{"C:\\tmp\\foto.png", "foto.png"},
		{"a/b/../c d$%.txt", "c_d.txt"},
		{"...", "file"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, sanitize(tc.in), tc.in)
	}
}
