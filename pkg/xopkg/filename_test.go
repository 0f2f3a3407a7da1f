package xopkg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/sugarlabs/bundle-uploader/pkg/xopkg"
)

func TestDeriveFilename(t *testing.T) {
	tests := []struct {
		name       string
		bundleName string
		acceptedAt int64
		want       string
	}{
		{"plain", "Bibliography", 1690000000, "Bibliography-1690000000.xo"},
		{"spaces become underscores", "My Activity", 7, "My_Activity-7.xo"},
		{"path traversal stripped", "../../etc/passwd", 5, "etc_passwd-5.xo"},
		{"non-ascii dropped", "Süper", 9, "Sper-9.xo"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, xopkg.DeriveFilename(tc.bundleName, tc.acceptedAt))
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "hidden", xopkg.SanitizeFilename(" .hidden. "))
	assert.Equal(t, "a_b", xopkg.SanitizeFilename("a\\b"))
	assert.Equal(t, "", xopkg.SanitizeFilename("…"))
}
