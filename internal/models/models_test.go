package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShareLinkState(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	two := int64(2)

	link := &ShareLink{ExpiresAt: now.Add(time.Hour), MaxAccessCount: &two}
	assert.Equal(t, LinkActive, link.State(now))

	link.AccessCount = 2
	assert.Equal(t, LinkExhausted, link.State(now))

	link.AccessCount = 0
	assert.Equal(t, LinkExpired, link.State(now.Add(time.Hour)))

	unlimited := &ShareLink{ExpiresAt: now.Add(time.Hour), AccessCount: 1000}
	assert.Equal(t, LinkActive, unlimited.State(now))
}

func TestShareLinkVisitorState(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	link := &ShareLink{ExpiresAt: now.Add(time.Hour), IsPasswordProtected: true}
	assert.Equal(t, LinkPasswordPending, link.VisitorState(now))
	assert.Equal(t, LinkActive, link.State(now))
	assert.Equal(t, LinkExpired, link.VisitorState(now.Add(time.Hour)))

	link.IsPasswordProtected = false
	assert.Equal(t, LinkActive, link.VisitorState(now))
}

func TestPermissionAllows(t *testing.T) {
	assert.True(t, PermissionDownload.Allows(PermissionView))
	assert.True(t, PermissionDownload.Allows(PermissionDownload))
	assert.True(t, PermissionView.Allows(PermissionView))
	assert.False(t, PermissionView.Allows(PermissionDownload))
	assert.False(t, Permission("edit").Valid())
}

func TestUserStorageLimit(t *testing.T) {
	u := &User{}
	assert.Equal(t, uint64(100), u.StorageLimit(100))
	u.TotalSpace = 50
	assert.Equal(t, uint64(50), u.StorageLimit(100))
}
