package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintStableUnderMapOrder(t *testing.T) {
	a := Integration{
		Type:          TypeObjectStore,
		CredentialRef: "cred-1",
		Config:        map[string]string{"endpoint": "http://s", "bucket": "b"},
	}
	b := Integration{
		Type:          TypeObjectStore,
		CredentialRef: "cred-1",
		Config:        map[string]string{"bucket": "b", "endpoint": "http://s"},
	}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintChangesWithCredentialAndConfig(t *testing.T) {
	base := Integration{
		Type:          TypeChat,
		CredentialRef: "cred-1",
		Config:        map[string]string{"webhook_url": "http://x"},
	}
	fp := base.Fingerprint()

	rotated := base
	rotated.CredentialRef = "cred-2"
	require.NotEqual(t, fp, rotated.Fingerprint())

	reconfigured := base
	reconfigured.Config = map[string]string{"webhook_url": "http://y"}
	require.NotEqual(t, fp, reconfigured.Fingerprint())

	// Name and tags do not affect the instance fingerprint.
	renamed := base
	renamed.Name = "other"
	renamed.Tags = []string{"prod"}
	assert.Equal(t, fp, renamed.Fingerprint())
}

func TestKnownTypes(t *testing.T) {
	assert.Contains(t, KnownTypes(), TypeObjectStore)
	assert.Contains(t, KnownTypes(), TypeChat)
	assert.Len(t, KnownTypes(), 4)
}
