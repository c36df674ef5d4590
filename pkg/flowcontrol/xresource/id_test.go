package xresource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildID(t *testing.T) {
	assert.Equal(t, "^192.168.1.1^^xservice^", BuildID("", "192.168.1.1", "", "xservice", ""))
	assert.Equal(t, "^^_global^^", GlobalID)
	assert.Equal(t, "^^^service_default^", ServiceDefaultID)
	assert.Equal(t, "^^^^", BuildID("", "", "", "", ""))

	c := Components{App: "app", Service: "svc", Path: "/p"}
	assert.Equal(t, "app^^^svc^/p", c.ID())
	assert.Equal(t, "^^^svc^", c.ServiceID())
	assert.Equal(t, "^^^svc^/p", c.APIID())
}

func TestParseID(t *testing.T) {
	c, err := ParseID("app^10.0.0.1^n^svc^/a/b")
	require.NoError(t, err)
	assert.Equal(t, Components{App: "app", IP: "10.0.0.1", Node: "n", Service: "svc", Path: "/a/b"}, c)
	assert.Equal(t, "app^10.0.0.1^n^svc^/a/b", c.ID())

	for _, bad := range []string{"", "a^b", "a^b^c^d^e^f"} {
		_, err := ParseID(bad)
		assert.ErrorIs(t, err, ErrInvalidID, bad)
	}
}
