package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegisterRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		port int
	}{
		{"alice", 6001},
		{"bob", 1024},
		{"carol", 65535},
	}
	for _, c := range cases {
		payload := EncodeRegister(c.name, c.port)
		got, err := ParseRegister(payload)
		require.NoError(t, err)
		assert.Equal(t, c.name, got.Name)
		assert.Equal(t, c.port, got.TCPPort)
	}
}

func TestParseRegisterMalformed(t *testing.T) {
	bad := []string{
		"",
		"noport",
		",6001",
		"alice,",
		"alice,notanumber",
		"alice,80",
		"alice,70000",
	}
	for _, payload := range bad {
		_, err := ParseRegister(payload)
		if err != ErrMalformed {
			t.Errorf("ParseRegister(%q): expected ErrMalformed, got %v", payload, err)
		}
	}
}

func TestOfferRoundTrip(t *testing.T) {
	files := []string{"x.txt", "y.bin"}
	payload, err := EncodeOffer(files)
	require.NoError(t, err)
	got, err := ParseOffer(payload)
	require.NoError(t, err)
	assert.Equal(t, files, got)
}

func TestViewRoundTrip(t *testing.T) {
	v := NewView()
	v.Set(Key("x.txt", "alice"), "127.0.0.1", 6001)

	payload, err := EncodeView(v)
	require.NoError(t, err)

	decoded, err := ParseView(payload)
	require.NoError(t, err)

	ip, port, ok := decoded.Entry(Key("x.txt", "alice"))
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1", ip)
	assert.Equal(t, 6001, port)
}

func TestEmptyViewRoundTrip(t *testing.T) {
	payload, err := EncodeView(NewView())
	require.NoError(t, err)
	assert.Equal(t, "{}", string(payload))

	decoded, err := ParseView(payload)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestTransferFrameRoundTrip(t *testing.T) {
	payload := EncodeTransferFrame("x.txt", "bob")
	got, err := ParseTransferFrame(payload)
	require.NoError(t, err)
	assert.Equal(t, "x.txt", got.Filename)
	assert.Equal(t, "bob", got.Requester)
}

func TestRejectionWelcome(t *testing.T) {
	got := RejectionWelcome("alice")
	if got != "Client alice already registered" {
		t.Errorf("unexpected rejection message: %q", got)
	}
}
