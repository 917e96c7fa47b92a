package amt8000

import (
	"errors"
	"testing"

	"github.com/caarlos0/intelbras2mqtt/alarm"
	"github.com/stretchr/testify/require"
)

func TestMakePayload(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		require.Equal(t, []byte{0x00, 0x00, 0x8f, 0xfe, 0x00, 0x02, 0x0b, 0x4a, 0xcd}, makePayload(cmdStatus, nil))
	})

	t.Run("arm", func(t *testing.T) {
		require.Equal(
			t,
			[]byte{0x00, 0x00, 0x8f, 0xfe, 0x00, 0x04, 0x40, 0x1e, 0xff, 0x01, 0x2a},
			makePayload(cmdArm, []byte{allPartitions, subCmdArm}),
		)
	})
}

func TestMakeAuthPayload(t *testing.T) {
	b, err := makeAuthPayload("123456")
	require.NoError(t, err)
	require.Equal(t, []byte{
		0x00, 0x00, 0x8f, 0xfe, 0x00, 0x0a, 0xf0, 0xf0,
		0x02, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x10, 0x91,
	}, b)

	_, err = makeAuthPayload("12345")
	var cerr *alarm.ConfigError
	require.True(t, errors.As(err, &cerr))
}

func TestParseAuthResponse(t *testing.T) {
	require.NoError(t, parseAuthResponse(Frame{Command: cmdAuth, Payload: []byte{0}}))
	require.ErrorIs(t, parseAuthResponse(Frame{Command: cmdAuth, Payload: []byte{1}}), ErrInvalidPassword)
	for _, code := range []byte{2, 3, 4, 9} {
		require.Error(t, parseAuthResponse(Frame{Command: cmdAuth, Payload: []byte{code}}))
	}
	require.Error(t, parseAuthResponse(Frame{Command: cmdAuth}))
	require.Error(t, parseAuthResponse(Frame{Command: cmdStatus, Payload: []byte{0}}))
}

func TestDecode(t *testing.T) {
	authOK := []byte{0x8f, 0xfe, 0x00, 0x00, 0x00, 0x03, 0xf0, 0xf0, 0x00, 0x8d}

	t.Run("frame", func(t *testing.T) {
		f, n, err := Decode(append(authOK, 0x00))
		require.NoError(t, err)
		require.Equal(t, len(authOK), n)
		require.Equal(t, Frame{Command: cmdAuth, Payload: []byte{0x00}}, f)
	})

	t.Run("incomplete", func(t *testing.T) {
		for i := 0; i < len(authOK); i++ {
			_, n, err := Decode(authOK[:i])
			require.ErrorIs(t, err, ErrIncomplete)
			require.Zero(t, n)
		}
	})

	t.Run("bad checksum", func(t *testing.T) {
		b := append([]byte{}, authOK...)
		b[len(b)-1] = 0x00
		_, n, err := Decode(b)
		var ferr *alarm.FrameError
		require.True(t, errors.As(err, &ferr))
		require.Equal(t, "checksum mismatch", ferr.Reason)
		require.Positive(t, n)
	})

	t.Run("bad length", func(t *testing.T) {
		_, n, err := Decode([]byte{0x8f, 0xfe, 0x00, 0x00, 0xff, 0xff, 0x00})
		var ferr *alarm.FrameError
		require.True(t, errors.As(err, &ferr))
		require.Equal(t, 2, n)
	})
}

func TestScanner(t *testing.T) {
	var sc Scanner
	sc.Write([]byte{0x12, 0x34, 0x56})
	sc.Write([]byte{0x78, 0x9a, 0xbc, 0x8f, 0xfe, 0x00, 0x00, 0x00})
	sc.Write([]byte{0x04, 0x40, 0x1e, 0xff, 0x91, 0xba})

	_, err := sc.Next()
	var ferr *alarm.FrameError
	require.True(t, errors.As(err, &ferr))

	f, err := sc.Next()
	require.NoError(t, err)
	require.Equal(t, Frame{Command: cmdArm, Payload: []byte{0xff, 0x91}}, f)

	_, err = sc.Next()
	require.ErrorIs(t, err, ErrIncomplete)
}
