package daemon

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/blobfetch/internal/cachekey"
	"github.com/any-hub/blobfetch/internal/fetcherr"
)

type recordingWriter struct {
	bytes.Buffer
	closed bool
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func newScripted(reply string) (*pipeChannel, *recordingWriter, *int) {
	in := &recordingWriter{}
	waits := 0
	ch := NewPipe(in, strings.NewReader(reply), func() error {
		waits++
		return nil
	}).(*pipeChannel)
	return ch, in, &waits
}

func TestRequestNoMisses(t *testing.T) {
	ch, in, _ := newScripted("0\n")
	keys := []cachekey.CacheKey{"ns/aa/bb/1", "ns/aa/bb/2", "ns/cc/dd/3"}

	misses, err := ch.Request(keys, nil)
	require.NoError(t, err)
	assert.Empty(t, misses)
	assert.Equal(t, "get\n3\nns/aa/bb/1\nns/aa/bb/2\nns/cc/dd/3\n", in.String())
}

func TestRequestCollectsMissesAndHits(t *testing.T) {
	ch, _, _ := newScripted("_hits_x_2\nk2\n_hits_y_3\nk4\n0\n")
	keys := []cachekey.CacheKey{"k1", "k2", "k3", "k4", "k5", "k6", "k7"}

	var reported []int
	misses, err := ch.Request(keys, func(hits int) { reported = append(reported, hits) })
	require.NoError(t, err)
	assert.Equal(t, []cachekey.CacheKey{"k2", "k4"}, misses)
	assert.Equal(t, []int{2, 5}, reported)
}

func TestRequestClosedEarly(t *testing.T) {
	for name, reply := range map[string]string{
		"eof":        "k2\n",
		"empty":      "",
		"blank_line": "k2\n\n0\n",
		"half_line":  "k2\nk3",
	} {
		t.Run(name, func(t *testing.T) {
			ch, _, _ := newScripted(reply)
			misses, err := ch.Request([]cachekey.CacheKey{"k1", "k2", "k3"}, nil)
			assert.Nil(t, misses)
			require.Error(t, err)
			assert.True(t, errors.Is(err, fetcherr.ErrClosedEarly))
			assert.True(t, fetcherr.IsProtocol(err))
		})
	}
}

func TestRequestMalformedHits(t *testing.T) {
	ch, _, _ := newScripted("_hits_x_many\n0\n")
	_, err := ch.Request([]cachekey.CacheKey{"k1"}, nil)
	require.Error(t, err)
	assert.True(t, fetcherr.IsProtocol(err))
	assert.False(t, errors.Is(err, fetcherr.ErrClosedEarly))
}

func TestRequestAfterProtocolErrorFailsFast(t *testing.T) {
	ch, in, _ := newScripted("_hits_x_bad\n0\nk1\n0\n")
	_, err := ch.Request([]cachekey.CacheKey{"k1"}, nil)
	require.Error(t, err)
	sent := in.Len()

	misses, err := ch.Request([]cachekey.CacheKey{"k1"}, nil)
	assert.Nil(t, misses)
	require.Error(t, err, "leftover reply must not be read as an answer")
	assert.True(t, fetcherr.IsProtocol(err))
	assert.Equal(t, sent, in.Len(), "no request is sent on a broken channel")
	assert.Error(t, ch.Populate([]cachekey.CacheKey{"k1"}))
}

func TestParseHitsVariants(t *testing.T) {
	n, err := parseHits("_hits_ignored_7")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = parseHits("_hits_4_")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = parseHits("_hits_")
	assert.Error(t, err)
}

func TestPopulateAndClose(t *testing.T) {
	ch, in, waits := newScripted("")

	require.NoError(t, ch.Populate(nil))
	assert.Empty(t, in.String(), "empty populate must not touch the pipe")

	require.NoError(t, ch.Populate([]cachekey.CacheKey{"k1", "k2"}))
	assert.Equal(t, "set\n2\nk1\nk2\n", in.String())

	require.NoError(t, ch.Close())
	assert.True(t, strings.HasSuffix(in.String(), "exit\n"))
	assert.True(t, in.closed)
	assert.Equal(t, 1, *waits)

	require.NoError(t, ch.Close())
	assert.Equal(t, 1, *waits, "close must be idempotent")

	_, err := ch.Request([]cachekey.CacheKey{"k1"}, nil)
	assert.Error(t, err)
}

func TestRequestWriteFailure(t *testing.T) {
	pr, pw := io.Pipe()
	pr.Close()
	ch := NewPipe(pw, strings.NewReader("0\n"), nil)

	_, err := ch.Request([]cachekey.CacheKey{"k1"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrClosedPipe))
}

func TestNullChannelMissesEverything(t *testing.T) {
	ch, err := Dial(Options{})
	require.NoError(t, err)

	keys := []cachekey.CacheKey{"k1", "k2"}
	misses, err := ch.Request(keys, func(int) { t.Fatalf("null channel reports no hits") })
	require.NoError(t, err)
	assert.Equal(t, keys, misses)

	misses[0] = "mutated"
	assert.Equal(t, cachekey.CacheKey("k1"), keys[0], "misses must not alias the request")

	assert.NoError(t, ch.Populate(keys))
	assert.NoError(t, ch.Close())
	assert.NoError(t, ch.Close())
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'/var/cache'`, ShellQuote("/var/cache"))
	assert.Equal(t, `'it'\''s'`, ShellQuote("it's"))
}
