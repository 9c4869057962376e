package remote

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/blobfetch/internal/cachekey"
	"github.com/any-hub/blobfetch/internal/codec"
	"github.com/any-hub/blobfetch/internal/fetcherr"
)

const rev = "0123456789abcdef0123456789abcdef01234567"

// fakeStream 在每次 Flush 时把本批请求行交给 respond，并以其返回值作为本批响应。
type fakeStream struct {
	pending  bytes.Buffer
	batches  [][]string
	respond  func(lines []string) []byte
	reader   *bufio.Reader
	closed   int
	commands []string
}

func (s *fakeStream) Write(p []byte) (int, error) { return s.pending.Write(p) }

func (s *fakeStream) Flush() error {
	lines := strings.Split(strings.TrimSuffix(s.pending.String(), "\n"), "\n")
	s.pending.Reset()
	s.batches = append(s.batches, lines)
	s.reader = bufio.NewReader(bytes.NewReader(s.respond(lines)))
	return nil
}

func (s *fakeStream) Reader() *bufio.Reader { return s.reader }

func (s *fakeStream) Close() error {
	s.closed++
	return nil
}

type fakePeer struct {
	stream *fakeStream
	err    error
}

func (p *fakePeer) CallStream(_ context.Context, command string) (Stream, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.stream.commands = append(p.stream.commands, command)
	return p.stream, nil
}

type memStore map[cachekey.CacheKey][]byte

func (m memStore) Write(key cachekey.CacheKey, data []byte) error {
	m[key] = append([]byte(nil), data...)
	return nil
}

type recordingPopulator struct {
	keys  []cachekey.CacheKey
	calls int
}

func (p *recordingPopulator) Populate(keys []cachekey.CacheKey) error {
	p.calls++
	p.keys = append(p.keys, keys...)
	return nil
}

func contentFor(line string) []byte {
	return []byte("blob:" + line)
}

// serveAll 为每个请求行返回 lz4 编码的内容。
func serveAll(t *testing.T) func([]string) []byte {
	c, err := codec.Lookup("lz4")
	require.NoError(t, err)
	return func(lines []string) []byte {
		var out bytes.Buffer
		for _, line := range lines {
			payload, err := c.Encode(contentFor(line))
			require.NoError(t, err)
			fmt.Fprintf(&out, "%d\n", len(payload))
			out.Write(payload)
		}
		return out.Bytes()
	}
}

func newMiss(path string) Miss {
	return Miss{Key: cachekey.CacheKeyFor("ns", path, rev), Path: path}
}

func newTestFetcher(t *testing.T, peer Peer, store BlobWriter, batch int) *Fetcher {
	t.Helper()
	f, err := NewFetcher(Options{Peer: peer, Store: store, BatchSize: batch})
	require.NoError(t, err)
	return f
}

func TestFetchWritesDecodedBlobs(t *testing.T) {
	stream := &fakeStream{respond: serveAll(t)}
	store := memStore{}
	pop := &recordingPopulator{}
	f := newTestFetcher(t, &fakePeer{stream: stream}, store, 0)

	misses := []Miss{newMiss("a.txt"), newMiss("dir/with space/b.txt")}
	entries := 0
	require.NoError(t, f.Fetch(context.Background(), misses, pop, func() { entries++ }))

	assert.Equal(t, []string{"getfiles"}, stream.commands)
	require.Len(t, stream.batches, 1)
	assert.Equal(t, []string{rev + "a.txt", rev + "dir/with space/b.txt"}, stream.batches[0])
	for _, m := range misses {
		assert.Equal(t, contentFor(rev+m.Path), store[m.Key])
	}
	assert.Equal(t, 2, entries)
	assert.Equal(t, 1, stream.closed)
	assert.Equal(t, 1, pop.calls)
	assert.Equal(t, []cachekey.CacheKey{misses[0].Key, misses[1].Key}, pop.keys)
}

func TestFetchBatchesRequests(t *testing.T) {
	stream := &fakeStream{respond: serveAll(t)}
	store := memStore{}
	f := newTestFetcher(t, &fakePeer{stream: stream}, store, 2)

	var misses []Miss
	for i := 0; i < 5; i++ {
		misses = append(misses, newMiss(fmt.Sprintf("file%d", i)))
	}
	require.NoError(t, f.Fetch(context.Background(), misses, nil, nil))

	require.Len(t, stream.batches, 3)
	assert.Len(t, stream.batches[0], 2)
	assert.Len(t, stream.batches[1], 2)
	assert.Len(t, stream.batches[2], 1)
	assert.Len(t, store, 5)
}

func TestFetchDefaultBatchSize(t *testing.T) {
	f := newTestFetcher(t, &fakePeer{stream: &fakeStream{}}, memStore{}, 0)
	assert.Equal(t, DefaultBatchSize, f.batchSize)
}

func TestFetchConnectionDropsBeforePayload(t *testing.T) {
	stream := &fakeStream{respond: func(lines []string) []byte {
		return []byte("5\n")
	}}
	store := memStore{}
	pop := &recordingPopulator{}
	f := newTestFetcher(t, &fakePeer{stream: stream}, store, 0)

	m := newMiss("k2")
	err := f.Fetch(context.Background(), []Miss{m}, pop, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fetcherr.ErrClosedEarly))
	assert.Empty(t, store, "no partial write")
	assert.Zero(t, pop.calls)
	assert.Equal(t, 1, stream.closed)
}

func TestFetchConnectionDropsBeforeLength(t *testing.T) {
	respond := serveAll(t)
	stream := &fakeStream{respond: func(lines []string) []byte {
		// 只回答第一个请求。
		return respond(lines[:1])
	}}
	store := memStore{}
	f := newTestFetcher(t, &fakePeer{stream: stream}, store, 0)

	err := f.Fetch(context.Background(), []Miss{newMiss("a"), newMiss("b")}, nil, nil)
	require.Error(t, err)
	assert.True(t, fetcherr.IsProtocol(err))
	assert.Contains(t, err.Error(), "error downloading file contents: connection closed early")
	assert.Len(t, store, 1)
}

func TestFetchRejectsBadLengthAndPayload(t *testing.T) {
	for name, reply := range map[string]string{
		"non_numeric": "five\nhello",
		"negative":    "-1\n",
		"overflow":    "99999999999999999999999\n",
		"huge":        "99999999999999999\n",
		"corrupt":     "3\nabc",
	} {
		t.Run(name, func(t *testing.T) {
			stream := &fakeStream{respond: func([]string) []byte { return []byte(reply) }}
			f := newTestFetcher(t, &fakePeer{stream: stream}, memStore{}, 0)
			err := f.Fetch(context.Background(), []Miss{newMiss("a")}, nil, nil)
			require.Error(t, err)
			assert.True(t, fetcherr.IsProtocol(err))
		})
	}
}

func TestFetchEnforcesMaxPayloadSize(t *testing.T) {
	stream := &fakeStream{respond: func([]string) []byte { return []byte("65\n") }}
	f, err := NewFetcher(Options{Peer: &fakePeer{stream: stream}, Store: memStore{}, MaxPayloadSize: 64})
	require.NoError(t, err)

	err = f.Fetch(context.Background(), []Miss{newMiss("a")}, nil, nil)
	require.Error(t, err)
	assert.True(t, fetcherr.IsProtocol(err))
	assert.Contains(t, err.Error(), "exceeds limit 64")
	assert.False(t, errors.Is(err, fetcherr.ErrClosedEarly))
}

func TestFetchRejectsUnframeablePaths(t *testing.T) {
	stream := &fakeStream{respond: serveAll(t)}
	f := newTestFetcher(t, &fakePeer{stream: stream}, memStore{}, 0)

	err := f.Fetch(context.Background(), []Miss{newMiss("bad\nname")}, nil, nil)
	require.Error(t, err)
	assert.True(t, fetcherr.IsProtocol(err))
	assert.Empty(t, stream.commands, "nothing may be sent")

	err = f.Fetch(context.Background(), []Miss{{Key: "short", Path: "x"}}, nil, nil)
	require.Error(t, err)
}

func TestFetchPeerUnavailable(t *testing.T) {
	f := newTestFetcher(t, &fakePeer{err: errors.New("ssh: connection refused")}, memStore{}, 0)
	err := f.Fetch(context.Background(), []Miss{newMiss("a")}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestFetchNothingToDo(t *testing.T) {
	f := newTestFetcher(t, &fakePeer{err: errors.New("must not dial")}, memStore{}, 0)
	assert.NoError(t, f.Fetch(context.Background(), nil, nil, nil))
}

func TestNewFetcherValidates(t *testing.T) {
	_, err := NewFetcher(Options{Store: memStore{}})
	assert.Error(t, err)
	_, err = NewFetcher(Options{Peer: &fakePeer{}})
	assert.Error(t, err)
}
