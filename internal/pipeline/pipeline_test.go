package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type putCall struct {
	key         string
	contentType string
	data        []byte
}

type fakeStore struct {
	mu      sync.Mutex
	puts    []putCall
	failAt  int // 1-based index of the put that should fail; 0 = never
	failErr error
}

func (f *fakeStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && len(f.puts)+1 == f.failAt {
		return f.failErr
	}
	f.puts = append(f.puts, putCall{key: key, contentType: contentType, data: data})
	return nil
}

type fakeSink struct {
	keys []string
}

func (f *fakeSink) EnqueueOrphan(ctx context.Context, key string) error {
	f.keys = append(f.keys, key)
	return nil
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8((x + y) % 256), G: uint8(x % 256), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}))
	return buf.Bytes()
}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestProcessSuccess(t *testing.T) {
	store := &fakeStore{}
	p := New(store, WithClock(fixedClock(1700000000000)))

	res, err := p.Process(context.Background(), Upload{
		OriginalName: "vacation pic.jpg",
		ContentType:  "image/jpeg",
		Data:         testJPEG(t, 2000, 1500),
	})
	require.NoError(t, err)

	require.Equal(t, "full/1700000000000-vacation_pic.webp", res.FullKey)
	require.Equal(t, "thumbnails/1700000000000-vacation_pic.webp", res.ThumbKey)
	require.Equal(t, 1080, res.Width)
	require.Equal(t, 810, res.Height)
	require.Positive(t, res.Bytes)

	require.Len(t, store.puts, 2)
	require.Equal(t, res.FullKey, store.puts[0].key)
	require.Equal(t, res.ThumbKey, store.puts[1].key)
	for _, put := range store.puts {
		require.Equal(t, "image/webp", put.contentType)
	}

	// The stored objects really are the resized renditions.
	fullCfg, _, err := image.DecodeConfig(bytes.NewReader(store.puts[0].data))
	require.NoError(t, err)
	require.Equal(t, 1080, fullCfg.Width)

	thumbCfg, _, err := image.DecodeConfig(bytes.NewReader(store.puts[1].data))
	require.NoError(t, err)
	require.Equal(t, 300, thumbCfg.Width)
}

func TestProcessOwnerScopedKeys(t *testing.T) {
	store := &fakeStore{}
	p := New(store, WithClock(fixedClock(1700000000000)))

	res, err := p.Process(context.Background(), Upload{
		OriginalName: "avatar.png",
		ContentType:  "image/png",
		Data:         testJPEG(t, 400, 400),
		OwnerID:      "user-7",
	})
	require.NoError(t, err)

	require.Regexp(t, regexp.MustCompile(`^users/user-7/1700000000000-avatar-[0-9a-f]{8}\.full\.webp$`), res.FullKey)
	require.Regexp(t, regexp.MustCompile(`^users/user-7/1700000000000-avatar-[0-9a-f]{8}\.thumb\.webp$`), res.ThumbKey)
}

func TestProcessEmptyUploadSkipsStorage(t *testing.T) {
	store := &fakeStore{}
	p := New(store)

	_, err := p.Process(context.Background(), Upload{OriginalName: "x.png"})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrEmptyUpload)

	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, StageValidation, se.Stage)
	require.Empty(t, store.puts)
	require.True(t, ClientError(err))
}

func TestProcessRejectedTypeSkipsStorage(t *testing.T) {
	store := &fakeStore{}
	p := New(store)

	_, err := p.Process(context.Background(), Upload{
		OriginalName: "report.pdf",
		ContentType:  "application/pdf",
		Data:         []byte("%PDF-1.4"),
	})
	require.ErrorIs(t, err, ErrUnsupportedType)
	require.Empty(t, store.puts)
}

func TestProcessUndecodableBytes(t *testing.T) {
	store := &fakeStore{}
	p := New(store)

	_, err := p.Process(context.Background(), Upload{
		OriginalName: "broken.jpg",
		ContentType:  "image/jpeg",
		Data:         []byte("not actually a jpeg"),
	})
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	// Both transcodes fail on the same bytes; either stage may be reported.
	require.Contains(t, []Stage{StageTranscodeFull, StageTranscodeThumb}, se.Stage)
	require.Empty(t, store.puts)
	require.True(t, ClientError(err))
}

func TestProcessThumbnailStoreFailureLeavesFull(t *testing.T) {
	boom := errors.New("bucket unavailable")
	store := &fakeStore{failAt: 2, failErr: boom}
	sink := &fakeSink{}
	p := New(store, WithClock(fixedClock(1700000000000)), WithOrphanSink(sink))

	_, err := p.Process(context.Background(), Upload{
		OriginalName: "pic.jpg",
		ContentType:  "image/jpeg",
		Data:         testJPEG(t, 1200, 900),
	})
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, StageStoreThumb, se.Stage)
	require.ErrorIs(t, err, boom)
	require.False(t, ClientError(err))

	// The full derivative stays persisted; only its key reaches the sink.
	require.Len(t, store.puts, 1)
	require.Equal(t, "full/1700000000000-pic.webp", store.puts[0].key)
	require.Equal(t, []string{"full/1700000000000-pic.webp"}, sink.keys)
}

func TestProcessFullStoreFailure(t *testing.T) {
	boom := errors.New("put refused")
	store := &fakeStore{failAt: 1, failErr: boom}
	sink := &fakeSink{}
	p := New(store, WithOrphanSink(sink))

	_, err := p.Process(context.Background(), Upload{
		OriginalName: "pic.jpg",
		ContentType:  "image/jpeg",
		Data:         testJPEG(t, 600, 400),
	})
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, StageStoreFull, se.Stage)

	// Nothing was persisted, so nothing needs cleanup.
	require.Empty(t, store.puts)
	require.Empty(t, sink.keys)
}

func TestProcessRespectsConfiguredCap(t *testing.T) {
	store := &fakeStore{}
	p := New(store, WithMaxUploadBytes(1024))

	_, err := p.Process(context.Background(), Upload{
		OriginalName: "big.jpg",
		ContentType:  "image/jpeg",
		Data:         testJPEG(t, 800, 600),
	})
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	require.Empty(t, store.puts)
}
