package app_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/gt"

	"SIOR/internal/app"
	"SIOR/internal/config"
	"SIOR/internal/session"
	"SIOR/internal/store"
	"SIOR/internal/triallog"
)

// pacedReader yields its keys one at a time with a pause before each, then EOF
type pacedReader struct {
	keys  []byte
	pause time.Duration
}

func (r *pacedReader) Read(p []byte) (int, error) {
	if len(r.keys) == 0 {
		return 0, io.EOF
	}
	time.Sleep(r.pause)
	p[0] = r.keys[0]
	r.keys = r.keys[1:]
	return 1, nil
}

// chunkReader yields each chunk whole after a pause, then EOF
type chunkReader struct {
	chunks []string
	pause  time.Duration
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	time.Sleep(r.pause)
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

// blockingReader never yields until closed
type blockingReader struct {
	once sync.Once
	done chan struct{}
}

func newBlockingReader() *blockingReader {
	return &blockingReader{done: make(chan struct{})}
}

func (r *blockingReader) Read([]byte) (int, error) {
	<-r.done
	return 0, io.EOF
}

func (r *blockingReader) Close() {
	r.once.Do(func() { close(r.done) })
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.MaxTrials = 1
	cfg.Seed = 3
	cfg.TickRateHz = 200
	cfg.Timing = config.TimingConfig{}
	cfg.Telemetry.Enabled = false
	return cfg
}

func TestRun_CompletesSession(t *testing.T) {
	cfg := testConfig(t)
	in := &pacedReader{keys: []byte(" wpwpwpwpwpwpwpwp"), pause: 30 * time.Millisecond}
	out := &syncBuffer{}

	a, err := app.New(cfg, app.WithIO(in, out))
	gt.NoError(t, err).Required()
	defer a.Close()

	gt.NoError(t, a.Run(context.Background()))

	sess := a.Session()
	gt.Equal(t, sess.Status, session.StatusFinished)
	gt.A(t, sess.Records).Length(1)
	gt.S(t, out.String()).Contains("Finished! Log written.")
	gt.S(t, out.String()).Contains("Log saved to: " + cfg.LogPath())

	f, err := os.Open(cfg.LogPath())
	gt.NoError(t, err).Required()
	rows, err := triallog.Decode(f)
	f.Close()
	gt.NoError(t, err)
	gt.A(t, rows).Length(1)
	gt.Equal(t, rows[0].Trial, 1)

	_, err = os.Stat(triallog.ArchivePath(sess.ID, cfg.ArchiveDir(), true))
	gt.NoError(t, err)

	a.Close()
	st, err := store.Open(cfg.StorePath(), nil)
	gt.NoError(t, err).Required()
	defer st.Close()
	loaded, err := st.LoadSession(context.Background(), sess.ID)
	gt.NoError(t, err).Required()
	gt.Equal(t, loaded.Status, session.StatusFinished)
	gt.A(t, loaded.Records).Length(1)
}

func TestRun_InputClosedAborts(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxTrials = 5
	in := &pacedReader{keys: []byte(" "), pause: 0}
	out := &syncBuffer{}

	a, err := app.New(cfg, app.WithIO(in, out))
	gt.NoError(t, err).Required()
	defer a.Close()

	gt.NoError(t, a.Run(context.Background()))
	gt.Equal(t, a.Session().Status, session.StatusAborted)
	gt.S(t, out.String()).Contains("Aborted.")

	_, err = os.Stat(cfg.LogPath())
	gt.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRun_ContextCancelAborts(t *testing.T) {
	cfg := testConfig(t)
	in := newBlockingReader()
	defer in.Close()

	a, err := app.New(cfg, app.WithIO(in, &syncBuffer{}))
	gt.NoError(t, err).Required()
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	gt.NoError(t, a.Run(ctx))
	gt.Equal(t, a.Session().Status, session.StatusAborted)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxTrials = 0

	_, err := app.New(cfg, app.WithIO(newBlockingReader(), io.Discard))
	gt.True(t, errors.Is(err, config.ErrInvalidConfig))
}

func TestRun_LogWriteFailureArchivesAborted(t *testing.T) {
	cfg := testConfig(t)
	// a directory where the log file should go makes the final rename fail
	gt.NoError(t, os.MkdirAll(cfg.LogPath(), 0o755))
	in := &pacedReader{keys: []byte(" wpwpwpwp"), pause: 30 * time.Millisecond}
	out := &syncBuffer{}

	a, err := app.New(cfg, app.WithIO(in, out))
	gt.NoError(t, err).Required()
	defer a.Close()

	gt.Error(t, a.Run(context.Background()))
	sess := a.Session()
	gt.Equal(t, sess.Status, session.StatusAborted)
	gt.S(t, out.String()).Contains("Failed to write log!")

	a.Close()
	st, err := store.Open(cfg.StorePath(), nil)
	gt.NoError(t, err).Required()
	defer st.Close()
	loaded, err := st.LoadSession(context.Background(), sess.ID)
	gt.NoError(t, err).Required()
	gt.Equal(t, loaded.Status, session.StatusAborted)
	gt.A(t, loaded.Records).Length(1)
}

func TestRun_ResponseBeforeInterruptCounts(t *testing.T) {
	cfg := testConfig(t)
	in := &chunkReader{chunks: []string{" ", "wp\x03"}, pause: 30 * time.Millisecond}
	out := &syncBuffer{}

	a, err := app.New(cfg, app.WithIO(in, out))
	gt.NoError(t, err).Required()
	defer a.Close()

	gt.NoError(t, a.Run(context.Background()))
	gt.Equal(t, a.Session().Status, session.StatusFinished)
	gt.A(t, a.Session().Records).Length(1)
}
