package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MimeLyc/contextual-book-translator/internal/translator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

type translateFunc func(ctx context.Context, prompt, text string) (string, error)

func (f translateFunc) Translate(ctx context.Context, prompt, text string) (string, error) {
	return f(ctx, prompt, text)
}

type memoryStore struct {
	mu      sync.Mutex
	records map[string]map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]map[string]string{}}
}

func (s *memoryStore) Append(_ context.Context, fp, title, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records[fp] == nil {
		s.records[fp] = map[string]string{}
	}
	if _, ok := s.records[fp][title]; !ok {
		s.records[fp][title] = text
	}
	return nil
}

func (s *memoryStore) record(fp string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[fp]
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Append(ctx context.Context, fp, title, text string) error {
	args := m.Called(ctx, fp, title, text)
	return args.Error(0)
}

func fastConfig() Config {
	return Config{
		Prompt:         "Translate into {target_language}.",
		TargetLanguage: language.SimplifiedChinese,
		MaxConcurrency: 2,
		MaxAttempts:    3,
		RetryDelay:     time.Millisecond,
		MaxRetryDelay:  5 * time.Millisecond,
	}
}

func makeJobs(fp string, n int) []TranslationJob {
	ret := make([]TranslationJob, 0, n)
	for i := 1; i <= n; i++ {
		ret = append(ret, TranslationJob{
			Fingerprint: fp,
			Title:       fmt.Sprintf("Chapter %d", i),
			Content:     fmt.Sprintf("text %d", i),
		})
	}
	return ret
}

func TestDispatch_BoundsConcurrencyGlobally(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	tr := translateFunc(func(ctx context.Context, _, text string) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return "T:" + text, nil
	})

	store := newMemoryStore()
	jobs := append(makeJobs("A", 5), makeJobs("B", 5)...)

	report, err := NewDispatcher(tr, store, fastConfig(), nil).Dispatch(context.Background(), jobs)
	require.NoError(t, err)

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Len(t, report.Translated, 10)
	assert.Empty(t, report.Failed)
	assert.Len(t, store.record("A"), 5)
	assert.Equal(t, "T:text 3", store.record("B")["Chapter 3"])
}

func TestDispatch_RendersPromptPerChapter(t *testing.T) {
	t.Parallel()

	var prompts sync.Map
	tr := translateFunc(func(_ context.Context, prompt, text string) (string, error) {
		prompts.Store(text, prompt)
		return "ok", nil
	})

	cfg := fastConfig()
	cfg.Prompt = "{source_language} -> {target_language}"
	job := TranslationJob{
		Fingerprint: "A",
		Title:       "Prologue",
		Content:     "The warriors gathered beneath the great oak as the moon rose over the silent forest.",
	}
	_, err := NewDispatcher(tr, newMemoryStore(), cfg, nil).Dispatch(context.Background(), []TranslationJob{job})
	require.NoError(t, err)

	got, ok := prompts.Load(job.Content)
	require.True(t, ok)
	assert.Equal(t, "English -> Simplified Chinese", got)
}

func TestDispatch_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	tr := translateFunc(func(context.Context, string, string) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("503 upstream")
		}
		return "done", nil
	})

	store := newMemoryStore()
	report, err := NewDispatcher(tr, store, fastConfig(), nil).Dispatch(context.Background(), makeJobs("A", 1))
	require.NoError(t, err)

	require.Len(t, report.Translated, 1)
	assert.Equal(t, 3, report.Translated[0].Attempts)
	assert.Equal(t, map[string]string{"Chapter 1": "done"}, store.record("A"))
}

func TestDispatch_ExhaustedRetriesAreReportedNotFatal(t *testing.T) {
	t.Parallel()

	tr := translateFunc(func(_ context.Context, _, text string) (string, error) {
		if text == "text 2" {
			return "", errors.New("connection reset")
		}
		return "ok", nil
	})

	store := newMemoryStore()
	report, err := NewDispatcher(tr, store, fastConfig(), nil).Dispatch(context.Background(), makeJobs("A", 3))
	require.NoError(t, err)

	require.Len(t, report.Failed, 1)
	assert.Equal(t, "Chapter 2", report.Failed[0].Job.Title)
	assert.Equal(t, 3, report.Failed[0].Attempts)
	assert.Len(t, report.Translated, 2)
	assert.NotContains(t, store.record("A"), "Chapter 2")
}

func TestDispatch_RejectedIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	tr := translateFunc(func(context.Context, string, string) (string, error) {
		calls.Add(1)
		return "", translator.Rejected(errors.New("too long"))
	})

	report, err := NewDispatcher(tr, newMemoryStore(), fastConfig(), nil).Dispatch(context.Background(), makeJobs("A", 1))
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDispatch_TerminalFailureAbortsRun(t *testing.T) {
	t.Parallel()

	tr := translateFunc(func(ctx context.Context, _, text string) (string, error) {
		if text == "text 1" {
			return "", translator.Terminal(errors.New("401 invalid api key"))
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
			return "late", nil
		}
	})

	store := newMemoryStore()
	start := time.Now()
	_, err := NewDispatcher(tr, store, fastConfig(), nil).Dispatch(context.Background(), makeJobs("A", 6))
	require.Error(t, err)
	assert.ErrorIs(t, err, translator.ErrTerminal)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, store.record("A"))
}

func TestDispatch_CallTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	tr := translateFunc(func(ctx context.Context, _, _ string) (string, error) {
		calls.Add(1)
		<-ctx.Done()
		return "", ctx.Err()
	})

	cfg := fastConfig()
	cfg.MaxAttempts = 2
	cfg.CallTimeout = 10 * time.Millisecond

	report, err := NewDispatcher(tr, newMemoryStore(), cfg, nil).Dispatch(context.Background(), makeJobs("A", 1))
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, int32(2), calls.Load())
	assert.ErrorIs(t, report.Failed[0].Err, context.DeadlineExceeded)
}

func TestDispatch_CacheWriteFailureIsFatal(t *testing.T) {
	t.Parallel()

	tr := translateFunc(func(context.Context, string, string) (string, error) { return "ok", nil })
	store := &mockStore{}
	store.On("Append", mock.Anything, "A", "Chapter 1", "ok").Return(errors.New("disk full"))

	_, err := NewDispatcher(tr, store, fastConfig(), nil).Dispatch(context.Background(), makeJobs("A", 1))
	assert.ErrorIs(t, err, ErrCacheWrite)
	store.AssertExpectations(t)
}

func TestDispatch_CancellationAbandonsInFlightCalls(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 10)
	tr := translateFunc(func(ctx context.Context, _, _ string) (string, error) {
		started <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	store := newMemoryStore()
	done := make(chan error, 1)
	go func() {
		_, err := NewDispatcher(tr, store, fastConfig(), nil).Dispatch(ctx, makeJobs("A", 4))
		done <- err
	}()

	<-started
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not stop after cancellation")
	}
	assert.Empty(t, store.record("A"))
}

func TestDispatch_NoJobs(t *testing.T) {
	report, err := NewDispatcher(nil, nil, Config{}, nil).Dispatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Translated)
}

func TestReport_Chars(t *testing.T) {
	r := &Report{Translated: []Result{{Chars: 3}, {Chars: 4}}}
	assert.Equal(t, 7, r.Chars())
}
