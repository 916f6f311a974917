package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/postpilot/postpilot-backend/internal/model"
)

type stubLister struct {
	campaigns []*model.Campaign
	err       error
}

func (s *stubLister) ListRunnable() ([]*model.Campaign, error) { return s.campaigns, s.err }

type recordingRunner struct {
	mu      sync.Mutex
	ran     []int
	block   chan struct{} // if set, Run waits on it
	inRun   int
	maxSeen int
}

func (r *recordingRunner) Run(ctx context.Context, c *model.Campaign) {
	r.mu.Lock()
	r.ran = append(r.ran, c.ID)
	r.inRun++
	if r.inRun > r.maxSeen {
		r.maxSeen = r.inRun
	}
	r.mu.Unlock()

	if r.block != nil {
		<-r.block
	}

	r.mu.Lock()
	r.inRun--
	r.mu.Unlock()
}

func (r *recordingRunner) runs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ran...)
}

func newTestScheduler(t *testing.T, lister *stubLister, run *recordingRunner) (*Scheduler, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &Scheduler{
		Campaigns: lister,
		Runner:    run,
		Locker:    NewLocker(rdb, time.Minute),
		Log:       zap.NewNop(),
	}, mr
}

func campaigns(ids ...int) []*model.Campaign {
	out := make([]*model.Campaign, 0, len(ids))
	for _, id := range ids {
		out = append(out, &model.Campaign{ID: id, Status: model.CampaignStatusActive})
	}
	return out
}

func TestTickRunsEveryRunnableCampaign(t *testing.T) {
	run := &recordingRunner{}
	s, _ := newTestScheduler(t, &stubLister{campaigns: campaigns(1, 2, 3)}, run)

	s.Tick(context.Background())

	assert.ElementsMatch(t, []int{1, 2, 3}, run.runs())
}

func TestTickSkipsLeasedCampaign(t *testing.T) {
	run := &recordingRunner{}
	s, _ := newTestScheduler(t, &stubLister{campaigns: campaigns(1, 2)}, run)

	// Another instance holds campaign 1's lease.
	release, ok, err := s.Locker.Acquire(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	s.Tick(context.Background())

	assert.Equal(t, []int{2}, run.runs(), "leased campaign is skipped, the rest still run")
}

func TestTickReleasesLeasesAfterRun(t *testing.T) {
	run := &recordingRunner{}
	s, _ := newTestScheduler(t, &stubLister{campaigns: campaigns(1)}, run)

	s.Tick(context.Background())
	s.Tick(context.Background())

	assert.Equal(t, []int{1, 1}, run.runs(), "lease released after each run")
}

func TestTickBoundsConcurrency(t *testing.T) {
	run := &recordingRunner{block: make(chan struct{})}
	s, _ := newTestScheduler(t, &stubLister{campaigns: campaigns(1, 2, 3, 4, 5)}, run)
	s.MaxConcurrent = 2

	done := make(chan struct{})
	go func() {
		s.Tick(context.Background())
		close(done)
	}()

	// Let the first runs start, then drain them.
	time.Sleep(50 * time.Millisecond)
	close(run.block)
	<-done

	run.mu.Lock()
	defer run.mu.Unlock()
	assert.LessOrEqual(t, run.maxSeen, 2, "no more than MaxConcurrent runs in flight")
	assert.Len(t, run.ran, 5)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	run := &recordingRunner{}
	s, _ := newTestScheduler(t, &stubLister{campaigns: campaigns(1)}, run)
	s.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
	assert.GreaterOrEqual(t, len(run.runs()), 2, "immediate tick plus at least one interval tick")
}
