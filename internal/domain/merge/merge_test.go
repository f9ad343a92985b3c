package merge_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pacelog/pacelog/internal/adapters/store"
	"github.com/pacelog/pacelog/internal/domain/dedupe"
	"github.com/pacelog/pacelog/internal/domain/merge"
	"github.com/pacelog/pacelog/internal/domain/model"
	"github.com/pacelog/pacelog/pkg/clock"
	"github.com/pacelog/pacelog/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	m.Run()
}

func f(v float64) *float64 { return &v }
func seq(v int64) *int64   { return &v }

type capturingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (c *capturingEmitter) Emit(name string, payload map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, name)
}

func (c *capturingEmitter) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

// gateStore parks the first transaction at its entry until gate is
// closed, so a test can interleave a second call at that point.
type gateStore struct {
	store.Store
	entered chan struct{}
	gate    chan struct{}
	first   sync.Once
}

func newGateStore(inner store.Store) *gateStore {
	return &gateStore{
		Store:   inner,
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
}

func (g *gateStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	parked := false
	g.first.Do(func() { parked = true })
	if parked {
		close(g.entered)
		<-g.gate
	}
	return g.Store.RunTransaction(ctx, fn)
}

func startEvent(eventID, sessionID string, ts time.Time) *model.Event {
	return &model.Event{
		EventID:   eventID,
		SessionID: sessionID,
		UserID:    "user-1",
		Type:      model.EventStart,
		Timestamp: ts,
	}
}

func updateEvent(eventID, sessionID string, ts time.Time, m *model.EventMetrics, s *int64) *model.Event {
	return &model.Event{
		EventID:       eventID,
		SessionID:     sessionID,
		UserID:        "user-1",
		Type:          model.EventUpdate,
		Timestamp:     ts,
		Metrics:       m,
		EventSequence: s,
	}
}

func TestMergeLifecycle(t *testing.T) {
	Convey("Given a merge engine over an in-memory store", t, func() {
		ctx := context.Background()
		st := store.NewMemStore()
		base := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
		clk := clock.NewManual(base)
		sink := &capturingEmitter{}
		eng := merge.NewEngine(st, merge.WithClock(clk), merge.WithEmitter(sink))

		Convey("When a start event arrives for a new session", func() {
			res, err := eng.MergeEvent(ctx, startEvent("evt-1", "sess-1", base))

			Convey("Then a session should be created", func() {
				So(err, ShouldBeNil)
				So(res.Status, ShouldEqual, model.MergeStatusSuccess)
				So(res.SessionID, ShouldEqual, "sess-1")
				So(res.SessionStatus, ShouldEqual, model.StatusActive)

				var sess model.Session
				So(st.Get(ctx, "session/sess-1", &sess), ShouldBeNil)
				So(sess.Version, ShouldEqual, 1)
				So(sess.StartTime.Equal(base), ShouldBeTrue)
			})

			Convey("And the event document should be permanent with a server timestamp", func() {
				So(err, ShouldBeNil)
				var ev model.Event
				So(st.Get(ctx, "event/evt-1", &ev), ShouldBeNil)
				So(ev.ServerTimestamp.Equal(base), ShouldBeTrue)
			})

			Convey("And an event_ingested signal should be emitted", func() {
				So(err, ShouldBeNil)
				So(sink.names(), ShouldContain, "event_ingested")
			})
		})

		Convey("When a non-start event arrives for a nonexistent session", func() {
			_, err := eng.MergeEvent(ctx, updateEvent("evt-2", "ghost", base, nil, nil))

			Convey("Then the merge should fail with ErrSessionNotFound", func() {
				So(errors.Is(err, merge.ErrSessionNotFound), ShouldBeTrue)
			})

			Convey("And no event document should exist", func() {
				var ev model.Event
				So(errors.Is(st.Get(ctx, "event/evt-2", &ev), store.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a full lifecycle runs", func() {
			_, err := eng.MergeEvent(ctx, startEvent("evt-s", "sess-2", base))
			So(err, ShouldBeNil)

			clk.Advance(5 * time.Minute)
			_, err = eng.MergeEvent(ctx, updateEvent("evt-u", "sess-2", base.Add(5*time.Minute),
				&model.EventMetrics{Calories: f(40), Distance: f(1200), HeartRate: f(130), Duration: f(300)}, seq(1)))
			So(err, ShouldBeNil)

			clk.Advance(5 * time.Minute)
			end := &model.Event{
				EventID: "evt-e", SessionID: "sess-2", UserID: "user-1",
				Type: model.EventEnd, Timestamp: base.Add(10 * time.Minute), EventSequence: seq(2),
			}
			res, err := eng.MergeEvent(ctx, end)

			Convey("Then the session should complete with derived duration", func() {
				So(err, ShouldBeNil)
				So(res.SessionStatus, ShouldEqual, model.StatusCompleted)
				So(res.Metrics.Duration, ShouldEqual, 600)
				So(res.Metrics.Calories, ShouldEqual, 40)
				So(*res.Metrics.Distance, ShouldEqual, 1200)
			})

			Convey("And the version should count every merge", func() {
				var sess model.Session
				So(st.Get(ctx, "session/sess-2", &sess), ShouldBeNil)
				So(sess.Version, ShouldEqual, 3)
			})
		})
	})
}

func TestMergeDuplicates(t *testing.T) {
	Convey("Given a merge engine with a dedupe cache", t, func() {
		ctx := context.Background()
		st := store.NewMemStore()
		base := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
		clk := clock.NewManual(base)
		sink := &capturingEmitter{}
		eng := merge.NewEngine(st, merge.WithClock(clk), merge.WithEmitter(sink),
			merge.WithCache(dedupe.NewRecentCache()))

		Convey("When the same eventId is merged twice", func() {
			res1, err1 := eng.MergeEvent(ctx, startEvent("evt-1", "sess-1", base))
			res2, err2 := eng.MergeEvent(ctx, startEvent("evt-1", "sess-1", base))

			Convey("Then the second merge should report already_processed", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(res1.Status, ShouldEqual, model.MergeStatusSuccess)
				So(res2.Status, ShouldEqual, model.MergeStatusAlreadyProcessed)
				So(res2.Warning, ShouldNotBeEmpty)
			})

			Convey("And a duplicate_event signal should be emitted", func() {
				So(sink.names(), ShouldContain, "duplicate_event")
			})

			Convey("And the session should have been touched exactly once", func() {
				var sess model.Session
				So(st.Get(ctx, "session/sess-1", &sess), ShouldBeNil)
				So(sess.Version, ShouldEqual, 1)
			})
		})

		Convey("When the duplicate arrives without cache help", func() {
			// A second engine with a cold cache over the same store
			// models a process restart.
			res1, err1 := eng.MergeEvent(ctx, startEvent("evt-2", "sess-2", base))
			cold := merge.NewEngine(st, merge.WithClock(clk), merge.WithCache(dedupe.NewRecentCache()))
			res2, err2 := cold.MergeEvent(ctx, startEvent("evt-2", "sess-2", base))

			Convey("Then the store-level check should catch it", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(res1.Status, ShouldEqual, model.MergeStatusSuccess)
				So(res2.Status, ShouldEqual, model.MergeStatusAlreadyProcessed)
			})
		})

		Convey("When a merge with the id failed", func() {
			// A failed merge must leave no trace in the cache; the id is
			// recorded only once its transaction commits.
			_, err := eng.MergeEvent(ctx, updateEvent("evt-3", "missing", base, nil, nil))
			So(err, ShouldNotBeNil)

			_, err = eng.MergeEvent(ctx, startEvent("evt-s3", "missing", base))
			So(err, ShouldBeNil)
			res, err := eng.MergeEvent(ctx, updateEvent("evt-3", "missing", base.Add(time.Second), nil, seq(1)))

			Convey("Then the retry should succeed as a fresh event", func() {
				So(err, ShouldBeNil)
				So(res.Status, ShouldEqual, model.MergeStatusSuccess)
			})
		})

		Convey("When the same id races an in-flight uncommitted merge", func() {
			// The first attempt is parked at its transaction boundary,
			// after the cache lookup. The second attempt must not see
			// the id as a duplicate: nothing has committed yet, and the
			// first attempt is going to fail.
			gated := newGateStore(st)
			racer := merge.NewEngine(gated, merge.WithClock(clk), merge.WithEmitter(sink),
				merge.WithCache(dedupe.NewRecentCache()))

			errA := make(chan error, 1)
			go func() {
				_, err := racer.MergeEvent(ctx, updateEvent("evt-4", "ghost", base, nil, nil))
				errA <- err
			}()
			<-gated.entered

			resB, errB := racer.MergeEvent(ctx, updateEvent("evt-4", "ghost", base, nil, nil))
			close(gated.gate)

			Convey("Then neither attempt should claim the event was recorded", func() {
				So(errB, ShouldNotBeNil)
				So(errors.Is(errB, merge.ErrSessionNotFound), ShouldBeTrue)
				So(resB, ShouldBeNil)
				So(errors.Is(<-errA, merge.ErrSessionNotFound), ShouldBeTrue)

				var stored model.Event
				So(errors.Is(st.Get(ctx, "event/evt-4", &stored), store.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestMergeAggregationProperties(t *testing.T) {
	Convey("Given an active session", t, func() {
		ctx := context.Background()
		st := store.NewMemStore()
		base := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
		clk := clock.NewManual(base)
		eng := merge.NewEngine(st, merge.WithClock(clk))
		_, err := eng.MergeEvent(ctx, startEvent("evt-s", "sess-1", base))
		So(err, ShouldBeNil)

		Convey("When accepted calorie deltas arrive", func() {
			deltas := []float64{10, 20, 5, 15}
			for i, c := range deltas {
				ev := updateEvent("evt-c"+string(rune('0'+i)), "sess-1", base.Add(time.Duration(i+1)*time.Minute),
					&model.EventMetrics{Calories: f(c)}, seq(int64(i+1)))
				_, err := eng.MergeEvent(ctx, ev)
				So(err, ShouldBeNil)
			}

			Convey("Then the stored calories should be the sum", func() {
				var sess model.Session
				So(st.Get(ctx, "session/sess-1", &sess), ShouldBeNil)
				So(sess.Metrics.CaloriesBurned, ShouldAlmostEqual, 50)
			})
		})

		Convey("When distances including a regression arrive", func() {
			values := []float64{500, 1500, 1400}
			for i, d := range values {
				ev := updateEvent("evt-d"+string(rune('0'+i)), "sess-1", base.Add(time.Duration(i+1)*time.Minute),
					&model.EventMetrics{Distance: f(d)}, seq(int64(i+1)))
				_, err := eng.MergeEvent(ctx, ev)
				So(err, ShouldBeNil)
			}

			Convey("Then the stored distance should be the maximum", func() {
				var sess model.Session
				So(st.Get(ctx, "session/sess-1", &sess), ShouldBeNil)
				So(*sess.Metrics.Distance, ShouldEqual, 1500)
			})
		})

		Convey("When two weighted heart-rate readings arrive", func() {
			_, err := eng.MergeEvent(ctx, updateEvent("evt-h1", "sess-1", base.Add(time.Minute),
				&model.EventMetrics{HeartRate: f(110), Duration: f(60)}, seq(1)))
			So(err, ShouldBeNil)
			_, err = eng.MergeEvent(ctx, updateEvent("evt-h2", "sess-1", base.Add(2*time.Minute),
				&model.EventMetrics{HeartRate: f(170), Duration: f(30)}, seq(2)))
			So(err, ShouldBeNil)

			Convey("Then the average should be duration-weighted", func() {
				var sess model.Session
				So(st.Get(ctx, "session/sess-1", &sess), ShouldBeNil)
				So(*sess.Metrics.HeartRateAvg, ShouldAlmostEqual, (110.0*60+170*30)/90.0, 1e-9)
			})
		})
	})
}

func TestMergeOutOfOrder(t *testing.T) {
	Convey("Given a session with a sequence watermark of 3", t, func() {
		ctx := context.Background()
		st := store.NewMemStore()
		base := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
		clk := clock.NewManual(base)
		eng := merge.NewEngine(st, merge.WithClock(clk))

		_, err := eng.MergeEvent(ctx, startEvent("evt-s", "sess-1", base))
		So(err, ShouldBeNil)
		_, err = eng.MergeEvent(ctx, updateEvent("evt-3", "sess-1", base.Add(3*time.Minute),
			&model.EventMetrics{Calories: f(30)}, seq(3)))
		So(err, ShouldBeNil)

		Convey("When an event with sequence 2 arrives late", func() {
			res, err := eng.MergeEvent(ctx, updateEvent("evt-2", "sess-1", base.Add(2*time.Minute),
				&model.EventMetrics{Calories: f(99)}, seq(2)))

			Convey("Then the event should be stored but flagged", func() {
				So(err, ShouldBeNil)
				So(res.OutOfOrder, ShouldBeTrue)
				So(res.RequiresReconciliation, ShouldBeTrue)

				var ev model.Event
				So(st.Get(ctx, "event/evt-2", &ev), ShouldBeNil)
				So(ev.OutOfOrder, ShouldBeTrue)
			})

			Convey("And its metrics should not be folded in", func() {
				So(err, ShouldBeNil)
				var sess model.Session
				So(st.Get(ctx, "session/sess-1", &sess), ShouldBeNil)
				So(sess.Metrics.CaloriesBurned, ShouldEqual, 30)
				So(sess.RequiresReconciliation, ShouldBeTrue)
				So(sess.ReconciliationReason, ShouldEqual, model.ReasonOutOfOrder)
			})

			Convey("And the watermark should keep the highest seen values", func() {
				So(err, ShouldBeNil)
				var sess model.Session
				So(st.Get(ctx, "session/sess-1", &sess), ShouldBeNil)
				So(*sess.LastEventSequence, ShouldEqual, 3)
			})
		})
	})
}

func TestMergeConcurrentStarts(t *testing.T) {
	Convey("Given two start events racing for one session", t, func() {
		ctx := context.Background()
		st := store.NewMemStore()
		base := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
		eng := merge.NewEngine(st, merge.WithClock(clock.NewManual(base)))

		var wg sync.WaitGroup
		results := make([]*model.MergeResult, 2)
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				ev := startEvent("evt-start-"+string(rune('a'+n)), "sess-race", base)
				results[n], errs[n] = eng.MergeEvent(ctx, ev)
			}(i)
		}
		wg.Wait()

		Convey("Then exactly one session should exist", func() {
			var sess model.Session
			So(st.Get(ctx, "session/sess-race", &sess), ShouldBeNil)
			So(sess.SessionID, ShouldEqual, "sess-race")
		})

		Convey("And both event documents should have been recorded", func() {
			// The store serializes the transactions: the second start
			// merges into the session the first one created.
			So(errs[0], ShouldBeNil)
			So(errs[1], ShouldBeNil)
			var ev model.Event
			So(st.Get(ctx, "event/evt-start-a", &ev), ShouldBeNil)
			So(st.Get(ctx, "event/evt-start-b", &ev), ShouldBeNil)
		})
	})
}
