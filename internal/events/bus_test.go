package events

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"artificer/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func drain(ch <-chan *types.Event, max int, timeout time.Duration) []*types.Event {
	var got []*types.Event
	deadline := time.After(timeout)
	for len(got) < max {
		select {
		case ev, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-deadline:
			return got
		}
	}
	return got
}

func TestPublishSubscribeOrder(t *testing.T) {
	b := NewBus(Options{})
	defer b.Close()

	ch, cancel := b.Subscribe("job-1")
	defer cancel()

	b.Publish(Started("job-1", nil))
	b.Publish(Progress("job-1", 0.5, "halfway"))
	b.Publish(Complete("job-1", &types.Artifact{ArtifactID: "a::mermaid_erd"}, nil))

	got := drain(ch, 3, time.Second)
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	kinds := []types.EventKind{got[0].Kind, got[1].Kind, got[2].Kind}
	want := []types.EventKind{types.EventStarted, types.EventProgress, types.EventComplete}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d kind = %s, want %s", i, kinds[i], want[i])
		}
	}

	if _, open := <-ch; open {
		t.Error("channel not closed after terminal event")
	}
}

func TestEventsScopedToJob(t *testing.T) {
	b := NewBus(Options{})
	defer b.Close()

	chA, cancelA := b.Subscribe("job-a")
	defer cancelA()
	chB, cancelB := b.Subscribe("job-b")
	defer cancelB()

	b.Publish(Progress("job-a", 0.1, "a only"))

	if got := drain(chA, 1, time.Second); len(got) != 1 {
		t.Fatalf("job-a subscriber got %d events", len(got))
	}
	select {
	case ev := <-chB:
		t.Fatalf("job-b subscriber leaked event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLateSubscriberReplaysHistory(t *testing.T) {
	b := NewBus(Options{})
	defer b.Close()

	b.Publish(Started("job-1", nil))
	b.Publish(Progress("job-1", 0.4, "working"))
	b.Publish(Complete("job-1", &types.Artifact{ArtifactID: "x::api_docs"}, nil))

	ch, cancel := b.Subscribe("job-1")
	defer cancel()

	got := drain(ch, 10, time.Second)
	if len(got) != 3 {
		t.Fatalf("replayed %d events, want 3", len(got))
	}
	last := got[len(got)-1]
	if !last.Kind.Terminal() {
		t.Errorf("replay does not end with terminal event, got %s", last.Kind)
	}
	if last.ArtifactID != "x::api_docs" {
		t.Errorf("terminal artifact id = %q", last.ArtifactID)
	}
}

func TestChunksNotReplayed(t *testing.T) {
	b := NewBus(Options{})
	defer b.Close()

	b.Publish(Started("job-1", nil))
	b.Publish(Chunk("job-1", "erDiagram"))
	b.Publish(Chunk("job-1", " USER"))
	b.Publish(Failure("job-1", &types.JobError{Kind: types.ErrKindModelError, Message: "boom"}))

	ch, cancel := b.Subscribe("job-1")
	defer cancel()

	got := drain(ch, 10, time.Second)
	for _, ev := range got {
		if ev.Kind == types.EventChunk {
			t.Fatalf("chunk event replayed: %+v", ev)
		}
	}
	if len(got) != 2 {
		t.Errorf("replayed %d events, want started plus error", len(got))
	}
}

func TestSlowSubscriberDropsProgressKeepsTerminal(t *testing.T) {
	b := NewBus(Options{SubscriberBuffer: 2})
	defer b.Close()

	ch, cancel := b.Subscribe("job-1")
	defer cancel()

	// Fill the buffer without reading, then overflow it.
	b.Publish(Progress("job-1", 0.1, "one"))
	b.Publish(Progress("job-1", 0.2, "two"))
	b.Publish(Progress("job-1", 0.3, "three"))
	b.Publish(Progress("job-1", 0.4, "four"))

	if stats := b.Stats(); stats.Dropped != 2 {
		t.Errorf("dropped = %d, want 2", stats.Dropped)
	}

	// Drain one slot so the terminal event fits.
	<-ch
	b.Publish(Complete("job-1", nil, nil))

	got := drain(ch, 10, time.Second)
	if len(got) == 0 || !got[len(got)-1].Kind.Terminal() {
		t.Fatalf("terminal event not delivered, got %d events", len(got))
	}
}

func TestFullBufferAtTerminalDrainsWithinGrace(t *testing.T) {
	b := NewBus(Options{SubscriberBuffer: 1})
	defer b.Close()

	ch, cancel := b.Subscribe("job-1")
	defer cancel()

	b.Publish(Progress("job-1", 0.1, "fills the buffer"))
	b.Publish(Complete("job-1", nil, nil))

	// Draining inside the grace window still yields the terminal.
	got := drain(ch, 10, time.Second)
	if len(got) != 2 {
		t.Fatalf("drained %d events, want 2", len(got))
	}
	if !got[len(got)-1].Kind.Terminal() {
		t.Error("stream did not end with terminal event")
	}
}

func TestAbandonedSubscriberEvictedAtTerminal(t *testing.T) {
	b := NewBus(Options{SubscriberBuffer: 1})
	defer b.Close()

	ch, cancel := b.Subscribe("job-1")
	defer cancel()

	b.Publish(Progress("job-1", 0.1, "fills the buffer"))
	b.Publish(Complete("job-1", nil, nil))

	// Never read: the grace window elapses and the channel closes.
	deadline := time.After(2 * time.Second)
	for b.Stats().Evicted != 1 {
		select {
		case <-deadline:
			t.Fatal("subscriber was not evicted")
		case <-time.After(10 * time.Millisecond):
		}
	}
	got := drain(ch, 10, time.Second)
	if len(got) != 1 {
		t.Errorf("drained %d buffered events, want 1", len(got))
	}
}

func TestDuplicateTerminalDiscarded(t *testing.T) {
	b := NewBus(Options{})
	defer b.Close()

	b.Publish(Complete("job-1", nil, nil))
	b.Publish(Failure("job-1", &types.JobError{Kind: types.ErrKindInternal, Message: "late"}))

	ch, cancel := b.Subscribe("job-1")
	defer cancel()

	got := drain(ch, 10, time.Second)
	if len(got) != 1 {
		t.Fatalf("replayed %d events, want 1", len(got))
	}
	if got[0].Kind != types.EventComplete {
		t.Errorf("surviving terminal = %s, want complete", got[0].Kind)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus(Options{})
	defer b.Close()

	ch, cancel := b.Subscribe("job-1")
	cancel()
	cancel() // safe to repeat

	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}

	b.Publish(Progress("job-1", 0.5, "nobody listening"))
	if stats := b.Stats(); stats.Subscribers != 0 {
		t.Errorf("subscribers = %d after cancel", stats.Subscribers)
	}
}

func TestReleaseTopic(t *testing.T) {
	b := NewBus(Options{})
	defer b.Close()

	ch, cancel := b.Subscribe("job-1")
	defer cancel()
	b.Publish(Started("job-1", nil))

	b.ReleaseTopic("job-1")

	drain(ch, 10, time.Second)
	if _, open := <-ch; open {
		t.Error("subscriber channel open after topic release")
	}
	if stats := b.Stats(); stats.Topics != 0 {
		t.Errorf("topics = %d after release", stats.Topics)
	}
}

func TestSubscribeBeforePublishHoldsTopicUntilRelease(t *testing.T) {
	b := NewBus(Options{})
	defer b.Close()

	// Subscribing ahead of the first event creates the topic; it stays
	// until released, so resolving the job id is the caller's job.
	ch, cancel := b.Subscribe("job-early")
	defer cancel()
	if stats := b.Stats(); stats.Topics != 1 {
		t.Fatalf("topics = %d after early subscribe, want 1", stats.Topics)
	}

	b.ReleaseTopic("job-early")
	if _, open := <-ch; open {
		t.Error("channel open after topic release")
	}
	if stats := b.Stats(); stats.Topics != 0 {
		t.Errorf("topics = %d after release, want 0", stats.Topics)
	}
}

func TestConcurrentPublishers(t *testing.T) {
	b := NewBus(Options{SubscriberBuffer: 512})
	defer b.Close()

	ch, cancel := b.Subscribe("job-1")
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				b.Publish(Progress("job-1", 0.5, "tick"))
			}
		}()
	}
	wg.Wait()
	b.Publish(Complete("job-1", nil, nil))

	got := drain(ch, 200, 2*time.Second)
	if len(got) != 161 {
		t.Fatalf("received %d events, want 161", len(got))
	}
	if !got[len(got)-1].Kind.Terminal() {
		t.Error("stream did not end with terminal event")
	}
}
