package syncpipeline

import "testing"

func TestOutcome_String(t *testing.T) {
	cases := map[Outcome]string{
		SyncNothing:    "nothing",
		SyncWaitQueued: "wait_queued",
		SyncDone:       "done",
		Outcome(99):    "unknown",
	}
	for outcome, want := range cases {
		if got := outcome.String(); got != want {
			t.Fatalf("Outcome(%d).String() = %q, want %q", outcome, got, want)
		}
	}
}
