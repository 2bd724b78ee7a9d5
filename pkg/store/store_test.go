package store

import (
	"errors"
	"testing"
)

func TestResultConstructors(t *testing.T) {
	ok := OK([]string{"a"})
	if ok.Err != nil || len(ok.Data) != 1 {
		t.Fatalf("unexpected OK result: %+v", ok)
	}

	boom := errors.New("boom")
	failed := Fail[[]string](boom)
	if !errors.Is(failed.Err, boom) || failed.Data != nil {
		t.Fatalf("unexpected Fail result: %+v", failed)
	}

	partial := Partial([]string{"a", "b"}, boom)
	if !errors.Is(partial.Err, boom) || len(partial.Data) != 2 {
		t.Fatalf("unexpected Partial result: %+v", partial)
	}
}
