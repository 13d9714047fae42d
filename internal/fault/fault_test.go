package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_ClassifiedError(t *testing.T) {
	err := New(CapabilityQuota, "provider returned 429")
	if got := KindOf(err); got != CapabilityQuota {
		t.Errorf("KindOf = %q, want %q", got, CapabilityQuota)
	}
}

func TestKindOf_SurvivesWrapping(t *testing.T) {
	inner := Wrap(StoreUnavailable, errors.New("dial tcp: refused"), "query purchases")
	outer := fmt.Errorf("pipeline step select: %w", inner)
	if got := KindOf(outer); got != StoreUnavailable {
		t.Errorf("KindOf through %%w chain = %q, want %q", got, StoreUnavailable)
	}
}

func TestKindOf_ContextErrors(t *testing.T) {
	if got := KindOf(context.DeadlineExceeded); got != Timeout {
		t.Errorf("deadline = %q, want %q", got, Timeout)
	}
	if got := KindOf(fmt.Errorf("acquire: %w", context.Canceled)); got != Cancelled {
		t.Errorf("canceled = %q, want %q", got, Cancelled)
	}
}

func TestKindOf_UnclassifiedAndNil(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != Internal {
		t.Errorf("plain error = %q, want %q", got, Internal)
	}
	if got := KindOf(nil); got != "" {
		t.Errorf("nil error = %q, want empty", got)
	}
}

func TestWrap_NilPassthrough(t *testing.T) {
	if err := Wrap(ParseError, nil, "decode"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestError_MessageIncludesKindAndCause(t *testing.T) {
	err := Wrap(PersistConflict, errors.New("row changed"), "upsert report")
	want := "persist_conflict: upsert report: row changed"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !IsKind(err, PersistConflict) {
		t.Error("IsKind(PersistConflict) = false")
	}
}
