package supervisor

import (
	"testing"

	"github.com/mistcore/mist-core/internal/shm"
)

func TestStatePageRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := shm.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	sp, err := CreateStatePage(store, "live+demo")
	if err != nil {
		t.Fatalf("CreateStatePage: %v", err)
	}
	if sp.Get() != StateOff {
		t.Fatalf("expected fresh state page to read OFF, got %s", sp.Get())
	}

	sp.Set(StateReady)
	if sp.Get() != StateReady {
		t.Fatalf("expected READY after Set, got %s", sp.Get())
	}
	sp.Close()

	reopened, err := OpenStatePage(store, "live+demo")
	if err != nil {
		t.Fatalf("OpenStatePage: %v", err)
	}
	defer reopened.Close()
	if reopened.Get() != StateReady {
		t.Fatalf("expected persisted READY, got %s", reopened.Get())
	}
}

func TestReadStateMissingPageIsOff(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := shm.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if got := ReadState(store, "nonexistent"); got != StateOff {
		t.Fatalf("expected OFF for missing state page, got %s", got)
	}
}
