package stats

import (
	"testing"

	"github.com/mistcore/mist-core/internal/shm"
)

func TestExchangePageClaimPublishReadAll(t *testing.T) {
	t.Parallel()
	store, err := shm.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	page, err := OpenExchangePage(store, 4)
	if err != nil {
		t.Fatalf("OpenExchangePage: %v", err)
	}

	row, err := page.Claim(rec(1, 100, 10, 10))
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := page.Publish(row, rec(1, 101, 20, 20)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	all := page.ReadAll()
	if len(all) != 1 || all[0].Up != 20 || all[0].Now != 101 {
		t.Fatalf("ReadAll = %+v, want one republished row", all)
	}
}
