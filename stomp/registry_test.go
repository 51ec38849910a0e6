package stomp

import (
	"reflect"
	"testing"
)

func TestRegistryGeneratedIDsAreUnique(t *testing.T) {
	reg := newRegistry()
	first := reg.addSubscription("", "/a", "auto")
	second := reg.addSubscription("", "/b", "auto")
	if first.ID == second.ID || first.ClientID == second.ClientID {
		t.Fatalf("expected distinct ids, got %+v %+v", first, second)
	}

	reg.reset()
	third := reg.addSubscription("", "/c", "auto")
	if third.ID == first.ID || third.ID == second.ID {
		t.Fatalf("ids must stay unique across reset, got %q", third.ID)
	}
}

func TestRegistryGeneratedIDsSkipLiveIDs(t *testing.T) {
	reg := newRegistry()
	taken := reg.addSubscription(generatedIDPrefix+"1", "/a", "auto")
	generated := reg.addSubscription("", "/b", "auto")
	if generated.ID == taken.ID {
		t.Fatalf("generated id %q reuses a live id", generated.ID)
	}
	if found, ok := reg.subscriptionByID(generated.ID); !ok || found.ClientID != generated.ClientID {
		t.Fatalf("generated id resolves to %+v", found)
	}
}

func TestRegistryCallerIDsAreNotChecked(t *testing.T) {
	reg := newRegistry()
	first := reg.addSubscription("dup", "/a", "auto")
	second := reg.addSubscription("dup", "/b", "client")
	if first.ClientID == second.ClientID {
		t.Fatalf("client ids must differ")
	}
	found, ok := reg.subscriptionByID("dup")
	if !ok || found.ClientID != first.ClientID {
		t.Fatalf("oldest subscription should win, got %+v", found)
	}

	reg.removeSubscription(first.ClientID)
	found, ok = reg.subscriptionByID("dup")
	if !ok || found.ClientID != second.ClientID {
		t.Fatalf("remaining subscription should be found, got %+v", found)
	}
	if _, ok := reg.subscription(first.ClientID); ok {
		t.Fatalf("removed subscription still present")
	}
	if list := reg.subscriptionList(); len(list) != 1 || list[0].Destination != "/b" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestRegistryTransactionsAndReceipts(t *testing.T) {
	reg := newRegistry()
	reg.beginTransaction("t2")
	reg.beginTransaction("t1")
	if !reflect.DeepEqual(reg.transactionList(), []string{"t1", "t2"}) {
		t.Fatalf("unexpected transactions %v", reg.transactionList())
	}
	reg.endTransaction("t1")
	if reg.hasTransaction("t1") || !reg.hasTransaction("t2") {
		t.Fatalf("unexpected transaction state")
	}

	reg.addReceipt("r1", CommandSend)
	pending, ok := reg.resolveReceipt("r1")
	if !ok || pending.Command != CommandSend {
		t.Fatalf("unexpected pending receipt %+v", pending)
	}
	if _, ok := reg.resolveReceipt("r1"); ok {
		t.Fatalf("receipt resolved twice")
	}

	reg.addReceipt("r2", CommandBegin)
	reg.reset()
	if reg.pendingReceipts() != 0 || len(reg.transactionList()) != 0 || len(reg.subscriptionList()) != 0 {
		t.Fatalf("reset must clear every table")
	}
}
