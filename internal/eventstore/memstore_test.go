package eventstore

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/llmcouncil/macrotrader/pkg/council"
)

func testWeekID(t *testing.T) council.WeekId {
	t.Helper()
	d := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != time.Wednesday {
		d = d.AddDate(0, 0, 1)
	}
	wid, err := council.NewWeekId(d)
	if err != nil {
		t.Fatalf("testWeekID: %v", err)
	}
	return wid
}

func TestMemStoreAppendAndList(t *testing.T) {
	store := NewMemStore(zap.NewNop())
	weekID := testWeekID(t)

	acct := council.AccountId("acct-1")
	if _, err := store.Append(context.Background(), weekID, &acct, council.EventPMPitch, map[string]string{"k": "v"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append(context.Background(), weekID, nil, council.EventMarketSentiment, map[string]string{"k": "v2"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	pitches, err := store.List(context.Background(), weekID, council.EventPMPitch)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pitches) != 1 {
		t.Fatalf("expected 1 pitch event, got %d", len(pitches))
	}
	if pitches[0].AccountId == nil || *pitches[0].AccountId != acct {
		t.Fatalf("expected account id %s, got %v", acct, pitches[0].AccountId)
	}

	all, err := store.ListAll(context.Background(), weekID)
	if err != nil {
		t.Fatalf("list_all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 total events, got %d", len(all))
	}

	if store.Size() != 2 {
		t.Fatalf("expected store size 2, got %d", store.Size())
	}
}

func TestMemStoreLatestReturnsMostRecentOfType(t *testing.T) {
	store := NewMemStore(zap.NewNop())
	weekID := testWeekID(t)

	if _, err := store.Append(context.Background(), weekID, nil, council.EventMarketSentiment, map[string]int{"v": 1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append(context.Background(), weekID, nil, council.EventMarketSentiment, map[string]int{"v": 2}); err != nil {
		t.Fatalf("append: %v", err)
	}

	latest, ok, err := store.Latest(context.Background(), weekID, council.EventMarketSentiment)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !ok {
		t.Fatal("expected a latest event")
	}
	var v map[string]int
	if err := Decode(latest, &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v["v"] != 2 {
		t.Fatalf("expected latest value 2, got %d", v["v"])
	}
}

func TestMemStoreLatestMissingTypeNotFound(t *testing.T) {
	store := NewMemStore(zap.NewNop())
	weekID := testWeekID(t)

	_, ok, err := store.Latest(context.Background(), weekID, council.EventChairmanDecision)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if ok {
		t.Fatal("expected no event of this type yet")
	}
}

func TestMemStoreAppendRejectsCancelledContext(t *testing.T) {
	store := NewMemStore(zap.NewNop())
	weekID := testWeekID(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Append(ctx, weekID, nil, council.EventMarketSentiment, map[string]int{}); err == nil {
		t.Fatal("expected an error appending on a cancelled context")
	}
}
