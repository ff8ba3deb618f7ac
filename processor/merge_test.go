package processor

import (
	"reflect"
	"testing"

	"fundingflow/models"
)

func record(ms int64, rate float64) models.FundingRecord {
	return models.FundingRecord{
		Exchange:       models.ExchangeBinance,
		Pair:           "BTC/USDT",
		RawPair:        "BTCUSDT",
		FundingRate:    rate,
		FundingTime:    ms,
		FundingTimeStr: models.FundingTimeString(ms),
	}
}

func times(records []models.FundingRecord) []int64 {
	out := make([]int64, 0, len(records))
	for _, r := range records {
		out = append(out, r.FundingTime)
	}
	return out
}

func TestMergeSortsAndDeduplicates(t *testing.T) {
	history := []models.FundingRecord{record(3000, 0.3), record(1000, 0.1)}
	fresh := []models.FundingRecord{record(2000, 0.2), record(3000, 0.9), record(4000, 0.4)}

	got := Merge(history, fresh)

	want := []int64{1000, 2000, 3000, 4000}
	if !reflect.DeepEqual(times(got), want) {
		t.Fatalf("times = %v, want %v", times(got), want)
	}
	for i := 1; i < len(got); i++ {
		if got[i].FundingTime <= got[i-1].FundingTime {
			t.Fatalf("not strictly ascending at %d", i)
		}
	}
}

func TestMergeHistoryWinsOverlap(t *testing.T) {
	history := []models.FundingRecord{record(1000, 0.1)}
	fresh := []models.FundingRecord{record(1000, 0.9), record(2000, 0.2)}

	got := Merge(history, fresh)

	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].FundingTime != 1000 || got[0].FundingRate != 0.1 {
		t.Errorf("overlap record = %+v, want history copy", got[0])
	}
	if got[1].FundingTime != 2000 {
		t.Errorf("second record = %+v", got[1])
	}
}

func TestMergeIdempotent(t *testing.T) {
	history := []models.FundingRecord{record(1000, 0.1), record(2000, 0.2)}
	fresh := []models.FundingRecord{record(2000, 0.9), record(3000, 0.3)}

	once := Merge(history, fresh)
	twice := Merge(once, fresh)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("merge not idempotent:\nonce  %v\ntwice %v", times(once), times(twice))
	}
}

func TestMergeEmptySides(t *testing.T) {
	fresh := []models.FundingRecord{record(2000, 0.2), record(1000, 0.1)}

	if got := Merge(nil, fresh); !reflect.DeepEqual(times(got), []int64{1000, 2000}) {
		t.Errorf("empty history: times = %v", times(got))
	}
	if got := Merge(fresh, nil); len(got) != 2 {
		t.Errorf("empty fresh: got %d records", len(got))
	}
	if got := Merge(nil, nil); len(got) != 0 {
		t.Errorf("both empty: got %d records", len(got))
	}
}
