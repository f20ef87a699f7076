package ranking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/kailas-cloud/bookrec/internal/domain/search/mode"
	"github.com/kailas-cloud/bookrec/internal/domain/search/result"
)

// --- Fakes ---

type fakeSignals struct {
	bm25      map[string]float64
	closeness map[string]float64
	local     map[string]float64
	global    map[string]float64
}

func (f fakeSignals) BM25Sum(id string) float64 { return f.bm25[id] }

func (f fakeSignals) Closeness(id string) (float64, bool) {
	v, ok := f.closeness[id]
	return v, ok
}

func (f fakeSignals) MaxSimLocal(id string) (float64, bool) {
	v, ok := f.local[id]
	return v, ok
}

func (f fakeSignals) MaxSimGlobal(id string) (float64, bool) {
	v, ok := f.global[id]
	return v, ok
}

func ids(s []Scored) []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.ID
	}
	return out
}

func profile(t *testing.T, name string) Profile {
	t.Helper()
	r, err := NewRegistry(Builtin())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	p, err := r.Get(name)
	if err != nil {
		t.Fatalf("Get(%s): %v", name, err)
	}
	return p
}

func TestRank_FirstPhaseOrderAndTieBreak(t *testing.T) {
	sig := fakeSignals{bm25: map[string]float64{"1": 1.0, "2": 3.0, "10": 1.0, "3": 0.5}}
	got, err := NewEngine().Rank(context.Background(), profile(t, ProfileBM25), []string{"10", "3", "1", "2"}, sig)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	want := []string{"2", "1", "10", "3"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("score increases at %d", i)
		}
	}
	if got[0].Features[result.FeatureBM25Sum] != 3.0 {
		t.Errorf("features = %v", got[0].Features)
	}
}

func TestRank_EmptyCandidates(t *testing.T) {
	got, err := NewEngine().Rank(context.Background(), profile(t, ProfileFusion), nil, fakeSignals{})
	if err != nil || len(got) != 0 {
		t.Errorf("Rank(empty) = %v, %v; want empty, nil", got, err)
	}
}

func TestRank_SecondPhaseTouchesOnlyWindow(t *testing.T) {
	p := Profile{
		Name: "window", Match: mode.Hybrid, Inputs: []Input{InputQueryVector, InputQueryTokens}, TargetHits: 10,
		First:  ExprCloseness,
		Second: &SecondPhase{Expression: ExprMaxSimLocal, RerankCount: 3},
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	// first phase: a > b > c > d > e > f
	sig := fakeSignals{
		closeness: map[string]float64{"a": 0.9, "b": 0.8, "c": 0.7, "d": 0.6, "e": 0.5, "f": 0.4},
		// max-sim would reverse everything if applied to all candidates
		local: map[string]float64{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5, "f": 6},
	}
	got, err := NewEngine().Rank(context.Background(), p, []string{"f", "e", "d", "c", "b", "a"}, sig)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	want := []string{"c", "b", "a", "d", "e", "f"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
	if got[3].Score != 0.6 {
		t.Errorf("candidate outside window must keep first-phase score, got %v", got[3].Score)
	}
	if _, ok := got[3].Features[result.FeatureMaxSimLocal]; ok {
		t.Error("candidate outside window was re-scored")
	}
}

func TestRank_GlobalPhaseRRF(t *testing.T) {
	p := profile(t, ProfileFusion)
	// bm25 ranking: x, y, p, q, r ; closeness ranking: p, y, q, r, x
	sig := fakeSignals{
		bm25:      map[string]float64{"x": 5, "y": 4, "p": 3, "q": 2, "r": 1},
		closeness: map[string]float64{"p": 0.9, "y": 0.8, "q": 0.7, "r": 0.6, "x": 0.5},
	}
	got, err := NewEngine().Rank(context.Background(), p, []string{"x", "y", "p", "q", "r"}, sig)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	scores := make(map[string]float64)
	for _, c := range got {
		scores[c.ID] = c.Score
		if c.Features[result.FeatureRRF] != c.Score {
			t.Errorf("%s: rrf feature %v != score %v", c.ID, c.Features[result.FeatureRRF], c.Score)
		}
	}
	wantX := 1.0/61 + 1.0/65
	wantY := 2.0 / 62
	if math.Abs(scores["x"]-wantX) > 1e-15 || math.Abs(scores["y"]-wantY) > 1e-15 {
		t.Errorf("x=%v (want %v) y=%v (want %v)", scores["x"], wantX, scores["y"], wantY)
	}
	// p: 3rd + 1st = 1/63 + 1/61 is the best fused score
	if got[0].ID != "p" || got[1].ID != "y" {
		t.Errorf("order = %v", ids(got))
	}
}

func TestRank_GlobalPhaseWindow(t *testing.T) {
	p := profile(t, ProfileFusion)
	p.Global.RerankCount = 2
	sig := fakeSignals{
		bm25:      map[string]float64{"c": 9},
		closeness: map[string]float64{"a": 0.9, "b": 0.8, "c": 0.1},
	}
	got, err := NewEngine().Rank(context.Background(), p, []string{"a", "b", "c"}, sig)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if got[2].ID != "c" || got[2].Score != 0.1 {
		t.Errorf("c outside window must stay last with first-phase score, got %+v", got[2])
	}
}

func TestRank_MaxSimWithoutPassages(t *testing.T) {
	p := profile(t, ProfileColbertGlobal)
	sig := fakeSignals{
		closeness: map[string]float64{"a": 0.9, "b": 0.5},
		global:    map[string]float64{"b": 1.5},
	}
	got, err := NewEngine().Rank(context.Background(), p, []string{"a", "b"}, sig)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if got[0].ID != "b" || got[1].ID != "a" || got[1].Score != 0 {
		t.Errorf("got %+v", got)
	}
	if _, ok := got[1].Features[result.FeatureMaxSimGlobal]; ok {
		t.Error("document without passages must not report a max-sim feature")
	}
}

func TestRank_DeterministicAcrossInputOrderAndParallelism(t *testing.T) {
	sig := fakeSignals{bm25: map[string]float64{}, closeness: map[string]float64{}, local: map[string]float64{}}
	var cands, reversed []string
	for i := 0; i < 300; i++ {
		id := fmt.Sprint(i)
		cands = append(cands, id)
		sig.bm25[id] = float64(i % 7)
		sig.closeness[id] = float64(i%5) / 10
		sig.local[id] = float64(i % 3)
	}
	for i := len(cands) - 1; i >= 0; i-- {
		reversed = append(reversed, cands[i])
	}
	p := profile(t, ProfileBM25Colbert)

	a, err := NewEngine(WithParallelism(1)).Rank(context.Background(), p, cands, sig)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	b, err := NewEngine(WithParallelism(8)).Rank(context.Background(), p, reversed, sig)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("ranking depends on input order or parallelism")
	}
}

func TestRank_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine().Rank(ctx, profile(t, ProfileBM25), []string{"1"}, fakeSignals{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRank_DuplicateCandidates(t *testing.T) {
	sig := fakeSignals{bm25: map[string]float64{"1": 1}}
	got, _ := NewEngine().Rank(context.Background(), profile(t, ProfileBM25), []string{"1", "1"}, sig)
	if len(got) != 1 {
		t.Errorf("duplicates kept: %v", ids(got))
	}
}
