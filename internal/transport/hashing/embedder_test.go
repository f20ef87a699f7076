package hashing

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/kailas-cloud/bookrec/internal/domain"
)

func TestEmbed_DeterministicUnitVectors(t *testing.T) {
	e := New(0, 0)
	a, err := e.Embed(context.Background(), "A desert planet")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, _ := e.Embed(context.Background(), "a DESERT planet!")
	if len(a.Embedding) != domain.DenseDimensions {
		t.Fatalf("expected %d dims, got %d", domain.DenseDimensions, len(a.Embedding))
	}
	if !reflect.DeepEqual(a.Embedding, b.Embedding) {
		t.Error("same words must give the same vector")
	}
	if n := domain.Dot(a.Embedding, a.Embedding); math.Abs(n-1) > 1e-5 {
		t.Errorf("vector not unit length: %v", n)
	}
}

func TestEmbed_OverlapMeansCloser(t *testing.T) {
	e := New(384, 16)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "desert planet")
	dune, _ := e.Embed(ctx, "a desert planet where spice grows")
	foundation, _ := e.Embed(ctx, "an empire falls and a foundation rises")
	if domain.Dot(q.Embedding, dune.Embedding) <= domain.Dot(q.Embedding, foundation.Embedding) {
		t.Error("shared words must increase similarity")
	}
}

func TestEmbed_EmptyTextIsNotZero(t *testing.T) {
	res, err := New(8, 4).Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if isZero(res.Embedding) {
		t.Error("empty text produced a zero vector")
	}
}

func TestEmbedTokens(t *testing.T) {
	e := New(384, 16)
	res, err := e.EmbedTokens(context.Background(), "spice must flow, spice")
	if err != nil {
		t.Fatalf("EmbedTokens: %v", err)
	}
	if len(res.Tokens) != 4 {
		t.Fatalf("expected 4 tokens, got %d", len(res.Tokens))
	}
	if len(res.Tokens[0]) != 16 {
		t.Errorf("expected 16 dims, got %d", len(res.Tokens[0]))
	}
	if d := domain.Dot(res.Tokens[0], res.Tokens[3]); math.Abs(d-1) > 1e-5 {
		t.Errorf("equal words must have dot 1, got %v", d)
	}
	empty, _ := e.EmbedTokens(context.Background(), "")
	if len(empty.Tokens) != 0 {
		t.Errorf("expected no tokens for empty text")
	}
}

func TestEmbed_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(0, 0).Embed(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
