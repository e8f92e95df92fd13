package memory

import (
	"context"
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "Hello, World!", want: []string{"hello", "world"}},
		{in: "Intel® Xeon 4th-gen", want: []string{"intel", "xeon", "4th", "gen"}},
		{in: "你好world", want: []string{"你", "好", "world"}},
		{in: "  ", want: nil},
	}
	for _, tt := range tests {
		if got := Tokenize(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(0)
	ctx := context.Background()

	a, _ := e.Embed(ctx, "What is the capital of France?")
	b, _ := e.Embed(ctx, "what is the CAPITAL of france")
	c, _ := e.Embed(ctx, "Recipe for banana bread")

	if len(a) != DefaultHashDimensions {
		t.Fatalf("dimensions = %d", len(a))
	}
	if s := Cosine(a, b); s < 0.99 {
		t.Errorf("same words should embed identically, cosine = %v", s)
	}
	if Cosine(a, c) >= Cosine(a, b) {
		t.Errorf("unrelated text scored too high: %v", Cosine(a, c))
	}
	empty, _ := e.Embed(ctx, "")
	for _, v := range empty {
		if v != 0 {
			t.Fatal("empty text should embed to the zero vector")
		}
	}
}

func TestVectorMemory_AddSearch(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	vm := NewVectorMemory(store, NewHashEmbedder(64), "docs")

	for _, text := range []string{
		"The Xeon processor supports AMX instructions",
		"Gaudi accelerators run on HPU devices",
	} {
		if _, err := vm.Add(ctx, text, map[string]any{"source": "test"}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	matches, err := vm.Search(ctx, "which processor supports AMX", 1, 0.1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Text != "The Xeon processor supports AMX instructions" {
		t.Fatalf("unexpected matches: %+v", matches)
	}
	if matches[0].Payload["source"] != "test" {
		t.Errorf("payload lost: %v", matches[0].Payload)
	}

	n, err := vm.Count(ctx)
	if err != nil || n != 2 {
		t.Errorf("Count = %d, %v", n, err)
	}
}
