package normalize

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"whitespace run becomes single hyphen", "Devel  óper", "devel-oper"},
		{"diacritics stripped", "Develóper", "developer"},
		{"camelCase split", "camelCase", "camel-case"},
		{"multi word camel", "FooBarBaz", "foo-bar-baz"},
		{"surrounding whitespace trimmed", "  padded  ", "padded"},
		{"mixed spacing", "MANY   Spaces Here", "many-spaces-here"},
		{"hyphen runs collapsed and trimmed", "--already--kebab--", "already-kebab"},
		{"uppercase with accents", "héllo WÖrld", "hello-world"},
		{"digit to upper boundary split", "ipv4Address", "ipv4-address"},
		{"empty input", "", ""},
		{"only whitespace", "   ", ""},
		{"acronym stays joined", "ABC", "abc"},
	}

	n := New(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, n.Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Devel  óper",
		"Develóper",
		"camelCase",
		"  A  Bizarre   ínput with MixedCASE  ",
		"already-normalized",
		"",
	}

	n := New(Options{})
	for _, in := range inputs {
		once := n.Normalize(in)
		twice := n.Normalize(once)
		assert.Equal(t, once, twice, "normalize(normalize(%q))", in)
	}
}

func TestNormalize_Memoization(t *testing.T) {
	n := New(Options{CacheSize: 8})

	first := n.Normalize("Develóper")
	second := n.Normalize("Develóper")
	require.Equal(t, first, second)

	hits, misses := n.Metrics()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 1, n.Len())
}

func TestNormalize_CacheBounded(t *testing.T) {
	n := New(Options{CacheSize: 4})

	for i := 0; i < 32; i++ {
		n.Normalize(fmt.Sprintf("Key Number %d", i))
	}

	assert.LessOrEqual(t, n.Len(), 4)
}

func TestNormalize_ConcurrentAccess(t *testing.T) {
	n := New(Options{CacheSize: 16})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got := n.Normalize("Devel  óper")
				if got != "devel-oper" {
					t.Errorf("Normalize returned %q", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func BenchmarkNormalize_Memoized(b *testing.B) {
	n := New(Options{})
	n.Normalize("Some CamelCase Métric Name")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n.Normalize("Some CamelCase Métric Name")
	}
}

func BenchmarkNormalize_Cold(b *testing.B) {
	n := New(Options{CacheSize: 1})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Two alternating keys defeat the single-slot cache.
		if i%2 == 0 {
			n.Normalize("Some CamelCase Métric Name")
		} else {
			n.Normalize("Another CamelCase Métric Name")
		}
	}
}
