package domain

import (
	"encoding/json"
	"testing"
)

func TestQualityDerivationFromStatusWord(t *testing.T) {
	cases := []struct {
		word uint32
		want string
	}{
		{0x00000000, "Good"},
		{0x0000FFFF, "Good"},
		{0x3FFFFFFF, "Good"},
		{0x40000000, "Uncertain"},
		{0x40930000, "Uncertain"},
		{0x7FFFFFFF, "Uncertain"},
		{0x80000000, "Bad"},
		{0x80310000, "Bad"},
		{0xC0000000, "Bad"},
		{0xFFFFFFFF, "Bad"},
	}

	for _, tc := range cases {
		q := QualityFromStatus(tc.word)
		if q.String() != tc.want {
			t.Errorf("word %#x: got %s, want %s", tc.word, q, tc.want)
		}

		// Exactly one category holds for every word.
		n := 0
		for _, b := range []bool{q.IsGood(), q.IsUncertain(), q.IsBad()} {
			if b {
				n++
			}
		}
		if n != 1 {
			t.Errorf("word %#x: %d categories true, want exactly 1", tc.word, n)
		}
	}
}

func TestQualityTopTwoBitsOnly(t *testing.T) {
	// Sweep the severity bits with noisy low bits: only bits 31..30 decide.
	for low := uint32(0); low < 4; low++ {
		noise := low * 0x1357
		if q := QualityFromStatus(noise); !q.IsGood() {
			t.Errorf("word %#x should be Good", noise)
		}
		if q := QualityFromStatus(1<<30 | noise); !q.IsUncertain() {
			t.Errorf("word %#x should be Uncertain", 1<<30|noise)
		}
		if q := QualityFromStatus(1<<31 | noise); !q.IsBad() {
			t.Errorf("word %#x should be Bad", 1<<31|noise)
		}
		if q := QualityFromStatus(3<<30 | noise); !q.IsBad() {
			t.Errorf("word %#x should be Bad", 3<<30|noise)
		}
	}
}

func TestQualityEqualityOverRawWord(t *testing.T) {
	// Two distinct bad words are not equal even though both are Bad.
	a := QualityFromStatus(0x80000000)
	b := QualityFromStatus(0x80310000)
	if a == b {
		t.Error("distinct status words compared equal")
	}
	if a != QualityFromStatus(0x80000000) {
		t.Error("same status word compared unequal")
	}
}

func TestQualityJSONRoundTrip(t *testing.T) {
	q := QualityFromStatus(0x40930000)
	data, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back OpcQuality
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != q {
		t.Errorf("round trip lost the raw word: %#x != %#x", back.Word, q.Word)
	}
}
