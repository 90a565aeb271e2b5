package canon

import "testing"

func TestJSONSortsKeysAtEveryDepth(t *testing.T) {
	v := map[string]any{
		"b": 1,
		"a": map[string]any{"z": 1, "y": 2},
	}
	got, err := JSON(v)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	want := `{"a":{"y":2,"z":1},"b":1}`
	if string(got) != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestJSONRoundTripIsStable(t *testing.T) {
	v := map[string]any{"x": 1, "y": "s", "z": nil, "n": true}
	first, err := JSON(v)
	if err != nil {
		t.Fatal(err)
	}
	second, err := JSON(v)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Fatalf("canonicalization is not stable: %s vs %s", first, second)
	}
}

func TestNullAndEmptyPrevHashHashIdentically(t *testing.T) {
	h := NewHasher("")
	data := map[string]any{"a": 1}
	withEmpty, err := h.EventHash("", data)
	if err != nil {
		t.Fatal(err)
	}
	var nilPrev string
	withNil, err := h.EventHash(nilPrev, data)
	if err != nil {
		t.Fatal(err)
	}
	if withEmpty != withNil {
		t.Fatalf("empty and nil prevHash produced different hashes")
	}
}

func TestEventHashChangesWithPrevHash(t *testing.T) {
	h := NewHasher("")
	data := map[string]any{"a": 1}
	h1, _ := h.EventHash("", data)
	h2, _ := h.EventHash("deadbeef", data)
	if h1 == h2 {
		t.Fatalf("expected different hashes for different prevHash")
	}
}

func TestHMACModeDiffersFromPlainSHA(t *testing.T) {
	data := map[string]any{"a": 1}
	plain := NewHasher("")
	keyed := NewHasher("secret")
	h1, _ := plain.EventHash("", data)
	h2, _ := keyed.EventHash("", data)
	if h1 == h2 {
		t.Fatalf("expected HMAC and plain SHA-256 to diverge")
	}
}

func TestVerifyChainDetectsTamper(t *testing.T) {
	h := NewHasher("")
	mk := func(prev string, v int64, data map[string]any) ChainLink {
		hash, _ := h.EventHash(prev, data)
		return ChainLink{AggregateVersion: v, EventData: data, Hash: hash, PrevHash: prev}
	}
	l1 := mk("", 1, map[string]any{"n": 1})
	l2 := mk(l1.Hash, 2, map[string]any{"n": 2})
	l3 := mk(l2.Hash, 3, map[string]any{"n": 3})

	res, err := VerifyChain(h, []ChainLink{l1, l2, l3}, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid {
		t.Fatalf("expected valid chain, got broken at %d", res.BrokenAtVersion)
	}

	// Tamper with l2's event data without recomputing its hash.
	l2.EventData = map[string]any{"n": 999}
	res, err = VerifyChain(h, []ChainLink{l1, l2, l3}, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.BrokenAtVersion != 2 {
		t.Fatalf("expected break at version 2, got %+v", res)
	}
}

func TestBalanceChecksumDeterministic(t *testing.T) {
	h := NewHasher("k")
	c1 := h.BalanceChecksum(100, 200, 100, 0, 0, 3)
	c2 := h.BalanceChecksum(100, 200, 100, 0, 0, 3)
	if c1 != c2 {
		t.Fatalf("checksum not deterministic")
	}
	c3 := h.BalanceChecksum(100, 200, 100, 0, 0, 4)
	if c1 == c3 {
		t.Fatalf("checksum did not change with version")
	}
}
