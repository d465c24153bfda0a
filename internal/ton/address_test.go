package ton

import (
	"strings"
	"testing"

	"github.com/xssnick/tonutils-go/address"
)

func testAddr(t *testing.T, fill byte) *address.Address {
	t.Helper()
	hash := make([]byte, 32)
	for i := range hash {
		hash[i] = fill
	}
	return address.NewAddress(0, 0, hash)
}

func TestAllEncodingFlags_FullPermutationSet(t *testing.T) {
	if len(AllEncodingFlags) != 8 {
		t.Fatalf("expected 8 flag permutations, got %d", len(AllEncodingFlags))
	}
	seen := map[EncodingFlags]bool{}
	for _, f := range AllEncodingFlags {
		if seen[f] {
			t.Fatalf("duplicate permutation %+v", f)
		}
		seen[f] = true
	}
}

func TestAllStrings_NineDistinctEncodings(t *testing.T) {
	addr := testAddr(t, 0xAB)
	all := AllStrings(addr)
	if len(all) != 9 {
		t.Fatalf("expected 9 encodings, got %d", len(all))
	}
	seen := map[string]bool{}
	for _, s := range all {
		if seen[s] {
			t.Errorf("duplicate encoding %q", s)
		}
		seen[s] = true
	}
}

func TestAllStrings_DecodeToSameAddress(t *testing.T) {
	addr := testAddr(t, 0x42)
	for _, s := range AllStrings(addr) {
		parsed, err := ParseAny(s)
		if err != nil {
			t.Fatalf("ParseAny(%q): %v", s, err)
		}
		if parsed.Workchain() != addr.Workchain() {
			t.Errorf("%q: workchain = %d, want %d", s, parsed.Workchain(), addr.Workchain())
		}
		if string(parsed.Data()) != string(addr.Data()) {
			t.Errorf("%q: hash mismatch", s)
		}
	}
}

func TestMatchesQuery_EveryEncoding(t *testing.T) {
	addr := testAddr(t, 0x42)
	for _, full := range AllStrings(addr) {
		if !MatchesQuery(addr, full) {
			t.Errorf("full encoding %q did not match", full)
		}
		// Case-insensitive
		if !MatchesQuery(addr, strings.ToUpper(full)) {
			t.Errorf("upper-cased %q did not match", full)
		}
		// Substring
		if !MatchesQuery(addr, full[5:20]) {
			t.Errorf("substring of %q did not match", full)
		}
	}
}

func TestMatchesQuery_NoFalsePositiveAcrossAddresses(t *testing.T) {
	a1 := testAddr(t, 0x01)
	a2 := testAddr(t, 0x02)

	for _, full := range AllStrings(a2) {
		if MatchesQuery(a1, full) {
			t.Errorf("full encoding of a2 %q matched a1", full)
		}
	}
}

func TestMatchesQuery_FailsClosed(t *testing.T) {
	if MatchesQuery(nil, "anything") {
		t.Error("nil address must not match")
	}
	bad := address.NewAddress(0, 0, []byte{1, 2, 3}) // truncated hash
	if MatchesQuery(bad, "AQID") {
		t.Error("malformed address must not match")
	}
}

func TestParseAny(t *testing.T) {
	addr := testAddr(t, 0x7F)

	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"raw", RawString(addr), true},
		{"friendly url-safe", FriendlyString(addr, EncodingFlags{Bounceable: true, URLSafe: true}), true},
		{"friendly std alphabet", FriendlyString(addr, EncodingFlags{Bounceable: false, URLSafe: false, TestOnly: true}), true},
		{"garbage", "not-an-address", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseAny(tt.input)
			if tt.valid {
				if err != nil {
					t.Fatalf("expected valid, got error: %v", err)
				}
				if string(parsed.Data()) != string(addr.Data()) {
					t.Error("hash mismatch after round-trip")
				}
			} else if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFriendlyString_TagBytes(t *testing.T) {
	addr := testAddr(t, 0x00)

	tests := []struct {
		flags EncodingFlags
		tag   byte
	}{
		{EncodingFlags{Bounceable: true, URLSafe: true}, 0x11},
		{EncodingFlags{Bounceable: false, URLSafe: true}, 0x51},
		{EncodingFlags{Bounceable: true, URLSafe: true, TestOnly: true}, 0x91},
		{EncodingFlags{Bounceable: false, URLSafe: true, TestOnly: true}, 0xD1},
	}

	for _, tt := range tests {
		s := FriendlyString(addr, tt.flags)
		parsed, err := ParseAny(s)
		if err != nil {
			t.Fatalf("ParseAny(%q): %v", s, err)
		}
		if parsed.IsBounceable() != tt.flags.Bounceable {
			t.Errorf("%+v: bounceable flag lost in %q", tt.flags, s)
		}
		if parsed.IsTestnetOnly() != tt.flags.TestOnly {
			t.Errorf("%+v: testnet flag lost in %q", tt.flags, s)
		}
	}
}
