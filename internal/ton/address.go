package ton

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/xssnick/tonutils-go/address"
)

// Friendly-address tag bytes per the TEP-2 format.
const (
	tagBounceable    = 0x11
	tagNonBounceable = 0x51
	flagTestOnly     = 0x80
)

// EncodingFlags — одна комбинация флагов friendly-представления адреса.
type EncodingFlags struct {
	Bounceable bool
	URLSafe    bool
	TestOnly   bool
}

// AllEncodingFlags is the explicit Cartesian product of the three booleans,
// built once at init. Order is irrelevant: the set is used for matching only.
var AllEncodingFlags = buildEncodingFlags()

func buildEncodingFlags() []EncodingFlags {
	perms := make([]EncodingFlags, 0, 8)
	for _, bounceable := range []bool{true, false} {
		for _, urlSafe := range []bool{true, false} {
			for _, testOnly := range []bool{true, false} {
				perms = append(perms, EncodingFlags{
					Bounceable: bounceable,
					URLSafe:    urlSafe,
					TestOnly:   testOnly,
				})
			}
		}
	}
	return perms
}

// FriendlyString encodes the address with the given flags:
// tag(1) ++ workchain(1) ++ hash(32) ++ crc16(2), base64 in one of two alphabets.
// 36 bytes is a multiple of 3, so both alphabets produce 48 chars, no padding.
func FriendlyString(addr *address.Address, flags EncodingFlags) string {
	tag := byte(tagNonBounceable)
	if flags.Bounceable {
		tag = tagBounceable
	}
	if flags.TestOnly {
		tag |= flagTestOnly
	}

	data := make([]byte, 0, 36)
	data = append(data, tag, byte(addr.Workchain()))
	data = append(data, addr.Data()...)
	data = append(data, crc16XModem(data)...)

	if flags.URLSafe {
		return base64.RawURLEncoding.EncodeToString(data)
	}
	return base64.RawStdEncoding.EncodeToString(data)
}

// RawString returns the non-friendly form: "<workchain>:<hex hash>".
func RawString(addr *address.Address) string {
	return fmt.Sprintf("%d:%x", addr.Workchain(), addr.Data())
}

// AllStrings returns the full canonical set: the 8 friendly flag permutations
// plus the raw form. Every element decodes back to the same (workchain, hash).
func AllStrings(addr *address.Address) []string {
	out := make([]string, 0, len(AllEncodingFlags)+1)
	for _, flags := range AllEncodingFlags {
		out = append(out, FriendlyString(addr, flags))
	}
	return append(out, RawString(addr))
}

// MatchesQuery reports a case-insensitive substring match of query against any
// canonical encoding of addr. A nil address never matches (fail closed).
func MatchesQuery(addr *address.Address, query string) bool {
	if addr == nil || len(addr.Data()) != 32 {
		return false
	}
	q := strings.ToLower(query)
	for _, s := range AllStrings(addr) {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}

// ParseAny parses any of the 9 canonical forms: raw "wc:hex", url-safe
// friendly base64, or std-alphabet friendly base64.
func ParseAny(s string) (*address.Address, error) {
	if strings.Contains(s, ":") {
		return address.ParseRawAddr(s)
	}
	// tonutils-go only accepts the url-safe alphabet; translate the std one.
	normalized := strings.NewReplacer("+", "-", "/", "_").Replace(s)
	return address.ParseAddr(normalized)
}

// crc16XModem computes CRC-16/XMODEM (poly 0x1021, init 0), the checksum
// friendly addresses carry in their last two bytes.
func crc16XModem(data []byte) []byte {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return []byte{byte(crc >> 8), byte(crc)}
}
