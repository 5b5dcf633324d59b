// Package cards defines the card representation and the committed shuffle.
package cards

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// Card is a 0..51 id, where:
// - rank = (id % 13) + 2  (2..14)
// - suit = (id / 13)      (0..3)
type Card uint8

func (c Card) Rank() uint8 { // 2..14
	return uint8(c%13) + 2
}

func (c Card) Suit() uint8 { // 0..3
	return uint8(c / 13)
}

var suitChars = [4]byte{'c', 'd', 'h', 's'}

func (c Card) String() string {
	r := c.Rank()
	var rch byte
	switch {
	case r == 14:
		rch = 'A'
	case r == 13:
		rch = 'K'
	case r == 12:
		rch = 'Q'
	case r == 11:
		rch = 'J'
	case r == 10:
		rch = 'T'
	default:
		rch = byte('0' + r)
	}
	s := c.Suit()
	if s > 3 {
		return "??"
	}
	return string([]byte{rch, suitChars[s]})
}

// Parse converts a two-character card string ("As", "Td", "2c") back to a Card.
func Parse(s string) (Card, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("invalid card %q", s)
	}
	var rank uint8
	switch s[0] {
	case 'A':
		rank = 14
	case 'K':
		rank = 13
	case 'Q':
		rank = 12
	case 'J':
		rank = 11
	case 'T':
		rank = 10
	default:
		if s[0] < '2' || s[0] > '9' {
			return 0, fmt.Errorf("invalid card rank %q", s)
		}
		rank = s[0] - '0'
	}
	suit := -1
	for i, sc := range suitChars {
		if s[1] == sc {
			suit = i
			break
		}
	}
	if suit < 0 {
		return 0, fmt.Errorf("invalid card suit %q", s)
	}
	return Card(suit*13 + int(rank) - 2), nil
}

// ShuffledDeck returns a deterministically shuffled 52-card deck.
// Fisher-Yates driven by a sha256 stream over seed||counter, so the same
// seed always yields the same order and the commit-reveal check is exact.
func ShuffledDeck(seed string) []Card {
	deck := make([]Card, 52)
	for i := 0; i < 52; i++ {
		deck[i] = Card(i)
	}
	var counter uint64
	sb := []byte(seed)
	for i := 51; i > 0; i-- {
		buf := make([]byte, len(sb)+8)
		copy(buf, sb)
		binary.LittleEndian.PutUint64(buf[len(sb):], counter)
		h := sha256.Sum256(buf)
		counter++
		j := int(binary.LittleEndian.Uint64(h[:8]) % uint64(i+1))
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck
}

// Join renders a deck (or any card sequence) as the comma-joined string form
// stored in the database and revealed in hand_end.
func Join(cs []Card) string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, ",")
}

// Split parses a comma-joined card string. Empty input yields an empty deck.
func Split(s string) ([]Card, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]Card, 0, len(parts))
	for _, p := range parts {
		c, err := Parse(p)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Commitment hashes the stringified shuffled deck together with a nonce.
// The hash is published at hand start; seed, nonce and deck are revealed
// only at completion.
func Commitment(deckString, nonce string) string {
	sum := sha256.Sum256([]byte(deckString + ":" + nonce))
	return hex.EncodeToString(sum[:])
}
