package identity

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

func fields(date, amount, desc string) ledger.Fields {
	return ledger.Fields{Date: date, Amount: amount, Description: desc, Complete: true}
}

func TestCanonical(t *testing.T) {
	s, err := Canonical(ledger.SourceInvoice, fields("15/08/2025", "100,00", "Acme"))
	require.NoError(t, err)
	assert.Equal(t, "invoice|15/08/2025|100,00|Acme", s)

	long, err := Canonical(ledger.SourceBank, fields("01/01/2025", "1", strings.Repeat("x", 500)))
	require.NoError(t, err)
	assert.Len(t, []rune(long), 200)

	_, err = Canonical(ledger.SourceBank, ledger.Fields{Date: "01/01/2025"})
	assert.ErrorIs(t, err, ErrIncompleteIdentity)

	_, err = Canonical(ledger.SourceBank, fields("01/01/2025", "1", "caf\xe9"))
	assert.ErrorIs(t, err, ErrIncompleteIdentity)
}

func TestHash_Deterministic(t *testing.T) {
	c, err := Canonical(ledger.SourceBank, fields("15/08/2025", "-100,00", "TRANSFERENCIA ACME"))
	require.NoError(t, err)

	h1 := Hash(c)
	h2 := Hash(c)
	assert.Equal(t, h1, h2)
	assert.LessOrEqual(t, len(h1), 100)

	// Percent-escaped input round-trips through base64.
	short := Hash("bank|a b")
	decoded, err := base64.StdEncoding.DecodeString(short)
	require.NoError(t, err)
	assert.Equal(t, "bank%7Ca%20b", string(decoded))
}

func TestHash_NonASCII(t *testing.T) {
	h := Hash("invoice|01/02/2025|10|Café Ñandú")
	decoded, err := base64.StdEncoding.DecodeString(h)
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "Caf%C3%A9")
}

func TestResolver_SuffixesDuplicatesInBatch(t *testing.T) {
	r := NewResolver(nil)
	f := fields("15/08/2025", "100,00", "Acme")

	first := r.Resolve(ledger.SourceInvoice, f)
	second := r.Resolve(ledger.SourceInvoice, f)
	third := r.Resolve(ledger.SourceInvoice, f)

	assert.False(t, first.Renamed)
	assert.True(t, second.Renamed)
	assert.Equal(t, first.Hash+"_1", second.Hash)
	assert.Equal(t, first.Hash+"_2", third.Hash)
}

func TestResolver_AvoidsPersistedHashes(t *testing.T) {
	f := fields("15/08/2025", "100,00", "Acme")
	c, err := Canonical(ledger.SourceInvoice, f)
	require.NoError(t, err)
	base := Hash(c)

	r := NewResolver([]string{base, base + "_1"})
	got := r.Resolve(ledger.SourceInvoice, f)

	assert.True(t, got.Renamed)
	assert.Equal(t, base+"_2", got.Hash)
	assert.True(t, r.Taken(got.Hash))
}

func TestResolver_SourceIsPartOfIdentity(t *testing.T) {
	r := NewResolver(nil)
	f := fields("15/08/2025", "100,00", "Acme")

	inv := r.Resolve(ledger.SourceInvoice, f)
	bank := r.Resolve(ledger.SourceBank, f)

	assert.NotEqual(t, inv.Hash, bank.Hash)
	assert.False(t, bank.Renamed)
}

func TestResolver_RandomFallback(t *testing.T) {
	r := NewResolver(nil)
	incomplete := ledger.Fields{Date: "15/08/2025", Amount: "1"}

	a := r.Resolve(ledger.SourceBank, incomplete)
	b := r.Resolve(ledger.SourceBank, incomplete)

	assert.True(t, a.Random)
	assert.True(t, IsRandom(a.Hash))
	assert.False(t, a.Renamed)
	assert.NotEqual(t, a.Hash, b.Hash)
}
