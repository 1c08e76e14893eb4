package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscrowTransitions(t *testing.T) {
	cases := []struct {
		from, to EscrowState
		ok       bool
	}{
		{EscrowStateNone, EscrowStateCreated, true},
		{EscrowStateCreated, EscrowStateHeld, true},
		{EscrowStateHeld, EscrowStateReleased, true},
		{EscrowStateHeld, EscrowStateRefunded, true},
		{EscrowStateCreated, EscrowStateReleased, false},
		{EscrowStateCreated, EscrowStateRefunded, false},
		{EscrowStateReleased, EscrowStateRefunded, false},
		{EscrowStateRefunded, EscrowStateReleased, false},
		{EscrowStateHeld, EscrowStateCreated, false},
		{EscrowState("bogus"), EscrowStateHeld, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestEscrowStateFlags(t *testing.T) {
	assert.True(t, EscrowStateHeld.IsActive())
	assert.False(t, EscrowStateHeld.IsTerminal())
	assert.True(t, EscrowStateRefunded.IsTerminal())
	assert.False(t, EscrowStateReleased.IsActive())

	s, ok := ParseEscrowState(" HELD ")
	require.True(t, ok)
	assert.Equal(t, EscrowStateHeld, s)
	_, ok = ParseEscrowState("authorized")
	assert.False(t, ok)
}

func TestErrorClassification(t *testing.T) {
	err := InvalidStatef("escrow for package %s is %s", "p1", EscrowStateReleased)
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.False(t, errors.Is(err, ErrNotFound))

	msg, ok := PublicMessage(err)
	require.True(t, ok)
	assert.Equal(t, "escrow for package p1 is released", msg)

	cause := errors.New("card_declined")
	gw := GatewayFailure(cause, "capture failed")
	assert.True(t, errors.Is(gw, ErrGateway))
	assert.True(t, errors.Is(gw, cause))
	assert.Equal(t, "capture failed: card_declined", gw.Error())
}

func TestBidPackCatalog(t *testing.T) {
	c := DefaultBidPacks()
	p, ok := c.Lookup("pro")
	require.True(t, ok)
	assert.Equal(t, int64(30), p.TotalCredits())

	_, ok = c.Lookup("free-lunch")
	assert.False(t, ok)

	list := c.List()
	require.Len(t, list, 4)
	assert.Equal(t, "starter", list[0].ID)
	assert.Equal(t, "enterprise", list[3].ID)
}
