package spsp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConditionGenerator(t *testing.T) {
	now := time.Date(2016, 9, 6, 22, 42, 1, 668000000, time.UTC)
	newGenerator := func() *ConditionGenerator {
		g := NewConditionGenerator("secret", "wallet2.", 5*time.Minute)
		g.now = func() time.Time { return now }
		g.newID = func() string { return "ae09e9c0-c4f9-423f-91de-fa1733640b2f" }
		return g
	}

	t.Run("ok, request terms", func(t *testing.T) {
		req := newGenerator().Generate("alice", "10.00")

		require.Equal(t, "wallet2.alice.ae09e9c0-c4f9-423f-91de-fa1733640b2f", req.Address)
		require.Equal(t, "10.00", req.Amount)
		require.Equal(t, now.Add(5*time.Minute), req.ExpiresAt)
		require.True(t, strings.HasPrefix(req.Condition, "cc:0:3:"))
		require.True(t, strings.HasSuffix(req.Condition, ":32"))
	})

	t.Run("ok, deterministic and bound to terms", func(t *testing.T) {
		a := newGenerator().Generate("alice", "10.00")
		b := newGenerator().Generate("alice", "10.00")
		c := newGenerator().Generate("alice", "10.01")

		require.Equal(t, a.Condition, b.Condition)
		require.NotEqual(t, a.Condition, c.Condition)
	})

	t.Run("ok, different secrets differ", func(t *testing.T) {
		g := newGenerator()
		other := newGenerator()
		other.secret = []byte("other")

		require.NotEqual(t, g.Generate("alice", "1").Condition, other.Generate("alice", "1").Condition)
	})

	t.Run("ok, fulfillment matches condition", func(t *testing.T) {
		g := newGenerator()
		req := g.Generate("alice", "10.00")

		fulfillment := g.Fulfillment(req.Address, req.Amount, req.ExpiresAt)
		require.True(t, strings.HasPrefix(fulfillment, "cf:0:"))
		require.Equal(t, req.Condition, Condition(g.preimage(req.Address, req.Amount, req.ExpiresAt)))
	})
}
