package state

import (
	"context"
	"testing"

	"github.com/temoto/ks0066/log2"
)

// NewTestContext returns Global with simulated hardware and in-memory marker
// unless confString says otherwise.
func NewTestContext(t testing.TB, confString string) (context.Context, *Global) {
	fs := NewMockFullReader(map[string]string{
		"test-defaults": `hardware { ks0066 { driver = "sim" } } persist { marker = "memory" }`,
		"test-inline":   confString,
	})

	log := log2.NewTest(t, log2.LDebug)
	log.SetFlags(log2.LTestFlags)
	ctx, g := NewContext(log)
	g.MustInit(ctx, MustReadConfig(log, fs, "test-defaults", "test-inline"))
	return ctx, g
}
