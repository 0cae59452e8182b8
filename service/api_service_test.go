package service

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/aegis/api"
	"github.com/vocdoni/aegis/prover"
	"github.com/vocdoni/aegis/storage"
	"github.com/vocdoni/aegis/transaction"
	"github.com/vocdoni/aegis/tree"
	"github.com/vocdoni/arbo/memdb"
)

func TestAPIService(t *testing.T) {
	c := qt.New(t)

	store := storage.New(memdb.New())
	defer store.Close()
	tr, err := tree.New(4)
	c.Assert(err, qt.IsNil)

	// Port 0 lets the OS choose an available port
	apiService := NewAPI(&api.APIConfig{
		Host:    "127.0.0.1",
		Port:    0,
		Storage: store,
		Tree:    tr,
		Builder: transaction.NewBuilder(prover.NewMockBackend()),
	})
	host, port := apiService.HostPort()
	c.Assert(host, qt.Equals, "127.0.0.1")
	c.Assert(port, qt.Equals, 0)

	ctx := context.Background()
	c.Assert(apiService.Start(ctx), qt.IsNil)
	defer apiService.Stop()

	// Test stopping and restarting
	apiService.Stop()
	c.Assert(apiService.Start(ctx), qt.IsNil)

	// Test starting an already running service
	c.Assert(apiService.Start(ctx), qt.ErrorMatches, "service already running")

	// an incomplete configuration fails to start
	broken := NewAPI(&api.APIConfig{Host: "127.0.0.1", Storage: store})
	c.Assert(broken.Start(ctx), qt.ErrorMatches, "failed to start API server: missing tree instance")
}
