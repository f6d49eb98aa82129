package restserver

import (
	"context"
	"sync"
	"testing"

	"github.com/chrissnell/laistats/pkg/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestControllerShutsDownOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	c, err := NewController(ctx, &wg, fixtureReader(), config.RESTServerData{ListenAddr: "127.0.0.1"}, zap.NewNop().Sugar())
	require.NoError(t, err)
	c.Server.Addr = "127.0.0.1:0"

	require.NoError(t, c.StartController())
	cancel()
	wg.Wait()
}
