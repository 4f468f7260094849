package cmd

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukex/taskflow/pkg/log"
	"github.com/dukex/taskflow/pkg/mirror"
	"github.com/dukex/taskflow/pkg/mirror/file"
	"github.com/dukex/taskflow/pkg/mirror/redis"
	"github.com/dukex/taskflow/pkg/registry"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventBus_GoChannel(t *testing.T) {
	bus, err := NewEventBus("gochannel", "", log.Discard())
	require.NoError(t, err)

	assert.NotNil(t, bus.Publisher)
	assert.NotNil(t, bus.Subscriber)
	assert.NoError(t, bus.Close())
}

func TestNewEventBus_KafkaWithoutBrokers(t *testing.T) {
	_, err := NewEventBus("kafka", " , ", log.Discard())
	assert.Error(t, err)
}

func TestNewEventBus_Unsupported(t *testing.T) {
	_, err := NewEventBus("carrier-pigeon", "", log.Discard())
	assert.ErrorContains(t, err, "unsupported event bus provider")
}

func TestNewMirrorStore(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	store, err := NewMirrorStore(ctx, fs, "")
	require.NoError(t, err)
	assert.IsType(t, &mirror.MemoryStore{}, store)

	store, err = NewMirrorStore(ctx, fs, "file:///var/lib/taskflow")
	require.NoError(t, err)
	assert.IsType(t, &file.Store{}, store)

	exists, err := afero.DirExists(fs, "/var/lib/taskflow")
	require.NoError(t, err)
	assert.True(t, exists)

	server := miniredis.RunT(t)

	store, err = NewMirrorStore(ctx, fs, "redis://"+server.Addr())
	require.NoError(t, err)
	assert.IsType(t, &redis.Store{}, store)
	assert.NoError(t, store.Close())

	_, err = NewMirrorStore(ctx, fs, "mongodb://localhost")
	assert.ErrorContains(t, err, "unsupported mirror url")
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(log.Discard(), t.TempDir()+"/missing", registry.Dependencies{})
	require.NoError(t, err)

	assert.Contains(t, reg.TaskTypeNames(), "http_request")
	assert.Contains(t, reg.NodeTypeNames(), "trigger")

	reg, err = NewRegistry(log.Discard(), t.TempDir(), registry.Dependencies{})
	require.NoError(t, err)
	assert.Len(t, reg.NodeTypeNames(), 6)
}
