package inspector_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blescope/blescope/internal/core"
	"github.com/blescope/blescope/internal/discovery"
	"github.com/blescope/blescope/internal/inspector"
	"github.com/blescope/blescope/internal/session"
	"github.com/blescope/blescope/internal/testutil"
)

func newFixture(t *testing.T) (*testutil.FakeStack, *session.Manager, *discovery.Engine) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	stack := testutil.NewFakeStack()
	stack.Client.
		WithService("180f").
		WithCharacteristic("2a19", "read", []byte{0x64})

	return stack, session.NewManager(stack, logger), discovery.NewEngine(logger)
}

func TestWithDeviceRunsTheFullLifecycle(t *testing.T) {
	stack, mgr, engine := newFixture(t)

	var phases []string
	battery, err := inspector.WithDevice(context.Background(), mgr, engine,
		"AA:BB:CC:DD:EE:FF", nil, nil,
		func(phase string) { phases = append(phases, phase) },
		func(s *session.Session, tree []*core.ServiceDescriptor) (byte, error) {
			require.Equal(t, core.StatusConnected, s.Status())
			require.Len(t, tree, 1)

			char, err := discovery.FindCharacteristic(tree, "180f", "2a19")
			require.NoError(t, err)

			client, err := s.Client()
			require.NoError(t, err)
			data, err := client.Read(char.Service.UUID, char.UUID)
			require.NoError(t, err)
			return data[0], nil
		})

	require.NoError(t, err)
	assert.Equal(t, byte(0x64), battery)
	assert.Equal(t, []string{"Connecting", "Discovering", "Processing results"}, phases)

	sess := mgr.Session("AA:BB:CC:DD:EE:FF")
	assert.Equal(t, core.StatusDisconnected, sess.Status(), "always disconnects after the callback")
	assert.Equal(t, 1, stack.DialCount())
}

func TestWithDeviceReportsConnectFailure(t *testing.T) {
	stack, mgr, engine := newFixture(t)
	stack.DialErr = errors.New("le connection timed out")

	var phases []string
	_, err := inspector.WithDevice(context.Background(), mgr, engine,
		"AA:BB:CC:DD:EE:FF", nil, nil,
		func(phase string) { phases = append(phases, phase) },
		func(*session.Session, []*core.ServiceDescriptor) (struct{}, error) {
			t.Fatal("callback must not run when connect fails")
			return struct{}{}, nil
		})

	require.Error(t, err)
	assert.Equal(t, []string{"Connecting", "Failed"}, phases)
}

func TestWithDevicePropagatesCallbackError(t *testing.T) {
	_, mgr, engine := newFixture(t)

	boom := errors.New("boom")
	_, err := inspector.WithDevice(context.Background(), mgr, engine,
		"AA:BB:CC:DD:EE:FF", nil, nil, nil,
		func(*session.Session, []*core.ServiceDescriptor) (struct{}, error) {
			return struct{}{}, boom
		})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, core.StatusDisconnected, mgr.Session("AA:BB:CC:DD:EE:FF").Status(),
		"disconnect runs even when the callback fails")
}
