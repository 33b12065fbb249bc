package discovery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/blescope/blescope/internal/core"
	"github.com/blescope/blescope/internal/discovery"
	"github.com/blescope/blescope/internal/session"
	"github.com/blescope/blescope/internal/testutil"
)

type DiscoveryTestSuite struct {
	suite.Suite

	stack   *testutil.FakeStack
	manager *session.Manager
	sess    *session.Session
	engine  *discovery.Engine
}

func (s *DiscoveryTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	s.stack = testutil.NewFakeStack()
	s.stack.Client.
		WithService("180d").
		WithCharacteristic("2a37", "notify", nil).
		WithCharacteristic("2a38", "read", []byte{0x01}).
		WithService("1800").
		WithCharacteristic("2a00", "read,write", []byte("demo")).
		WithCharacteristic("2a01", "", nil)

	s.manager = session.NewManager(s.stack, logger)
	s.sess = s.manager.Session("AA:BB:CC:DD:EE:FF")
	s.engine = discovery.NewEngine(logger)
}

func (s *DiscoveryTestSuite) connect() {
	s.Require().NoError(s.sess.Connect(context.Background(), session.ConnectOptions{}))
}

func (s *DiscoveryTestSuite) TestDiscoverRequiresConnection() {
	_, err := s.engine.Discover(context.Background(), s.sess)
	s.True(core.IsKind(err, core.NotConnected))
}

func (s *DiscoveryTestSuite) TestDiscoverBuildsTree() {
	s.connect()

	tree, err := s.engine.Discover(context.Background(), s.sess)
	s.Require().NoError(err)
	s.Require().Len(tree, 2)

	hrm := tree[0]
	s.Equal("180d", hrm.UUID)
	s.Equal("Heart Rate", hrm.Name)
	s.Require().Len(hrm.Characteristics, 2)

	measurement := hrm.Characteristics[0]
	s.Equal("2a37", measurement.UUID)
	s.Equal("Heart Rate Measurement", measurement.Name)
	s.True(measurement.Capabilities.Notifiable)
	s.False(measurement.Capabilities.Readable)
	s.Same(hrm, measurement.Service, "characteristics back-reference their service")

	generic := tree[1]
	s.Equal("1800", generic.UUID)
	s.Require().Len(generic.Characteristics, 2)
	s.True(generic.Characteristics[0].Capabilities.Readable)
	s.True(generic.Characteristics[0].Capabilities.Writable)
}

func (s *DiscoveryTestSuite) TestNonActionableCharacteristicsAreRetained() {
	s.connect()

	tree, err := s.engine.Discover(context.Background(), s.sess)
	s.Require().NoError(err)

	appearance := tree[1].Characteristics[1]
	s.Equal("2a01", appearance.UUID)
	s.False(appearance.Capabilities.Actionable(), "kept in the model even with no operations")
}

func (s *DiscoveryTestSuite) TestDiscoverAlwaysQueriesTheDevice() {
	s.connect()

	_, err := s.engine.Discover(context.Background(), s.sess)
	s.Require().NoError(err)
	_, err = s.engine.Discover(context.Background(), s.sess)
	s.Require().NoError(err)

	s.Equal(2, s.stack.Client.DiscoverCalls(), "no caching between calls")
}

func (s *DiscoveryTestSuite) TestDiscoverAfterDisconnectFails() {
	s.connect()
	s.Require().NoError(s.sess.Disconnect())

	_, err := s.engine.Discover(context.Background(), s.sess)
	s.True(core.IsKind(err, core.NotConnected))
}

func (s *DiscoveryTestSuite) TestDiscoverHonorsContext() {
	s.connect()

	s.stack.Client.DiscoverHold = make(chan struct{})
	defer close(s.stack.Client.DiscoverHold)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.engine.Discover(ctx, s.sess)
	s.Require().Error(err)
	s.ErrorIs(err, context.DeadlineExceeded)
}

func TestDiscoveryTestSuite(t *testing.T) {
	suite.Run(t, new(DiscoveryTestSuite))
}

func TestFindCharacteristic(t *testing.T) {
	hrm := &core.ServiceDescriptor{UUID: "180d"}
	hrm.Characteristics = []*core.CharacteristicDescriptor{
		{UUID: "2a37", Service: hrm},
	}
	battery := &core.ServiceDescriptor{UUID: "180f"}
	battery.Characteristics = []*core.CharacteristicDescriptor{
		{UUID: "2a19", Service: battery},
		{UUID: "2a37", Service: battery},
	}
	tree := []*core.ServiceDescriptor{hrm, battery}

	t.Run("finds by characteristic UUID alone", func(t *testing.T) {
		ch, err := discovery.FindCharacteristic(tree, "", "2a19")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ch.UUID != "2a19" {
			t.Fatalf("wrong characteristic: %s", ch.UUID)
		}
	})

	t.Run("scopes by service UUID", func(t *testing.T) {
		ch, err := discovery.FindCharacteristic(tree, "180F", "2a37")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ch.Service != battery {
			t.Fatal("resolved into the wrong service")
		}
	})

	t.Run("ambiguous without service scope", func(t *testing.T) {
		_, err := discovery.FindCharacteristic(tree, "", "2a37")
		if err == nil {
			t.Fatal("expected ambiguity error")
		}
	})

	t.Run("missing characteristic", func(t *testing.T) {
		_, err := discovery.FindCharacteristic(tree, "", "ffff")
		var notFound *discovery.NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})
}
