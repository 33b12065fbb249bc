package scan_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/blescope/blescope/internal/adapter"
	"github.com/blescope/blescope/internal/core"
	"github.com/blescope/blescope/internal/scan"
	"github.com/blescope/blescope/internal/testutil"
)

type ControllerTestSuite struct {
	suite.Suite

	stack      *testutil.FakeStack
	monitor    *adapter.Monitor
	controller *scan.Controller
}

func (s *ControllerTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	s.stack = testutil.NewFakeStack()
	s.monitor = adapter.NewMonitor(s.stack, logger)
	s.controller = scan.NewController(s.stack, s.monitor, logger)
}

// drainUntilStopped consumes events until the terminal one, returning
// everything seen before it.
func (s *ControllerTestSuite) drainUntilStopped() []scan.Event {
	var events []scan.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-s.controller.Events():
			if ev.Type == scan.EventStopped {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			s.FailNow("no terminal event within deadline")
		}
	}
}

func (s *ControllerTestSuite) TestScanCollectsInDiscoveryOrder() {
	s.stack.Queue(
		testutil.NewAdv("AA:BB:CC:DD:EE:01", "Sensor A", -40).WithServices("180d"),
		testutil.NewAdv("AA:BB:CC:DD:EE:02", "Sensor B", -55).WithServices("180f"),
	)

	err := s.controller.Start(context.Background(), scan.Options{Timeout: 100 * time.Millisecond})
	s.Require().NoError(err)
	s.Require().NoError(s.controller.Wait())

	devices := s.controller.Snapshot()
	s.Require().Len(devices, 2)
	s.Equal("AA:BB:CC:DD:EE:01", devices[0].ID)
	s.Equal("AA:BB:CC:DD:EE:02", devices[1].ID)
	s.Equal("Sensor A", devices[0].Name)
	s.Equal(-40, devices[0].RSSI)
	s.False(devices[0].FirstSeen.IsZero())
}

func (s *ControllerTestSuite) TestRepeatSightingUpdatesInPlace() {
	s.stack.Queue(
		testutil.NewAdv("AA:BB:CC:DD:EE:01", "", -70),
		testutil.NewAdv("AA:BB:CC:DD:EE:01", "Sensor", -42),
	)

	err := s.controller.Start(context.Background(), scan.Options{Timeout: 100 * time.Millisecond})
	s.Require().NoError(err)
	s.Require().NoError(s.controller.Wait())

	devices := s.controller.Snapshot()
	s.Require().Len(devices, 1, "one entry per device identity")
	s.Equal("Sensor", devices[0].Name, "later sighting contributes the name")
	s.Equal(-42, devices[0].RSSI, "most recent signal wins")
	s.True(devices[0].LastSeen.Compare(devices[0].FirstSeen) >= 0)
}

func (s *ControllerTestSuite) TestEventStreamMarksNewAndUpdated() {
	s.stack.Queue(
		testutil.NewAdv("AA:BB:CC:DD:EE:01", "Sensor", -40),
		testutil.NewAdv("AA:BB:CC:DD:EE:01", "Sensor", -41),
		testutil.NewAdv("AA:BB:CC:DD:EE:02", "Other", -60),
	)

	err := s.controller.Start(context.Background(), scan.Options{Timeout: 100 * time.Millisecond})
	s.Require().NoError(err)

	events := s.drainUntilStopped()
	s.Require().Len(events, 3)
	s.Equal(scan.EventNew, events[0].Type)
	s.Equal(scan.EventUpdated, events[1].Type)
	s.Equal(scan.EventNew, events[2].Type)
}

func (s *ControllerTestSuite) TestNameFilterIsCaseInsensitiveSubstring() {
	s.stack.Queue(
		testutil.NewAdv("AA:BB:CC:DD:EE:01", "TempSensor-1", -40),
		testutil.NewAdv("AA:BB:CC:DD:EE:02", "OtherDevice", -50),
	)

	err := s.controller.Start(context.Background(), scan.Options{
		Timeout:      100 * time.Millisecond,
		NameContains: "sensor",
	})
	s.Require().NoError(err)
	s.Require().NoError(s.controller.Wait())

	devices := s.controller.Snapshot()
	s.Require().Len(devices, 1)
	s.Equal("TempSensor-1", devices[0].Name)
}

func (s *ControllerTestSuite) TestFiltersCombineConjunctively() {
	s.stack.Queue(
		// Name matches, service does not.
		testutil.NewAdv("AA:BB:CC:DD:EE:01", "Sensor A", -40).WithServices("1800"),
		// Both match.
		testutil.NewAdv("AA:BB:CC:DD:EE:02", "Sensor B", -50).WithServices("180d"),
		// Service matches, name does not.
		testutil.NewAdv("AA:BB:CC:DD:EE:03", "Beacon", -60).WithServices("180d"),
	)

	err := s.controller.Start(context.Background(), scan.Options{
		Timeout:      100 * time.Millisecond,
		NameContains: "sensor",
		ServiceUUIDs: []string{"180D"},
	})
	s.Require().NoError(err)
	s.Require().NoError(s.controller.Wait())

	devices := s.controller.Snapshot()
	s.Require().Len(devices, 1)
	s.Equal("AA:BB:CC:DD:EE:02", devices[0].ID)
}

func (s *ControllerTestSuite) TestServiceFilterMatchesLongForm() {
	s.stack.Queue(
		testutil.NewAdv("AA:BB:CC:DD:EE:01", "HRM", -40).
			WithServices("0000180d-0000-1000-8000-00805f9b34fb"),
	)

	err := s.controller.Start(context.Background(), scan.Options{
		Timeout:      100 * time.Millisecond,
		ServiceUUIDs: []string{"180d"},
	})
	s.Require().NoError(err)
	s.Require().NoError(s.controller.Wait())

	s.Equal(1, s.controller.Len(), "16-bit and SIG-base 128-bit forms are the same service")
}

func (s *ControllerTestSuite) TestAllowListFilter() {
	s.stack.Queue(
		testutil.NewAdv("AA:BB:CC:DD:EE:01", "One", -40),
		testutil.NewAdv("AA:BB:CC:DD:EE:02", "Two", -50),
	)

	err := s.controller.Start(context.Background(), scan.Options{
		Timeout:    100 * time.Millisecond,
		AllowedIDs: []string{"aa:bb:cc:dd:ee:02"},
	})
	s.Require().NoError(err)
	s.Require().NoError(s.controller.Wait())

	devices := s.controller.Snapshot()
	s.Require().Len(devices, 1)
	s.Equal("AA:BB:CC:DD:EE:02", devices[0].ID)
}

func (s *ControllerTestSuite) TestStartWhileActiveIsRejected() {
	err := s.controller.Start(context.Background(), scan.Options{Timeout: 5 * time.Second})
	s.Require().NoError(err)
	defer func() {
		s.controller.Stop()
		_ = s.controller.Wait()
	}()

	err = s.controller.Start(context.Background(), scan.Options{Timeout: time.Second})
	s.Require().Error(err)
	s.True(core.IsKind(err, core.ScanAlreadyActive))
}

func (s *ControllerTestSuite) TestStartWithAdapterOffIsRejected() {
	s.stack.ProbeErr = core.ErrAdapterUnavailable
	s.monitor.Refresh(context.Background())

	err := s.controller.Start(context.Background(), scan.Options{Timeout: time.Second})
	s.Require().Error(err)
	s.True(core.IsKind(err, core.AdapterUnavailable))
	s.False(s.controller.Active())
}

func (s *ControllerTestSuite) TestStopEmitsSingleTerminalEvent() {
	err := s.controller.Start(context.Background(), scan.Options{})
	s.Require().NoError(err)

	s.Eventually(s.stack.Scanning, 2*time.Second, 10*time.Millisecond)
	s.controller.Stop()
	s.Require().NoError(s.controller.Wait())
	s.False(s.controller.Active())

	stopped := 0
	timeout := time.After(200 * time.Millisecond)
drain:
	for {
		select {
		case ev := <-s.controller.Events():
			if ev.Type == scan.EventStopped {
				stopped++
			}
		case <-timeout:
			break drain
		}
	}
	s.Equal(1, stopped, "exactly one terminal event per scan")
}

func (s *ControllerTestSuite) TestStopWhenIdleIsNoOp() {
	s.controller.Stop()
	s.False(s.controller.Active())
	s.NoError(s.controller.Wait())
}

func (s *ControllerTestSuite) TestRestartDiscardsPreviousResults() {
	s.stack.Queue(testutil.NewAdv("AA:BB:CC:DD:EE:01", "First", -40))

	err := s.controller.Start(context.Background(), scan.Options{Timeout: 100 * time.Millisecond})
	s.Require().NoError(err)
	s.Require().NoError(s.controller.Wait())
	s.Require().Equal(1, s.controller.Len())

	s.stack.Queue(testutil.NewAdv("AA:BB:CC:DD:EE:02", "Second", -50))

	err = s.controller.Start(context.Background(), scan.Options{Timeout: 100 * time.Millisecond})
	s.Require().NoError(err)
	s.Require().NoError(s.controller.Wait())

	devices := s.controller.Snapshot()
	s.Require().Len(devices, 1, "restart begins with an empty collection")
	s.Equal("AA:BB:CC:DD:EE:02", devices[0].ID)
}

func (s *ControllerTestSuite) TestLiveAdvertisementsDuringScan() {
	err := s.controller.Start(context.Background(), scan.Options{})
	s.Require().NoError(err)

	s.Eventually(s.stack.Scanning, 2*time.Second, 10*time.Millisecond)
	s.stack.Advertise(testutil.NewAdv("AA:BB:CC:DD:EE:01", "Live", -45))

	s.Eventually(func() bool { return s.controller.Len() == 1 },
		2*time.Second, 10*time.Millisecond)

	s.controller.Stop()
	s.Require().NoError(s.controller.Wait())
}

func TestControllerTestSuite(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}

func TestDefaultOptions(t *testing.T) {
	opts := scan.DefaultOptions()
	if opts.Timeout != 10*time.Second || !opts.AllowDuplicates {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
}
