package vmengine_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"akari/pkg/vmengine"
)

func TestMockEngineStartThenStop(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()

	e := vmengine.NewMockEngine()
	g.Expect(e.Start(ctx)).To(Succeed())
	g.Expect(e.Stop(ctx)).To(Succeed())
}

func TestMockEngineConnectRequiresRunning(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()

	e := vmengine.NewMockEngine()
	err := e.Connect(ctx, 1234, "/tmp/akari-test-not-running.sock")
	g.Expect(err).To(HaveOccurred())
}

func TestMockEngineDoubleStartFails(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()

	e := vmengine.NewMockEngine()
	g.Expect(e.Start(ctx)).To(Succeed())
	g.Expect(e.Start(ctx)).To(HaveOccurred())
}

func TestMockEngineConnectExposesGuestConn(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()

	e := vmengine.NewMockEngine()
	g.Expect(e.Start(ctx)).To(Succeed())

	path := t.TempDir() + "/host.sock"
	g.Expect(e.Connect(ctx, 1234, path)).To(Succeed())
	g.Expect(e.GuestConn(1234)).NotTo(BeNil())

	g.Expect(e.Disconnect(ctx, 1234)).To(Succeed())
	g.Expect(e.GuestConn(1234)).To(BeNil())
}

func TestMockEngineConnectRejectsDuplicatePort(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()

	e := vmengine.NewMockEngine()
	g.Expect(e.Start(ctx)).To(Succeed())

	dir := t.TempDir()
	g.Expect(e.Connect(ctx, 1234, dir+"/a.sock")).To(Succeed())
	err := e.Connect(ctx, 1234, dir+"/b.sock")
	g.Expect(err).To(HaveOccurred())
}

func TestMockEngineSubmitRespectsContextDeadline(t *testing.T) {
	g := NewWithT(t)

	e := vmengine.NewMockEngine()
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	// Start may race the already-expired deadline; either outcome is a
	// valid terminal result, this just exercises the ctx.Done() path
	// in engineCore.submit without panicking or hanging.
	_ = e.Start(ctx)
}
