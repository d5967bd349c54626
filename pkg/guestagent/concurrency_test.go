package guestagent

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"akari/pkg/akarierr"
	"akari/pkg/defaults"
	"akari/pkg/guestwire"
)

// concurrencyFixture is an in-package stand-in for agent_test.go's
// fakeVsock, kept separate so this file can reach into Agent's
// unexported container map to force the in-flight condition property 3
// guards against.
type concurrencyFixture struct {
	mu         sync.Mutex
	addrByPort map[uint32]string
}

func newConcurrencyFixture() *concurrencyFixture {
	return &concurrencyFixture{addrByPort: make(map[uint32]string)}
}

func (f *concurrencyFixture) listen(port uint32) (net.Listener, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.addrByPort[port] = l.Addr().String()
	f.mu.Unlock()
	return l, nil
}

func (f *concurrencyFixture) dial(t *testing.T, port uint32) net.Conn {
	t.Helper()
	g := NewWithT(t)
	g.Eventually(func() string {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.addrByPort[port]
	}, time.Second).ShouldNot(BeEmpty())

	f.mu.Lock()
	addr := f.addrByPort[port]
	f.mu.Unlock()

	conn, err := net.Dial("tcp", addr)
	g.Expect(err).NotTo(HaveOccurred())
	return conn
}

// TestConcurrentCallsToSameContainerRejectOverlap exercises testable
// property 3 end to end: two real connections race a request against
// the same container's per-container port. The first goroutine holds
// the container's dispatch lock directly, which is exactly the state
// handleContainerConn itself is in mid-dispatch, then a second,
// genuinely concurrent wire request must be rejected with
// UnexpectedStatus/"call already in flight" rather than either
// blocking or running alongside the first.
func TestConcurrentCallsToSameContainerRejectOverlap(t *testing.T) {
	g := NewWithT(t)

	fv := newConcurrencyFixture()
	agent := New(fv.listen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agent.Serve(ctx)

	g.Eventually(func() string {
		fv.mu.Lock()
		defer fv.mu.Unlock()
		return fv.addrByPort[defaults.BootstrapAgentPort]
	}, time.Second).ShouldNot(BeEmpty())

	const port = 1234

	bootstrapConn := fv.dial(t, defaults.BootstrapAgentPort)
	defer bootstrapConn.Close()

	createReq := guestwire.Request{
		Kind:      guestwire.RequestCreate,
		VsockPort: port,
		Spec:      &specs.Spec{Process: &specs.Process{Args: []string{"/bin/sleep", "30"}}},
	}
	g.Expect(guestwire.NewEncoder(bootstrapConn).Encode(createReq)).To(Succeed())
	var createResp guestwire.Response
	g.Expect(guestwire.NewDecoder(bootstrapConn).Decode(&createResp)).To(Succeed())
	g.Expect(createResp.OK()).To(BeTrue())

	// Reach into the Agent's own bookkeeping to grab the container this
	// Create just registered, the same object handleContainerConn's
	// TryLock guards.
	agent.mu.Lock()
	c := agent.containers[containerKeyForPort(port)]
	agent.mu.Unlock()
	g.Expect(c).NotTo(BeNil())

	// Simulate "a call is mid-dispatch" by holding the lock exactly as
	// dispatch itself would for the duration of one request.
	c.mu.Lock()

	connA := fv.dial(t, port)
	defer connA.Close()

	g.Expect(guestwire.NewEncoder(connA).Encode(guestwire.Request{Kind: guestwire.RequestState})).To(Succeed())

	var overlapResp guestwire.Response
	g.Expect(guestwire.NewDecoder(connA).Decode(&overlapResp)).To(Succeed())
	g.Expect(overlapResp.OK()).To(BeFalse())
	g.Expect(overlapResp.Err.Kind).To(Equal(akarierr.UnexpectedStatus))

	c.mu.Unlock()

	// Once released, a fresh call over a second connection succeeds.
	connB := fv.dial(t, port)
	defer connB.Close()

	g.Expect(guestwire.NewEncoder(connB).Encode(guestwire.Request{Kind: guestwire.RequestState})).To(Succeed())

	var okResp guestwire.Response
	g.Expect(guestwire.NewDecoder(connB).Decode(&okResp)).To(Succeed())
	g.Expect(okResp.OK()).To(BeTrue())
}
