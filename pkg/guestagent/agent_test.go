package guestagent_test

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
	"akari/pkg/guestagent"
	"akari/pkg/guestwire"
)

// fakeVsock backs Agent's ListenFunc with loopback TCP listeners,
// indexed by the same port number the agent requests so a test can
// dial the listener that corresponds to a given vsock port.
type fakeVsock struct {
	mu        sync.Mutex
	addrByPort map[uint32]string
}

func newFakeVsock() *fakeVsock {
	return &fakeVsock{addrByPort: make(map[uint32]string)}
}

func (f *fakeVsock) listen(port uint32) (net.Listener, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.addrByPort[port] = l.Addr().String()
	f.mu.Unlock()
	return l, nil
}

func (f *fakeVsock) dial(t *testing.T, port uint32) net.Conn {
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

func startAgent(t *testing.T) (*fakeVsock, func()) {
	t.Helper()
	fv := newFakeVsock()
	agent := guestagent.New(fv.listen)

	ctx, cancel := context.WithCancel(context.Background())
	go agent.Serve(ctx)

	// Wait for the bootstrap listener to be registered.
	g := NewWithT(t)
	g.Eventually(func() string {
		fv.mu.Lock()
		defer fv.mu.Unlock()
		return fv.addrByPort[defaults.BootstrapAgentPort]
	}, time.Second).ShouldNot(BeEmpty())

	return fv, cancel
}

func createContainer(t *testing.T, fv *fakeVsock, vsockPort uint32) {
	t.Helper()
	g := NewWithT(t)

	conn := fv.dial(t, defaults.BootstrapAgentPort)
	defer conn.Close()

	req := guestwire.Request{
		Kind:      guestwire.RequestCreate,
		VsockPort: vsockPort,
		Spec: &specs.Spec{
			Process: &specs.Process{Args: []string{"/bin/sleep", "30"}},
		},
	}
	g.Expect(guestwire.NewEncoder(conn).Encode(req)).To(Succeed())

	var resp guestwire.Response
	g.Expect(guestwire.NewDecoder(conn).Decode(&resp)).To(Succeed())
	g.Expect(resp.OK()).To(BeTrue())
}

func TestBootstrapRejectsNonCreateRequest(t *testing.T) {
	g := NewWithT(t)
	fv, cancel := startAgent(t)
	defer cancel()

	conn := fv.dial(t, defaults.BootstrapAgentPort)
	defer conn.Close()

	g.Expect(guestwire.NewEncoder(conn).Encode(guestwire.Request{Kind: guestwire.RequestState})).To(Succeed())

	var resp guestwire.Response
	g.Expect(guestwire.NewDecoder(conn).Decode(&resp)).To(Succeed())
	g.Expect(resp.OK()).To(BeFalse())
}

func TestCreateRejectsMissingProcessSpec(t *testing.T) {
	g := NewWithT(t)
	fv, cancel := startAgent(t)
	defer cancel()

	conn := fv.dial(t, defaults.BootstrapAgentPort)
	defer conn.Close()

	g.Expect(guestwire.NewEncoder(conn).Encode(guestwire.Request{
		Kind: guestwire.RequestCreate, VsockPort: 1234,
	})).To(Succeed())

	var resp guestwire.Response
	g.Expect(guestwire.NewDecoder(conn).Decode(&resp)).To(Succeed())
	g.Expect(resp.OK()).To(BeFalse())
	g.Expect(resp.Err.Kind).To(Equal(akarierr.ConfigInvalid))
}

func TestCreateThenStateOverPerContainerPort(t *testing.T) {
	g := NewWithT(t)
	fv, cancel := startAgent(t)
	defer cancel()

	createContainer(t, fv, 1234)

	conn := fv.dial(t, 1234)
	defer conn.Close()

	g.Expect(guestwire.NewEncoder(conn).Encode(guestwire.Request{Kind: guestwire.RequestState})).To(Succeed())

	var resp guestwire.Response
	g.Expect(guestwire.NewDecoder(conn).Decode(&resp)).To(Succeed())
	g.Expect(resp.OK()).To(BeTrue())
	g.Expect(resp.Status).To(Equal("created"))
}

func TestKillBeforeStartThenDeleteSucceed(t *testing.T) {
	g := NewWithT(t)
	fv, cancel := startAgent(t)
	defer cancel()

	createContainer(t, fv, 1235)

	conn := fv.dial(t, 1235)
	defer conn.Close()
	enc := guestwire.NewEncoder(conn)
	dec := guestwire.NewDecoder(conn)

	g.Expect(enc.Encode(guestwire.Request{Kind: guestwire.RequestKill, Signal: 15})).To(Succeed())
	var killResp guestwire.Response
	g.Expect(dec.Decode(&killResp)).To(Succeed())
	g.Expect(killResp.OK()).To(BeTrue()) // never started: nothing to signal, Created -> Stopped

	g.Expect(enc.Encode(guestwire.Request{Kind: guestwire.RequestDelete})).To(Succeed())
	var delResp guestwire.Response
	g.Expect(dec.Decode(&delResp)).To(Succeed())
	g.Expect(delResp.OK()).To(BeTrue())
}

func TestUnknownRequestKindReturnsSerializationError(t *testing.T) {
	g := NewWithT(t)
	fv, cancel := startAgent(t)
	defer cancel()

	createContainer(t, fv, 1236)

	conn := fv.dial(t, 1236)
	defer conn.Close()

	g.Expect(guestwire.NewEncoder(conn).Encode(guestwire.Request{Kind: "bogus"})).To(Succeed())

	var resp guestwire.Response
	g.Expect(guestwire.NewDecoder(conn).Decode(&resp)).To(Succeed())
	g.Expect(resp.OK()).To(BeFalse())
	g.Expect(resp.Err.Kind).To(Equal(akarierr.Serialization))
}
