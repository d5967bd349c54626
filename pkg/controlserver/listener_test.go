package controlserver_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/spf13/afero"

	"akari/pkg/akarierr"
	"akari/pkg/auxproto"
	"akari/pkg/controlserver"
	"akari/pkg/models"
	"akari/pkg/vmengine"
)

func writeBundle(t *testing.T) string {
	t.Helper()
	bundle := t.TempDir()
	spec := &specs.Spec{
		Version: models.OciVersion,
		Process: &specs.Process{Args: []string{"sh"}},
		Root:    &specs.Root{Path: "rootfs"},
	}
	data, err := json.Marshal(spec)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bundle, "config.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	return bundle
}

// TestFullLifecycleOverAuxSock drives create -> state -> start -> state
// -> kill -> state -> delete -> state through a real aux.sock listener,
// the same sequence spec.md's end-to-end scenarios exercise, ending in
// ContainerNotFound once the container is gone.
func TestFullLifecycleOverAuxSock(t *testing.T) {
	g := NewWithT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := vmengine.NewMockEngine()
	g.Expect(engine.Start(ctx)).To(Succeed())
	fakeGuestAgent(t, g, engine, models.MinPort)

	srv, err := controlserver.New(ctx, afero.NewMemMapFs(), t.TempDir(), engine)
	g.Expect(err).NotTo(HaveOccurred())

	auxSockPath := filepath.Join(t.TempDir(), "aux.sock")
	go srv.ListenAndServe(ctx, auxSockPath)

	g.Eventually(func() error {
		_, err := os.Stat(auxSockPath)
		return err
	}, 2*time.Second).Should(Succeed())

	client, err := auxproto.Dial(auxSockPath)
	g.Expect(err).NotTo(HaveOccurred())
	defer client.Close()

	bundle := writeBundle(t)

	_, err = client.CallExpectOK(auxproto.Request{
		Method: auxproto.MethodCreate, ContainerID: "e2e", Bundle: bundle, Rootfs: filepath.Join(bundle, "rootfs"),
	})
	g.Expect(err).NotTo(HaveOccurred())

	resp, err := client.CallExpectOK(auxproto.Request{Method: auxproto.MethodState, ContainerID: "e2e"})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(resp.State.Status).To(Equal(string(models.StatusCreated)))

	_, err = client.CallExpectOK(auxproto.Request{Method: auxproto.MethodStart, ContainerID: "e2e"})
	g.Expect(err).NotTo(HaveOccurred())

	resp, err = client.CallExpectOK(auxproto.Request{Method: auxproto.MethodState, ContainerID: "e2e"})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(resp.State.Status).To(Equal(string(models.StatusRunning)))

	_, err = client.CallExpectOK(auxproto.Request{Method: auxproto.MethodKill, ContainerID: "e2e", Signal: 15})
	g.Expect(err).NotTo(HaveOccurred())

	resp, err = client.CallExpectOK(auxproto.Request{Method: auxproto.MethodState, ContainerID: "e2e"})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(resp.State.Status).To(Equal(string(models.StatusStopped)))

	_, err = client.CallExpectOK(auxproto.Request{Method: auxproto.MethodDelete, ContainerID: "e2e"})
	g.Expect(err).NotTo(HaveOccurred())

	_, err = client.CallExpectOK(auxproto.Request{Method: auxproto.MethodState, ContainerID: "e2e"})
	g.Expect(err).To(HaveOccurred())
	g.Expect(akarierr.Is(err, akarierr.ContainerNotFound)).To(BeTrue())
}

func TestCreateWithMissingBundleConfigFails(t *testing.T) {
	g := NewWithT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := vmengine.NewMockEngine()
	g.Expect(engine.Start(ctx)).To(Succeed())
	fakeGuestAgent(t, g, engine, models.MinPort)

	srv, err := controlserver.New(ctx, afero.NewMemMapFs(), t.TempDir(), engine)
	g.Expect(err).NotTo(HaveOccurred())

	auxSockPath := filepath.Join(t.TempDir(), "aux.sock")
	go srv.ListenAndServe(ctx, auxSockPath)

	g.Eventually(func() error {
		_, err := os.Stat(auxSockPath)
		return err
	}, 2*time.Second).Should(Succeed())

	client, err := auxproto.Dial(auxSockPath)
	g.Expect(err).NotTo(HaveOccurred())
	defer client.Close()

	_, err = client.CallExpectOK(auxproto.Request{
		Method: auxproto.MethodCreate, ContainerID: "missing-config", Bundle: t.TempDir(),
	})
	g.Expect(err).To(HaveOccurred())
}
