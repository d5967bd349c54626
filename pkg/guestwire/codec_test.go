package guestwire_test

import (
	"bytes"
	"testing"

	. "github.com/onsi/gomega"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"akari/pkg/akarierr"
	"akari/pkg/guestwire"
)

func TestRequestRoundTrip(t *testing.T) {
	g := NewWithT(t)

	var buf bytes.Buffer
	want := guestwire.Request{
		Kind:      guestwire.RequestCreate,
		Spec:      &specs.Spec{Version: "v1.0.2"},
		VsockPort: 1234,
	}

	g.Expect(guestwire.NewEncoder(&buf).Encode(want)).To(Succeed())

	var got guestwire.Request
	g.Expect(guestwire.NewDecoder(&buf).Decode(&got)).To(Succeed())
	g.Expect(got.Kind).To(Equal(want.Kind))
	g.Expect(got.VsockPort).To(Equal(want.VsockPort))
	g.Expect(got.Spec.Version).To(Equal(want.Spec.Version))
}

func TestResponseRoundTripWithError(t *testing.T) {
	g := NewWithT(t)

	var buf bytes.Buffer
	want := guestwire.Response{Err: akarierr.New(akarierr.ContainerNotFound, "no such container")}

	g.Expect(guestwire.NewEncoder(&buf).Encode(want)).To(Succeed())

	var got guestwire.Response
	g.Expect(guestwire.NewDecoder(&buf).Decode(&got)).To(Succeed())
	g.Expect(got.OK()).To(BeFalse())
	g.Expect(got.Err.Kind).To(Equal(akarierr.ContainerNotFound))
}

func TestMultipleFramesOnOneStream(t *testing.T) {
	g := NewWithT(t)

	var buf bytes.Buffer
	enc := guestwire.NewEncoder(&buf)
	g.Expect(enc.Encode(guestwire.Request{Kind: guestwire.RequestStart})).To(Succeed())
	g.Expect(enc.Encode(guestwire.Request{Kind: guestwire.RequestKill, Signal: 9})).To(Succeed())

	dec := guestwire.NewDecoder(&buf)

	var first guestwire.Request
	g.Expect(dec.Decode(&first)).To(Succeed())
	g.Expect(first.Kind).To(Equal(guestwire.RequestStart))

	var second guestwire.Request
	g.Expect(dec.Decode(&second)).To(Succeed())
	g.Expect(second.Kind).To(Equal(guestwire.RequestKill))
	g.Expect(second.Signal).To(Equal(9))
}

func TestDecodeOnEmptyReaderErrors(t *testing.T) {
	g := NewWithT(t)

	var buf bytes.Buffer
	var got guestwire.Request
	g.Expect(guestwire.NewDecoder(&buf).Decode(&got)).To(HaveOccurred())
}

func TestOKReportsSuccessWhenErrIsNil(t *testing.T) {
	g := NewWithT(t)
	g.Expect(guestwire.Response{Status: "running"}.OK()).To(BeTrue())
}
