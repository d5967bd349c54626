package models_test

import (
	"testing"

	. "github.com/onsi/gomega"

	"akari/pkg/models"
)

func TestAllocatePortStartsAtMinPort(t *testing.T) {
	g := NewWithT(t)

	m := models.NewStateMap()
	m.Lock()
	defer m.Unlock()

	g.Expect(m.AllocatePort()).To(Equal(models.MinPort))
}

func TestAllocatePortIsMaxPlusOne(t *testing.T) {
	g := NewWithT(t)

	m := models.NewStateMap()
	m.Insert(&models.Container{ID: "a", VsockPort: models.MinPort})
	m.Insert(&models.Container{ID: "b", VsockPort: models.MinPort + 5})

	m.Lock()
	defer m.Unlock()

	g.Expect(m.AllocatePort()).To(Equal(models.MinPort + 6))
}

func TestAllocatePortNeverReusesALiveContainersPort(t *testing.T) {
	g := NewWithT(t)

	m := models.NewStateMap()

	m.Lock()
	first := m.AllocatePort()
	m.InsertLocked(&models.Container{ID: "a", VsockPort: first})
	m.Unlock()

	m.Lock()
	second := m.AllocatePort()
	m.InsertLocked(&models.Container{ID: "b", VsockPort: second})
	m.Unlock()

	g.Expect(second).To(BeNumerically(">", first))
}

func TestAllocatePortSkipsPortsStillHeldByOtherContainers(t *testing.T) {
	g := NewWithT(t)

	m := models.NewStateMap()

	m.Lock()
	first := m.AllocatePort()
	m.InsertLocked(&models.Container{ID: "a", VsockPort: first})
	second := m.AllocatePort()
	m.InsertLocked(&models.Container{ID: "b", VsockPort: second})
	m.Unlock()

	g.Expect(second).To(Equal(first + 1))

	// Removing "a" does not take the allocator back below the highest
	// port it has already handed out.
	m.Remove("a")

	m.Lock()
	defer m.Unlock()
	g.Expect(m.AllocatePort()).To(Equal(second + 1))
}

func TestStateMapInsertGetRemove(t *testing.T) {
	g := NewWithT(t)

	m := models.NewStateMap()
	g.Expect(m.Exists("a")).To(BeFalse())

	m.Insert(&models.Container{ID: "a", Status: models.StatusCreated})
	g.Expect(m.Exists("a")).To(BeTrue())

	c, ok := m.Get("a")
	g.Expect(ok).To(BeTrue())
	g.Expect(c.Status).To(Equal(models.StatusCreated))

	m.Remove("a")
	g.Expect(m.Exists("a")).To(BeFalse())
}

func TestStateMapAll(t *testing.T) {
	g := NewWithT(t)

	m := models.NewStateMap()
	m.Insert(&models.Container{ID: "a"})
	m.Insert(&models.Container{ID: "b"})

	g.Expect(m.All()).To(HaveLen(2))
}
