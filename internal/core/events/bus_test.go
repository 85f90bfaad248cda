package events_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/rbac-service/internal/core/events"
)

var _ = Describe("EventBus", func() {
	var (
		bus *events.EventBus
		at  time.Time
	)

	BeforeEach(func() {
		bus = events.NewEventBus(slog.New(slog.NewTextHandler(GinkgoWriter, nil)))
		at = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	})

	It("delivers to typed and catch-all handlers synchronously", func() {
		var seen []string
		bus.Subscribe(events.EventTypeRoleAssigned, func(_ context.Context, e events.Event) error {
			seen = append(seen, "typed:"+e.EventType())
			return nil
		})
		bus.Subscribe(events.AllEvents, func(_ context.Context, e events.Event) error {
			seen = append(seen, "all:"+e.EventType())
			return nil
		})

		err := bus.PublishSync(context.Background(), events.NewAssignmentEvent(events.EventTypeRoleAssigned, at, 2, 3, nil, false))
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(Equal([]string{"typed:rbac.role.assigned", "all:rbac.role.assigned"}))
	})

	It("stops at the first failing handler", func() {
		boom := errors.New("boom")
		calls := 0
		bus.Subscribe(events.EventTypeLogout, func(context.Context, events.Event) error { calls++; return boom })
		bus.Subscribe(events.EventTypeLogout, func(context.Context, events.Event) error { calls++; return nil })

		err := bus.PublishSync(context.Background(), events.NewAuthEvent(events.EventTypeLogout, at, 1, "", ""))
		Expect(errors.Is(err, boom)).To(BeTrue())
		Expect(calls).To(Equal(1))
	})

	It("delivers asynchronously with Publish", func() {
		var mu sync.Mutex
		got := ""
		bus.Subscribe(events.EventTypeUserCreated, func(_ context.Context, e events.Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = e.EventID()
			return nil
		})

		evt := events.NewUserEvent(events.EventTypeUserCreated, at, 9, nil)
		Expect(bus.Publish(context.Background(), evt)).To(Succeed())
		Eventually(func() string {
			mu.Lock()
			defer mu.Unlock()
			return got
		}).Should(Equal(evt.EventID()))
	})

	It("writes audit records for every event", func() {
		var buf bytes.Buffer
		audit := events.NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
		audit.Register(bus)

		Expect(bus.PublishSync(context.Background(),
			events.NewDefinitionEvent(events.EventTypeRoleCreated, at, 4, "editor", nil))).To(Succeed())
		Expect(buf.String()).To(ContainSubstring(`"event_type":"rbac.role.created"`))
		Expect(buf.String()).To(ContainSubstring(`"component":"audit"`))
	})
})
