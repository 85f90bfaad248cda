package user_test

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	errors "github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/clock"
	"github.com/frahmantamala/rbac-service/internal/core/database"
	"github.com/frahmantamala/rbac-service/internal/core/events"
	"github.com/frahmantamala/rbac-service/internal/user"
	"github.com/frahmantamala/rbac-service/internal/user/postgres"
)

const strongPassword = "Sup3r#Secret"

// plainHasher keeps tests fast; the bcrypt hasher is covered in auth.
type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "plain:" + p, nil }

func (plainHasher) Compare(hash, p string) error {
	if hash != "plain:"+p {
		return stderrors.New("mismatch")
	}
	return nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) { c.calls++ }

func codeOf(err error) errors.ErrorCode {
	appErr, ok := errors.IsAppError(err)
	Expect(ok).To(BeTrue(), "expected an AppError, got %v", err)
	return appErr.Code
}

func fieldCodeOf(err error) string {
	appErr, ok := errors.IsAppError(err)
	Expect(ok).To(BeTrue())
	details, ok := appErr.Details.(errors.ValidationErrors)
	Expect(ok).To(BeTrue())
	return details.Errors[0].Code
}

var _ = Describe("Service", func() {
	var (
		ctx         context.Context
		db          *gorm.DB
		svc         *user.Service
		invalidator *countingInvalidator
		published   []string
	)

	BeforeEach(func() {
		ctx = context.Background()
		clk := clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
		var err error
		db, err = database.OpenInMemory(clk.Now)
		Expect(err).NotTo(HaveOccurred())

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		bus := events.NewEventBus(logger)
		published = nil
		bus.Subscribe(events.AllEvents, func(_ context.Context, e events.Event) error {
			published = append(published, e.EventType())
			return nil
		})

		invalidator = &countingInvalidator{}
		svc = user.NewService(postgres.NewUserRepository(db), database.NewTxManager(db), plainHasher{}, invalidator, bus, clk, logger)
	})

	AfterEach(func() {
		Expect(database.Close(db)).To(Succeed())
	})

	create := func(username string) *user.User {
		u, err := svc.CreateUser(ctx, user.CreateUserDTO{Username: username, Email: username + "@Example.com", Password: strongPassword})
		Expect(err).NotTo(HaveOccurred())
		return u
	}

	Describe("CreateUser", func() {
		It("stores a hashed password and a lower-cased email", func() {
			u := create("alice")
			Expect(u.ID).To(BeNumerically(">", 0))
			Expect(u.Email).To(Equal("alice@example.com"))
			Expect(u.PasswordHash).To(Equal("plain:" + strongPassword))
			Expect(u.IsEnabled()).To(BeTrue())
			Expect(published).To(ContainElement(events.EventTypeUserCreated))
		})

		It("validates every field", func() {
			cases := []struct {
				dto  user.CreateUserDTO
				code errors.ErrorCode
			}{
				{user.CreateUserDTO{Username: "1alice", Email: "a@example.com", Password: strongPassword}, errors.ErrCodeInvalidUsername},
				{user.CreateUserDTO{Username: "al", Email: "a@example.com", Password: strongPassword}, errors.ErrCodeInvalidUsername},
				{user.CreateUserDTO{Username: "alice", Email: "not-an-email", Password: strongPassword}, errors.ErrCodeInvalidEmail},
				{user.CreateUserDTO{Username: "alice", Email: "a@example.com", Password: "short1!"}, errors.ErrCodeWeakPassword},
				{user.CreateUserDTO{Username: "alice", Email: "a@example.com", Password: "alllowercase1!"}, errors.ErrCodeWeakPassword},
			}
			for _, tc := range cases {
				_, err := svc.CreateUser(ctx, tc.dto)
				Expect(fieldCodeOf(err)).To(Equal(string(tc.code)), "%+v", tc.dto)
			}
		})

		It("rejects a taken username or email", func() {
			create("alice")

			_, err := svc.CreateUser(ctx, user.CreateUserDTO{Username: "alice", Email: "other@example.com", Password: strongPassword})
			Expect(codeOf(err)).To(Equal(errors.ErrCodeDuplicateUser))

			_, err = svc.CreateUser(ctx, user.CreateUserDTO{Username: "alice2", Email: "ALICE@example.com", Password: strongPassword})
			Expect(codeOf(err)).To(Equal(errors.ErrCodeDuplicateUser))
		})
	})

	Describe("CreateUsers", func() {
		It("creates every user and publishes one event each", func() {
			users, err := svc.CreateUsers(ctx, []user.CreateUserDTO{
				{Username: "alice", Email: "alice@example.com", Password: strongPassword},
				{Username: "bob", Email: "bob@example.com", Password: strongPassword},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(HaveLen(2))
			Expect(published).To(Equal([]string{events.EventTypeUserCreated, events.EventTypeUserCreated}))
		})

		It("creates no one when an entry is invalid", func() {
			_, err := svc.CreateUsers(ctx, []user.CreateUserDTO{
				{Username: "alice", Email: "alice@example.com", Password: strongPassword},
				{Username: "bob", Email: "ALICE@example.com", Password: strongPassword},
			})
			Expect(codeOf(err)).To(Equal(errors.ErrCodeDuplicateUser))
			appErr, _ := errors.IsAppError(err)
			Expect(appErr.Message).To(HavePrefix("users[1]:"))

			_, total, err := svc.ListUsers(ctx, user.ListFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(BeZero())
			Expect(published).To(BeEmpty())
		})

		It("rejects empty and oversized batches", func() {
			_, err := svc.CreateUsers(ctx, nil)
			Expect(fieldCodeOf(err)).To(Equal(string(errors.ErrCodeValidationFailed)))

			_, err = svc.CreateUsers(ctx, make([]user.CreateUserDTO, user.MaxBatchSize+1))
			Expect(fieldCodeOf(err)).To(Equal(string(errors.ErrCodeValidationFailed)))
		})
	})

	Describe("Statistics", func() {
		It("counts users by status", func() {
			create("alice")
			create("bob")
			carol := create("carol")
			_, err := svc.DisableUser(ctx, carol.ID)
			Expect(err).NotTo(HaveOccurred())

			stats, err := svc.Statistics(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(*stats).To(Equal(user.Statistics{TotalUsers: 3, EnabledUsers: 2, DisabledUsers: 1}))
		})

		It("reports zeros for an empty store", func() {
			stats, err := svc.Statistics(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalUsers).To(BeZero())
		})
	})

	Describe("FindByLogin", func() {
		It("resolves usernames and emails", func() {
			alice := create("alice")

			u, err := svc.FindByLogin(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(u.ID).To(Equal(alice.ID))

			u, err = svc.FindByLogin(ctx, "ALICE@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(u.ID).To(Equal(alice.ID))

			u, err = svc.FindByLogin(ctx, "nobody")
			Expect(err).NotTo(HaveOccurred())
			Expect(u).To(BeNil())
		})
	})

	Describe("UpdateUser", func() {
		It("allows keeping its own username and rejects another user's", func() {
			alice := create("alice")
			create("bob")

			same := "alice"
			email := "alice@new.example.com"
			u, err := svc.UpdateUser(ctx, alice.ID, user.UpdateUserDTO{Username: &same, Email: &email})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Email).To(Equal(email))

			taken := "bob"
			_, err = svc.UpdateUser(ctx, alice.ID, user.UpdateUserDTO{Username: &taken})
			Expect(codeOf(err)).To(Equal(errors.ErrCodeDuplicateUser))
		})

		It("reports missing users", func() {
			name := "ghost"
			_, err := svc.UpdateUser(ctx, 999, user.UpdateUserDTO{Username: &name})
			Expect(codeOf(err)).To(Equal(errors.ErrCodeUserNotFound))
		})
	})

	Describe("SetStatus", func() {
		It("invalidates permissions only on a real change", func() {
			alice := create("alice")

			u, err := svc.DisableUser(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.IsEnabled()).To(BeFalse())
			Expect(invalidator.calls).To(Equal(1))
			Expect(published).To(ContainElement(events.EventTypeUserStatusChanged))

			_, err = svc.DisableUser(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(invalidator.calls).To(Equal(1))

			u, err = svc.EnableUser(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.IsEnabled()).To(BeTrue())
			Expect(invalidator.calls).To(Equal(2))
		})

		It("rejects unknown statuses", func() {
			alice := create("alice")
			_, err := svc.SetStatus(ctx, alice.ID, user.Status(3))
			Expect(fieldCodeOf(err)).To(Equal(string(errors.ErrCodeInvalidStatus)))
		})
	})

	Describe("ChangePassword", func() {
		It("requires the current password", func() {
			alice := create("alice")
			err := svc.ChangePassword(ctx, alice.ID, user.ChangePasswordDTO{OldPassword: "Wrong#Pass1", NewPassword: "N3w#Password"})
			Expect(codeOf(err)).To(Equal(errors.ErrCodeInvalidCredentials))
		})

		It("refuses to reuse the current password", func() {
			alice := create("alice")
			err := svc.ChangePassword(ctx, alice.ID, user.ChangePasswordDTO{OldPassword: strongPassword, NewPassword: strongPassword})
			Expect(fieldCodeOf(err)).To(Equal(string(errors.ErrCodeSamePassword)))
		})

		It("stores the new hash", func() {
			alice := create("alice")
			Expect(svc.ChangePassword(ctx, alice.ID, user.ChangePasswordDTO{OldPassword: strongPassword, NewPassword: "N3w#Password"})).To(Succeed())

			u, err := svc.GetUser(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.PasswordHash).To(Equal("plain:N3w#Password"))
			Expect(published).To(ContainElement(events.EventTypeUserPasswordChanged))
		})
	})

	Describe("ListUsers", func() {
		BeforeEach(func() {
			for _, name := range []string{"alice", "alina", "bob", "carol"} {
				create(name)
			}
			bob, err := svc.FindByLogin(ctx, "bob")
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.DisableUser(ctx, bob.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("pages through every user", func() {
			users, total, err := svc.ListUsers(ctx, user.ListFilter{Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(int64(4)))
			Expect(users).To(HaveLen(2))

			users, _, err = svc.ListUsers(ctx, user.ListFilter{Limit: 2, Offset: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(HaveLen(2))
			Expect(users[0].Username).To(Equal("bob"))
		})

		It("filters by status and keyword", func() {
			enabled := user.StatusEnabled
			users, total, err := svc.ListUsers(ctx, user.ListFilter{Status: &enabled})
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(int64(3)))
			for _, u := range users {
				Expect(u.Username).NotTo(Equal("bob"))
			}

			users, _, err = svc.ListUsers(ctx, user.ListFilter{Keyword: "ALI"})
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(HaveLen(2))
			for _, u := range users {
				Expect(strings.HasPrefix(u.Username, "ali")).To(BeTrue())
			}
		})

		It("validates paging", func() {
			_, _, err := svc.ListUsers(ctx, user.ListFilter{Limit: 101})
			Expect(err).To(HaveOccurred())
			_, _, err = svc.ListUsers(ctx, user.ListFilter{Offset: -1})
			Expect(err).To(HaveOccurred())
		})
	})
})
