package database_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/rbac-service/internal/core/database"
	rbacDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/rbac"
)

var _ = Describe("Database", func() {
	var (
		db  *gorm.DB
		txm database.TxManager
		ctx context.Context
	)

	BeforeEach(func() {
		var err error
		fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		db, err = database.OpenInMemory(func() time.Time { return fixed })
		Expect(err).NotTo(HaveOccurred())
		txm = database.NewTxManager(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(database.Close(db)).To(Succeed())
	})

	It("stamps rows with the configured clock", func() {
		role := &rbacDatamodel.Role{RoleName: "Viewer", RoleCode: "viewer", Status: 1}
		Expect(db.Create(role).Error).To(Succeed())
		Expect(role.CreatedAt.Equal(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))).To(BeTrue())
	})

	It("rolls back every write when the function fails", func() {
		boom := errors.New("boom")
		err := txm.RunInTx(ctx, func(txCtx context.Context) error {
			Expect(database.InTx(txCtx)).To(BeTrue())
			tx := database.GetDB(txCtx, db)
			Expect(tx.Create(&rbacDatamodel.Role{RoleName: "Viewer", RoleCode: "viewer", Status: 1}).Error).To(Succeed())
			return boom
		})
		Expect(err).To(MatchError(boom))

		var count int64
		Expect(db.Model(&rbacDatamodel.Role{}).Count(&count).Error).To(Succeed())
		Expect(count).To(BeZero())
	})

	It("joins an outer transaction", func() {
		err := txm.RunInTx(ctx, func(outer context.Context) error {
			Expect(database.GetDB(outer, db).Create(&rbacDatamodel.Role{RoleName: "A", RoleCode: "aa", Status: 1}).Error).To(Succeed())
			return txm.RunInTx(outer, func(inner context.Context) error {
				return database.GetDB(inner, db).Create(&rbacDatamodel.Role{RoleName: "B", RoleCode: "bb", Status: 1}).Error
			})
		})
		Expect(err).NotTo(HaveOccurred())

		var count int64
		Expect(db.Model(&rbacDatamodel.Role{}).Count(&count).Error).To(Succeed())
		Expect(count).To(Equal(int64(2)))
	})

	It("recognises unique violations", func() {
		Expect(db.Create(&rbacDatamodel.Role{RoleName: "A", RoleCode: "dup", Status: 1}).Error).To(Succeed())
		err := db.Create(&rbacDatamodel.Role{RoleName: "B", RoleCode: "dup", Status: 1}).Error
		Expect(err).To(HaveOccurred())
		Expect(database.IsUniqueViolation(err)).To(BeTrue())

		err = db.Create(&rbacDatamodel.UserRole{UserID: 1, RoleID: 1, AssignedAt: time.Now(), Status: 1}).Error
		Expect(err).NotTo(HaveOccurred())
		err = db.Create(&rbacDatamodel.UserRole{UserID: 1, RoleID: 1, AssignedAt: time.Now(), Status: 1}).Error
		Expect(database.IsUniqueViolation(err)).To(BeTrue())
		Expect(database.IsUniqueViolation(nil)).To(BeFalse())
	})

	It("recognises missing rows", func() {
		var role rbacDatamodel.Role
		err := db.First(&role, 99).Error
		Expect(database.IsNotFound(err)).To(BeTrue())
	})
})
