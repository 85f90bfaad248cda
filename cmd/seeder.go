package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/frahmantamala/rbac-service/internal"
	rbacDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/rbac"
	"github.com/frahmantamala/rbac-service/internal/rbac"
	"github.com/frahmantamala/rbac-service/internal/transport/rest"
	"github.com/frahmantamala/rbac-service/internal/user"
)

const (
	viewerRoleCode       = "viewer"
	defaultAdminUsername = "admin"
	defaultAdminEmail    = "admin@example.com"
	defaultAdminPassword = "ChangeMe123!"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed roles, management permissions and an admin account",
	Long: `Seed the admin and viewer roles, every permission guarding the management API,
and an admin user. Existing rows are reused, so the command can be run repeatedly.
SEED_ADMIN_USERNAME, SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD override the admin account.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		deps, err := initializeDependencies(ctx)
		if err != nil {
			log.Fatalf("failed to initialize dependencies: %v", err)
		}
		defer deps.Close()

		if err := runSeed(ctx, deps, clearData); err != nil {
			deps.Close()
			log.Fatalf("seed failed: %v", err)
		}
	},
}

func runSeed(ctx context.Context, deps *Dependencies, clear bool) error {
	if clear {
		if err := clearLinks(ctx, deps.DB); err != nil {
			return err
		}
		deps.Engine.Invalidate(ctx)
		fmt.Println("Cleared role assignments and permission grants")
	}

	adminRole, err := ensureRole(ctx, deps.RBAC, rbac.CreateRoleDTO{
		RoleName:    "Administrator",
		RoleCode:    rbac.AdminRoleCode,
		Description: "Full access to every resource",
	})
	if err != nil {
		return err
	}
	viewerRole, err := ensureRole(ctx, deps.RBAC, rbac.CreateRoleDTO{
		RoleName:    "Viewer",
		RoleCode:    viewerRoleCode,
		Description: "Read-only access to the management API",
	})
	if err != nil {
		return err
	}

	var allIDs, viewIDs []int64
	for _, code := range rest.ManagementPermissions {
		perm, err := ensurePermission(ctx, deps.RBAC, code)
		if err != nil {
			return err
		}
		allIDs = append(allIDs, perm.ID)
		if strings.HasSuffix(code, ":view") {
			viewIDs = append(viewIDs, perm.ID)
		}
	}

	granted, err := deps.RBAC.GrantPermissions(ctx, adminRole.ID, allIDs, nil)
	if err != nil {
		return fmt.Errorf("grant admin permissions: %w", err)
	}
	fmt.Printf("Granted %d permissions to %s (%d already granted)\n", granted.Applied, adminRole.RoleCode, granted.Skipped)

	granted, err = deps.RBAC.GrantPermissions(ctx, viewerRole.ID, viewIDs, nil)
	if err != nil {
		return fmt.Errorf("grant viewer permissions: %w", err)
	}
	fmt.Printf("Granted %d permissions to %s (%d already granted)\n", granted.Applied, viewerRole.RoleCode, granted.Skipped)

	admin, err := ensureUser(ctx, deps.Users, user.CreateUserDTO{
		Username: envOr("SEED_ADMIN_USERNAME", defaultAdminUsername),
		Email:    envOr("SEED_ADMIN_EMAIL", defaultAdminEmail),
		Password: envOr("SEED_ADMIN_PASSWORD", defaultAdminPassword),
	})
	if err != nil {
		return err
	}

	assigned, err := deps.RBAC.AssignUsers(ctx, adminRole.ID, []int64{admin.ID}, nil)
	if err != nil {
		return fmt.Errorf("assign admin role: %w", err)
	}
	if assigned.Applied > 0 {
		fmt.Println("Assigned admin role to:", admin.Username)
	}
	return nil
}

func clearLinks(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := all.Delete(&rbacDatamodel.UserRole{}).Error; err != nil {
			return fmt.Errorf("clear user roles: %w", err)
		}
		if err := all.Delete(&rbacDatamodel.RolePermission{}).Error; err != nil {
			return fmt.Errorf("clear role permissions: %w", err)
		}
		return nil
	})
}

func ensureRole(ctx context.Context, svc *rbac.Service, dto rbac.CreateRoleDTO) (*rbac.Role, error) {
	role, err := svc.GetRoleByCode(ctx, dto.RoleCode)
	if err == nil {
		fmt.Println("Role already exists:", role.RoleCode)
		return role, nil
	}
	if !internal.IsType(err, internal.ErrorTypeNotFound) {
		return nil, fmt.Errorf("look up role %s: %w", dto.RoleCode, err)
	}

	role, err = svc.CreateRole(ctx, dto)
	if err != nil {
		return nil, fmt.Errorf("create role %s: %w", dto.RoleCode, err)
	}
	fmt.Println("Seeded role:", role.RoleCode)
	return role, nil
}

func ensurePermission(ctx context.Context, svc *rbac.Service, code string) (*rbac.Permission, error) {
	resource, action := rbac.SplitCode(code)
	existing, err := svc.ListPermissions(ctx, resource)
	if err != nil {
		return nil, fmt.Errorf("list %s permissions: %w", resource, err)
	}
	for _, p := range existing {
		if p.PermissionCode == code {
			return p, nil
		}
	}

	perm, err := svc.CreatePermission(ctx, rbac.CreatePermissionDTO{
		PermissionName: fmt.Sprintf("%s %s", strings.ToUpper(action[:1])+action[1:], resource),
		PermissionCode: code,
		ResourceType:   resource,
		ActionType:     action,
	})
	if err != nil {
		return nil, fmt.Errorf("create permission %s: %w", code, err)
	}
	fmt.Println("Seeded permission:", perm.PermissionCode)
	return perm, nil
}

func ensureUser(ctx context.Context, svc *user.Service, dto user.CreateUserDTO) (*user.User, error) {
	u, err := svc.FindByLogin(ctx, dto.Username)
	if err != nil {
		return nil, fmt.Errorf("look up user %s: %w", dto.Username, err)
	}
	if u != nil {
		fmt.Println("User already exists:", u.Username)
		return u, nil
	}

	u, err = svc.CreateUser(ctx, dto)
	if err != nil {
		return nil, fmt.Errorf("create user %s: %w", dto.Username, err)
	}
	fmt.Println("Seeded admin user:", u.Username)
	return u, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
