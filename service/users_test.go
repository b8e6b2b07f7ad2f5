package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skryldev/findmybuddy/apperrors"
	"github.com/Skryldev/findmybuddy/db"
	"github.com/Skryldev/findmybuddy/models"
	"github.com/Skryldev/findmybuddy/service"
)

// clock hands out strictly increasing timestamps so newest-first ordering is
// deterministic.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(t *testing.T) (*service.Users, *db.DB) {
	t.Helper()
	database, err := db.Open(db.Config{
		DSN:          ":memory:",
		DriverName:   "sqlite3",
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	c := &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	users, err := service.NewUsers(database, service.Options{
		BcryptCost: bcrypt.MinCost,
		Clock:      c.Now,
	})
	require.NoError(t, err)
	return users, database
}

func ann() service.RegisterInput {
	return service.RegisterInput{
		Name:     "Ann",
		Email:    "ann@gmail.com",
		Address:  "12 Elm Street",
		PinCode:  "560001",
		Password: "secret1",
	}
}

func resident(name, pin string) service.RegisterInput {
	in := ann()
	in.Name = name
	in.Email = name + "@gmail.com"
	in.PinCode = pin
	return in
}

func requireKind(t *testing.T, err error, kind apperrors.Kind) *apperrors.AppError {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected *AppError, got %T: %v", err, err)
	require.Equal(t, kind, appErr.Kind, appErr.Error())
	return appErr
}

// ─────────────────────────────────────────────────────────────────────────────
// List / seed
// ─────────────────────────────────────────────────────────────────────────────

func TestList_EmptyReturnsSeed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	seed := first[0]
	assert.Equal(t, models.SeedAdminID, seed.ID)
	assert.Equal(t, models.SeedAdminEmail, seed.Email)
	assert.Equal(t, "000000", seed.PinCode)
	assert.Equal(t, models.RoleAdmin, seed.Role)
	assert.Equal(t, models.StatusApproved, seed.Status)

	second, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, seed.ID, second[0].ID)
	assert.True(t, second[0].CreatedAt.After(seed.CreatedAt), "seed timestamp is per call")
}

func TestList_SeedNotPersisted(t *testing.T) {
	svc, database := newTestService(t)
	ctx := context.Background()

	_, err := svc.List(ctx)
	require.NoError(t, err)

	var n int
	require.NoError(t, database.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n))
	assert.Zero(t, n)
}

func TestList_SeedDisappearsAfterFirstRegistration(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, ann())
	require.NoError(t, err)

	users, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "ann@gmail.com", users[0].Email)
}

func TestList_NewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"ann", "bob", "cy"} {
		_, err := svc.Register(ctx, resident(name, "560001"))
		require.NoError(t, err)
	}

	users, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "cy", users[0].Name)
	assert.Equal(t, "bob", users[1].Name)
	assert.Equal(t, "ann", users[2].Name)
}

// ─────────────────────────────────────────────────────────────────────────────
// Register
// ─────────────────────────────────────────────────────────────────────────────

func TestRegister_ForcesPendingUser(t *testing.T) {
	svc, _ := newTestService(t)

	u, err := svc.Register(context.Background(), ann())
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, models.StatusPending, u.Status)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.NotEqual(t, "secret1", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret1")))
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, ann())
	require.NoError(t, err)

	_, err = svc.Register(ctx, ann())
	appErr := requireKind(t, err, apperrors.KindConstraint)
	assert.Equal(t, "Email already registered", appErr.Message)
}

func TestRegister_EmailIsCaseInsensitive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, ann())
	require.NoError(t, err)

	shouty := ann()
	shouty.Email = "  Ann@Gmail.com "
	_, err = svc.Register(ctx, shouty)
	appErr := requireKind(t, err, apperrors.KindConstraint)
	assert.Equal(t, "Email already registered", appErr.Message)

	require.NoError(t, svc.UpdateStatus(ctx, u.ID, models.StatusApproved))
	got, err := svc.Login(ctx, "ANN@gmail.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "ann@gmail.com", got.Email)
}

func TestRegister_StoresLowercaseEmail(t *testing.T) {
	svc, _ := newTestService(t)

	in := ann()
	in.Email = "Ann.Lee@GMAIL.COM"
	u, err := svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "ann.lee@gmail.com", u.Email)
}

func TestRegister_ConcurrentDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	const racers = 5
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Register(ctx, ann())
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		requireKind(t, err, apperrors.KindConstraint)
	}
	assert.Equal(t, 1, ok)
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	cases := map[string]func(*service.RegisterInput){
		"missing name": func(in *service.RegisterInput) { in.Name = "  " },
		"non gmail":    func(in *service.RegisterInput) { in.Email = "ann@yahoo.com" },
		"short pin":    func(in *service.RegisterInput) { in.PinCode = "56001" },
		"letter pin":   func(in *service.RegisterInput) { in.PinCode = "56000a" },
		"short pass":   func(in *service.RegisterInput) { in.Password = "abc" },
		"missing addr": func(in *service.RegisterInput) { in.Address = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := ann()
			mutate(&in)
			_, err := svc.Register(context.Background(), in)
			appErr := requireKind(t, err, apperrors.KindValidation)
			assert.NotNil(t, appErr.Details)
		})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// UpdateStatus
// ─────────────────────────────────────────────────────────────────────────────

func TestUpdateStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, ann())
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(ctx, u.ID, models.StatusApproved))
	require.NoError(t, svc.UpdateStatus(ctx, u.ID, models.StatusRejected))

	users, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, models.StatusRejected, users[0].Status, "last write wins")
	assert.True(t, u.CreatedAt.Equal(users[0].CreatedAt), "createdAt is immutable")
}

func TestUpdateStatus_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.UpdateStatus(context.Background(), "ghost", models.StatusApproved)
	requireKind(t, err, apperrors.KindNotFound)
}

func TestUpdateStatus_InvalidStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, ann())
	require.NoError(t, err)

	requireKind(t, svc.UpdateStatus(ctx, u.ID, models.StatusPending), apperrors.KindValidation)
	requireKind(t, svc.UpdateStatus(ctx, u.ID, "archived"), apperrors.KindValidation)
	requireKind(t, svc.UpdateStatus(ctx, "", models.StatusApproved), apperrors.KindValidation)
}

// ─────────────────────────────────────────────────────────────────────────────
// Login
// ─────────────────────────────────────────────────────────────────────────────

func TestLogin_SeedWhileEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Login(ctx, models.SeedAdminEmail, service.DefaultSeedPassword)
	require.NoError(t, err)
	assert.Equal(t, models.SeedAdminID, u.ID)
	assert.True(t, u.IsAdmin())

	_, err = svc.Login(ctx, models.SeedAdminEmail, "wrong")
	requireKind(t, err, apperrors.KindInvalidCredentials)
}

func TestLogin_SeedGoneAfterRegistration(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, ann())
	require.NoError(t, err)

	_, err = svc.Login(ctx, models.SeedAdminEmail, service.DefaultSeedPassword)
	requireKind(t, err, apperrors.KindInvalidCredentials)
}

func TestLogin_StatusGates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, ann())
	require.NoError(t, err)

	_, err = svc.Login(ctx, "ann@gmail.com", "secret1")
	appErr := requireKind(t, err, apperrors.KindPendingApproval)
	assert.Equal(t, "Account verification in progress", appErr.Message)

	require.NoError(t, svc.UpdateStatus(ctx, u.ID, models.StatusRejected))
	_, err = svc.Login(ctx, "ann@gmail.com", "secret1")
	appErr = requireKind(t, err, apperrors.KindRejected)
	assert.Equal(t, "Application declined by security", appErr.Message)

	require.NoError(t, svc.UpdateStatus(ctx, u.ID, models.StatusApproved))
	got, err := svc.Login(ctx, "ann@gmail.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = svc.Login(ctx, "ann@gmail.com", "wrong-password")
	requireKind(t, err, apperrors.KindInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@gmail.com", "secret1")
	requireKind(t, err, apperrors.KindInvalidCredentials)
}

// ─────────────────────────────────────────────────────────────────────────────
// Bootstrap
// ─────────────────────────────────────────────────────────────────────────────

func TestBootstrap_CreatesAdminOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Bootstrap(ctx)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.Bootstrap(ctx)
	require.NoError(t, err)
	assert.False(t, created)

	users, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, models.SeedAdminID, users[0].ID)
	assert.True(t, users[0].IsAdmin())

	u, err := svc.Login(ctx, models.SeedAdminEmail, service.DefaultSeedPassword)
	require.NoError(t, err)
	assert.Equal(t, models.SeedAdminID, u.ID)
}

// ─────────────────────────────────────────────────────────────────────────────
// Schema failures
// ─────────────────────────────────────────────────────────────────────────────

func TestSchemaFailure(t *testing.T) {
	svc, database := newTestService(t)
	require.NoError(t, database.Close())

	_, err := svc.List(context.Background())
	requireKind(t, err, apperrors.KindSchema)
}

func TestSchemaUnreachableIsConnectivity(t *testing.T) {
	svc, _ := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.List(ctx)
	appErr := requireKind(t, err, apperrors.KindConnectivity)
	assert.Equal(t, "Database Connection Exception", appErr.Message)

	// The failed attempt is not remembered.
	users, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
}

func TestBootstrap_SeedEmailNormalized(t *testing.T) {
	database, err := db.Open(db.Config{DSN: ":memory:", DriverName: "sqlite3", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	svc, err := service.NewUsers(database, service.Options{
		SeedAdminEmail: " Boss@Gmail.com",
		BcryptCost:     bcrypt.MinCost,
	})
	require.NoError(t, err)
	ctx := context.Background()

	created, err := svc.Bootstrap(ctx)
	require.NoError(t, err)
	require.True(t, created)

	u, err := svc.Login(ctx, "BOSS@gmail.com", service.DefaultSeedPassword)
	require.NoError(t, err)
	assert.Equal(t, "boss@gmail.com", u.Email)
	assert.Equal(t, models.RoleAdmin, u.Role)
}

// ─────────────────────────────────────────────────────────────────────────────
// The Ann / Bob / Cy walkthrough
// ─────────────────────────────────────────────────────────────────────────────

func TestWalkthrough(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ids := map[string]string{}
	for _, r := range []struct{ name, pin string }{
		{"ann", "560001"},
		{"bob", "560001"},
		{"cy", "110001"},
	} {
		u, err := svc.Register(ctx, resident(r.name, r.pin))
		require.NoError(t, err, r.name)
		ids[r.name] = u.ID
	}
	for _, name := range []string{"ann", "bob", "cy"} {
		require.NoError(t, svc.UpdateStatus(ctx, ids[name], models.StatusApproved), name)
	}

	users, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	for _, u := range users {
		assert.Equal(t, models.StatusApproved, u.Status, fmt.Sprintf("%s status", u.Name))
	}
}
