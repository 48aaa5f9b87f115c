package authz

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"opsuite.io/internal/session"
	"opsuite.io/internal/token"
)

const testSecret = "guard-test-secret"

func newTestIssuer(t *testing.T, opts ...token.IssuerOption) *token.Issuer {
	t.Helper()
	iss, err := token.NewIssuer(testSecret, "opsuite", 15*time.Minute, opts...)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return iss
}

func newTestService(t *testing.T, db *sql.DB, opts ...ServiceOption) *Service {
	t.Helper()
	svc, err := NewService(NewPGStore(db), newTestIssuer(t), opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func userRows(status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "organization_id", "role_id", "email", "password_hash", "status", "created_at", "updated_at",
	}).AddRow("u1", "org1", "role1", "u1@example.com", "hash", status, now, now)
}

func permissionRows(raw string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"permissions"}).AddRow([]byte(raw))
}

func sessionHandle(t *testing.T, access, refresh string) (*session.Handle, *httptest.ResponseRecorder) {
	t.Helper()
	mgr := session.NewManager(false, 15*time.Minute, 7*24*time.Hour)
	seed := httptest.NewRecorder()
	if access != "" {
		mgr.SetAccessToken(seed, access)
	}
	if refresh != "" {
		mgr.SetRefreshToken(seed, refresh)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range seed.Result().Cookies() {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	return mgr.Bind(rr, req), rr
}

func TestCheckActionNoSession(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	svc := newTestService(t, db)

	d := svc.CheckAction(context.Background(), session.FromToken(""), "sales", "leads", "view")
	if d.Authorized() {
		t.Fatal("expected denial without session")
	}
	if d.Reason != DenyUnauthenticated {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
}

func TestCheckActionAuthorized(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	svc := newTestService(t, db)

	access, _, err := newTestIssuer(t).IssueAccess("u1", "u1@example.com", "org1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	mock.ExpectQuery("from users where id=.+ and organization_id=").WillReturnRows(userRows(UserStatusActive))
	mock.ExpectQuery("select permissions from roles where id=").WillReturnRows(permissionRows(`["sales:leads:view"]`))

	d := svc.CheckAction(context.Background(), session.FromToken(access), "sales", "leads", "view")
	if !d.Authorized() {
		t.Fatalf("expected authorization, got %s (%v)", d.Reason, d.Err)
	}
	if d.User.ID != "u1" {
		t.Fatalf("authorized user must match token subject, got %s", d.User.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCheckActionForbiddenWithoutExactCapability(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	svc := newTestService(t, db)

	access, _, err := newTestIssuer(t).IssueAccess("u1", "u1@example.com", "org1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	mock.ExpectQuery("from users where id=").WillReturnRows(userRows(UserStatusActive))
	mock.ExpectQuery("select permissions from roles where id=").WillReturnRows(permissionRows(`["sales:leads:view"]`))

	d := svc.CheckAction(context.Background(), session.FromToken(access), "sales", "leads", "delete")
	if d.Authorized() {
		t.Fatal("expected denial for missing capability")
	}
	if d.Reason != DenyForbidden {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
}

func TestCheckActionInactiveUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	svc := newTestService(t, db)

	access, _, err := newTestIssuer(t).IssueAccess("u1", "u1@example.com", "org1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	mock.ExpectQuery("from users where id=").WillReturnRows(userRows(UserStatusDisabled))

	d := svc.CheckAction(context.Background(), session.FromToken(access), "sales", "leads", "view")
	if d.Reason != DenyUserInactive {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
}

func TestCheckActionUserNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	svc := newTestService(t, db)

	access, _, err := newTestIssuer(t).IssueAccess("ghost", "", "org1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	mock.ExpectQuery("from users where id=").WillReturnError(sql.ErrNoRows)

	d := svc.CheckAction(context.Background(), session.FromToken(access), "sales", "leads", "view")
	if d.Reason != DenyUserNotFound {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
}

func TestCheckActionMalformedToken(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	svc := newTestService(t, db)

	d := svc.CheckAction(context.Background(), session.FromToken("not-a-jwt"), "sales", "leads", "view")
	if d.Reason != DenyMalformedToken {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
}

func TestCheckActionExpiredWithoutRefresh(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	svc := newTestService(t, db)

	past := time.Now().Add(-time.Hour)
	stale := newTestIssuer(t, token.WithClock(func() time.Time { return past }))
	access, _, err := stale.IssueAccess("u1", "", "org1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	d := svc.CheckAction(context.Background(), session.FromToken(access), "sales", "leads", "view")
	if d.Reason != DenySessionExpired {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
}

func TestCheckActionSilentRenewal(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	svc := newTestService(t, db)

	// Access token expired 10 minutes ago.
	past := time.Now().Add(-25 * time.Minute)
	stale := newTestIssuer(t, token.WithClock(func() time.Time { return past }))
	access, _, err := stale.IssueAccess("u1", "u1@example.com", "org1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	secret := "refresh-secret-value"
	sum := sha256.Sum256([]byte(secret))
	now := time.Now()
	mock.ExpectQuery("from refresh_tokens where id=").WillReturnRows(
		sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at", "revoked"}).
			AddRow("rt1", "u1", hex.EncodeToString(sum[:]), now.Add(24*time.Hour), now, false))
	mock.ExpectQuery("from users where id=").WillReturnRows(userRows(UserStatusActive))
	mock.ExpectExec("update refresh_tokens set revoked=true where id=").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("from users where id=.+ and organization_id=").WillReturnRows(userRows(UserStatusActive))
	mock.ExpectQuery("select permissions from roles where id=").WillReturnRows(permissionRows(`["sales:leads:view"]`))

	h, rr := sessionHandle(t, access, "rt1."+secret)
	d := svc.CheckAction(context.Background(), h, "sales", "leads", "view")
	if !d.Authorized() {
		t.Fatalf("expected authorization after renewal, got %s (%v)", d.Reason, d.Err)
	}

	renewed := h.Session().AccessToken
	if renewed == access {
		t.Fatal("access token was not renewed")
	}
	if _, err := newTestIssuer(t).VerifyAccess(renewed); err != nil {
		t.Fatalf("renewed token must verify: %v", err)
	}
	if len(rr.Result().Cookies()) == 0 {
		t.Fatal("renewed tokens must be written back to cookies")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCheckActionRevokedRefreshCannotRenew(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	svc := newTestService(t, db)

	secret := "refresh-secret-value"
	sum := sha256.Sum256([]byte(secret))
	now := time.Now()
	mock.ExpectQuery("from refresh_tokens where id=").WillReturnRows(
		sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at", "revoked"}).
			AddRow("rt1", "u1", hex.EncodeToString(sum[:]), now.Add(24*time.Hour), now, true))

	h, _ := sessionHandle(t, "", "rt1."+secret)
	d := svc.CheckAction(context.Background(), h, "sales", "leads", "view")
	if d.Reason != DenySessionExpired {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
}

func TestCheckActionDenylistedAccessToken(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	dl := session.NewDenylist(client)

	svc, err := NewService(NewPGStore(db), newTestIssuer(t), WithDenylist(dl))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	access, exp, err := newTestIssuer(t).IssueAccess("u1", "", "org1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	claims, err := token.Decode(access)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := dl.Revoke(context.Background(), claims.JTI, exp); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	d := svc.CheckAction(context.Background(), session.FromToken(access), "sales", "leads", "view")
	if d.Authorized() {
		t.Fatal("denylisted token must not authorize")
	}
	if d.Reason != DenySessionExpired {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
}

func TestCheckActionFailsClosedOnStoreError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	svc := newTestService(t, db)

	access, _, err := newTestIssuer(t).IssueAccess("u1", "", "org1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	mock.ExpectQuery("from users where id=").WillReturnError(errors.New("connection reset"))

	d := svc.CheckAction(context.Background(), session.FromToken(access), "sales", "leads", "view")
	if d.Authorized() {
		t.Fatal("store failure must deny")
	}
	if d.Reason != DenyInternal || d.Err == nil {
		t.Fatalf("expected internal denial with retained error, got %s (%v)", d.Reason, d.Err)
	}
}

func TestCheckSessionInactiveUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	svc := newTestService(t, db)

	access, _, err := newTestIssuer(t).IssueAccess("u1", "u1@example.com", "org1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	mock.ExpectQuery("from users where id=.+ and organization_id=").WillReturnRows(userRows(UserStatusDisabled))

	d := svc.CheckSession(context.Background(), session.FromToken(access))
	if d.Authorized() {
		t.Fatal("disabled user must not hold a session")
	}
	if d.Reason != DenyUserInactive {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
}

func TestCheckSessionAuthorized(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	svc := newTestService(t, db)

	access, _, err := newTestIssuer(t).IssueAccess("u1", "u1@example.com", "org1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	mock.ExpectQuery("from users where id=.+ and organization_id=").WillReturnRows(userRows(UserStatusActive))
	mock.ExpectQuery("select permissions from roles where id=").WillReturnRows(permissionRows(`["sales:leads:view"]`))

	d := svc.CheckSession(context.Background(), session.FromToken(access))
	if !d.Authorized() {
		t.Fatalf("expected session authorization, got %s (%v)", d.Reason, d.Err)
	}
	if !d.Capabilities.Has(Capability{Module: "sales", Resource: "leads", Action: "view"}) {
		t.Fatal("capability snapshot missing from session decision")
	}
}
