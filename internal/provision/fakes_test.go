package provision

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/repo"
	"github.com/shaiso/Chatplane/internal/tenantdb"
)

// --- SQL fakes ---

// fakeTx записывает выполненный SQL и отдаёт заготовленные значения для QueryRow.
type fakeTx struct {
	pgx.Tx

	mu         sync.Mutex
	execs      []string
	failOn     map[string]error
	scans      []any
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.execs = append(t.execs, sql)
	for substr, err := range t.failOn {
		if strings.Contains(sql, substr) {
			return pgconn.CommandTag{}, err
		}
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (t *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.scans) == 0 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	v := t.scans[0]
	t.scans = t.scans[1:]
	return fakeRow{value: v}
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

func (t *fakeTx) executed(substr string) bool {
	for _, sql := range t.execs {
		if strings.Contains(sql, substr) {
			return true
		}
	}
	return false
}

type fakeRow struct {
	value any
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	switch d := dest[0].(type) {
	case *bool:
		*d = r.value.(bool)
	case *int64:
		*d = r.value.(int64)
	case *string:
		*d = r.value.(string)
	}
	return nil
}

// fakeRows — результат Query со строковой колонкой.
type fakeRows struct {
	pgx.Rows
	values []string
	pos    int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.values)
}

func (r *fakeRows) Scan(dest ...any) error {
	*dest[0].(*string) = r.values[r.pos-1]
	return nil
}

func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Close() {}

// fakeDB выдаёт новую fakeTx на каждый Begin.
type fakeDB struct {
	mu      sync.Mutex
	txs     []*fakeTx
	newTx   func() *fakeTx
	applied []string
	execs   []string
	closed  bool
}

func (d *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.execs = append(d.execs, sql)
	return pgconn.NewCommandTag("OK"), nil
}

func (d *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return &fakeRows{values: d.applied}, nil
}

func (d *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return fakeRow{err: pgx.ErrNoRows}
}

func (d *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx := &fakeTx{}
	if d.newTx != nil {
		tx = d.newTx()
	}
	d.txs = append(d.txs, tx)
	return tx, nil
}

func (d *fakeDB) Ping(context.Context) error { return nil }
func (d *fakeDB) Close() { d.closed = true }

// --- catalog fakes ---

type fakeTenants struct {
	mu       sync.Mutex
	byOrg    map[string]*domain.Tenant
	statuses []domain.TenantStatus
}

func newFakeTenants() *fakeTenants {
	return &fakeTenants{byOrg: make(map[string]*domain.Tenant)}
}

func (f *fakeTenants) Create(_ context.Context, t *domain.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byOrg[t.OrganizationID]; ok {
		return repo.ErrAlreadyExists
	}
	cp := *t
	f.byOrg[t.OrganizationID] = &cp
	return nil
}

func (f *fakeTenants) GetByOrganizationID(_ context.Context, orgID string) (*domain.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byOrg[orgID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTenants) UpdateStatus(_ context.Context, id uuid.UUID, status domain.TenantStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.byOrg {
		if t.ID == id {
			t.Status = status
			f.statuses = append(f.statuses, status)
			return nil
		}
	}
	return repo.ErrNotFound
}

func (f *fakeTenants) AssignHost(_ context.Context, id, hostID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.byOrg {
		if t.ID == id {
			t.DatabaseHostID = &hostID
			return nil
		}
	}
	return repo.ErrNotFound
}

func (f *fakeTenants) status(orgID string) domain.TenantStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byOrg[orgID].Status
}

type fakeHosts struct {
	mu        sync.Mutex
	host      *domain.DatabaseHost
	allocated int
}

func newFakeHosts() *fakeHosts {
	return &fakeHosts{host: &domain.DatabaseHost{
		ID: uuid.New(), Name: "pg-1", Host: "db.internal", Port: 5432,
		MaxTenants: 100, Status: domain.HostStatusActive, IsDefault: true,
	}}
}

func (f *fakeHosts) Allocate(context.Context) (*domain.DatabaseHost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allocated++
	f.host.CurrentTenants++
	cp := *f.host
	return &cp, nil
}

func (f *fakeHosts) GetByID(_ context.Context, id uuid.UUID) (*domain.DatabaseHost, error) {
	if id != f.host.ID {
		return nil, repo.ErrNotFound
	}
	cp := *f.host
	return &cp, nil
}

type migrationEntry struct {
	name   string
	status domain.MigrationStatus
	errMsg string
}

type fakeLogs struct {
	mu         sync.Mutex
	migrations []migrationEntry
	activities []domain.ActivityLog
	latest     string
}

func (f *fakeLogs) StartMigration(_ context.Context, _ uuid.UUID, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.migrations = append(f.migrations, migrationEntry{name: name, status: domain.MigrationStatusRunning})
	return int64(len(f.migrations)), nil
}

func (f *fakeLogs) FinishMigration(_ context.Context, id int64, status domain.MigrationStatus, errMsg string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.migrations[id-1].status = status
	f.migrations[id-1].errMsg = errMsg
	return nil
}

func (f *fakeLogs) LatestMigration(context.Context, uuid.UUID) (string, error) {
	if f.latest == "" {
		return "", repo.ErrNotFound
	}
	return f.latest, nil
}

func (f *fakeLogs) InsertActivity(_ context.Context, entry *domain.ActivityLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, *entry)
	return nil
}

type fakeAdmin struct {
	mu      sync.Mutex
	created []string
	exists  bool
}

func (f *fakeAdmin) CreateDatabase(_ context.Context, _ *domain.DatabaseHost, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, name)
	return nil
}

func (f *fakeAdmin) DatabaseExists(context.Context, *domain.DatabaseHost, string) (bool, error) {
	return f.exists, nil
}

type fakeMigrator struct {
	mu      sync.Mutex
	calls   int
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeMigrator) Apply(context.Context, tenantdb.DB, uuid.UUID) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	return f.err
}

type fakeConverter struct {
	mu     sync.Mutex
	tables []string
}

func (f *fakeConverter) Convert(_ context.Context, _ tenantdb.DB, table PartitionedTable) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables = append(f.tables, table.Name)
	return nil
}

type recordingReporter struct {
	mu     sync.Mutex
	events []Progress
}

func (r *recordingReporter) Report(_ context.Context, p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
}

type fakePools struct {
	err error
}

func (f *fakePools) Get(context.Context, string) (tenantdb.DB, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fakeDB{}, nil
}
