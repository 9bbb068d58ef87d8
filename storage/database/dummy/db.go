package dummydb

import (
	"context"
	"sync"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/attendance"
	"github.com/vilmosmisota/sportapp/core/member"
	"github.com/vilmosmisota/sportapp/core/tenant"
	"github.com/vilmosmisota/sportapp/core/user"
)

type (
	// DB is an in-memory database enforcing the same unique constraints as the postgres schema.
	DB struct {
		sync.RWMutex
		txMu sync.Mutex

		tables
	}

	tables struct {
		tenant     map[string]tenant.Tenant
		settings   map[string]tenant.Settings
		user       map[string]user.User
		membership map[membershipKey]user.Membership
		member     map[string]member.Member
		team       map[string]member.Team
		teamMember map[string]map[string]bool // {memberID: {teamID}}
		season     map[string]attendance.Season
		session    map[string]attendance.Session
		attendance map[string]attendance.Record
	}

	membershipKey struct {
		tenantID string
		userID   string
	}
)

func Open() (*DB, error) {
	return &DB{tables: newTables()}, nil
}

func newTables() tables {
	return tables{
		tenant:     make(map[string]tenant.Tenant),
		settings:   make(map[string]tenant.Settings),
		user:       make(map[string]user.User),
		membership: make(map[membershipKey]user.Membership),
		member:     make(map[string]member.Member),
		team:       make(map[string]member.Team),
		teamMember: make(map[string]map[string]bool),
		season:     make(map[string]attendance.Season),
		session:    make(map[string]attendance.Session),
		attendance: make(map[string]attendance.Record),
	}
}

func (t tables) clone() tables {
	c := newTables()
	for k, v := range t.tenant {
		c.tenant[k] = v
	}
	for k, v := range t.settings {
		c.settings[k] = v
	}
	for k, v := range t.user {
		c.user[k] = v
	}
	for k, v := range t.membership {
		c.membership[k] = v
	}
	for k, v := range t.member {
		c.member[k] = v
	}
	for k, v := range t.team {
		c.team[k] = v
	}
	for k, v := range t.teamMember {
		teams := make(map[string]bool, len(v))
		for id := range v {
			teams[id] = true
		}
		c.teamMember[k] = teams
	}
	for k, v := range t.season {
		c.season[k] = v
	}
	for k, v := range t.session {
		c.session[k] = v
	}
	for k, v := range t.attendance {
		c.attendance[k] = v
	}
	return c
}

// Reset empties every table.
func (db *DB) Reset() {
	db.Lock()
	defer db.Unlock()
	db.tables = newTables()
}

type transactor struct {
	db *DB
}

var _ core.Transactor = (*transactor)(nil) // interface compliance check

// NewTransactor returns a Transactor running one unit of work at a time.
// The tables are restored to their previous state when fn fails.
func NewTransactor(db *DB) core.Transactor {
	return &transactor{db: db}
}

func (t *transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.db.txMu.Lock()
	defer t.db.txMu.Unlock()

	t.db.RLock()
	snapshot := t.db.tables.clone()
	t.db.RUnlock()

	if err := fn(ctx); err != nil {
		t.db.Lock()
		t.db.tables = snapshot
		t.db.Unlock()
		return err
	}
	return nil
}
