package netconf

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Junos-specific NETCONF namespaces (spec.md §4.5).
const (
	NSJunos = "http://xml.juniper.net/netconf/junos/1.0"
	NSXNM   = "http://xml.juniper.net/xnm/1.1/xnm"
	NSJcmd  = "http://yang.juniper.net/junos/jcmd"
)

// EphemeralDB is a typestate handle on one open Junos ephemeral instance
// database. Its zero value is not usable; obtain one from Session.OpenDB.
// Once Close has been called, the handle must not be reused (spec.md §4.5).
type EphemeralDB struct {
	session *Session
	name    string
	closed  bool
}

// OpenDB opens (or re-opens) the named ephemeral instance database. Junos
// only permits one ephemeral database open per session; OpenDB rejects a
// second concurrent open with BadStateError rather than silently replacing
// the existing handle.
func (s *Session) OpenDB(ctx context.Context, name string) (*EphemeralDB, error) {
	if name == "" {
		name = "update-" + uuid.NewString()
	}

	s.dbMu.Lock()
	if s.dbOpenName != "" {
		open := s.dbOpenName
		s.dbMu.Unlock()
		return nil, &BadStateError{Operation: "open-configuration", State: fmt.Sprintf("database %q already open", open)}
	}
	s.dbOpenName = name
	s.dbMu.Unlock()

	body := fmt.Sprintf(`<open-configuration xmlns="%s"><ephemeral-instance>%s</ephemeral-instance></open-configuration>`, NSJunos, name)
	if _, err := s.rpc(ctx, []byte(body)); err != nil {
		s.dbMu.Lock()
		s.dbOpenName = ""
		s.dbMu.Unlock()
		return nil, err
	}
	return &EphemeralDB{session: s, name: name}, nil
}

// Close closes the ephemeral database, releasing it for reuse by a later
// OpenDB call on the same session.
func (db *EphemeralDB) Close(ctx context.Context) error {
	if db.closed {
		return &BadStateError{Operation: "close-configuration", State: "already closed"}
	}
	body := fmt.Sprintf(`<close-configuration xmlns="%s"><ephemeral-instance>%s</ephemeral-instance></close-configuration>`, NSJunos, db.name)
	_, err := db.session.rpc(ctx, []byte(body))
	db.closed = true
	db.session.dbMu.Lock()
	if db.session.dbOpenName == db.name {
		db.session.dbOpenName = ""
	}
	db.session.dbMu.Unlock()
	return err
}

// GetConfig reads the ephemeral database's current candidate content,
// optionally restricted by a subtree filter.
func (db *EphemeralDB) GetConfig(ctx context.Context, filter string) (Reply, error) {
	if db.closed {
		return Reply{}, &BadStateError{Operation: "get-configuration", State: "database closed"}
	}
	body := fmt.Sprintf(
		`<get-configuration database="ephemeral" ephemeral-instance-name="%s" xmlns="%s">%s</get-configuration>`,
		db.name, NSJunos, wrapFilter(filter),
	)
	return db.session.rpc(ctx, []byte(body))
}

// LoadFormat is the "format" attribute on <load-configuration>.
type LoadFormat string

const (
	LoadXML  LoadFormat = "xml"
	LoadText LoadFormat = "text"
	LoadJSON LoadFormat = "json"
)

// LoadConfig loads the differ's rendered <configuration> element into the
// ephemeral database. Per spec.md §4.4 this is always an incremental
// "update" load — the per-term delete="delete" markers the differ emits
// (policy/render.go) carry the removal semantics, not a wholesale replace.
func (db *EphemeralDB) LoadConfig(ctx context.Context, format LoadFormat, configurationXML string) (Reply, error) {
	if db.closed {
		return Reply{}, &BadStateError{Operation: "load-configuration", State: "database closed"}
	}
	body := fmt.Sprintf(
		`<load-configuration action="update" format="%s" database="ephemeral" ephemeral-instance-name="%s" xmlns="%s"><configuration>%s</configuration></load-configuration>`,
		format, db.name, NSJunos, configurationXML,
	)
	return db.session.rpc(ctx, []byte(body))
}

// Commit commits the ephemeral database into the active configuration.
// sync selects at most one of synchronize and force-synchronize, so the two
// are never sent together (DESIGN.md). A confirmed commit combined with
// force-synchronize is rejected client-side with
// UnsupportedParameterValueError before anything is sent.
func (db *EphemeralDB) Commit(ctx context.Context, opts CommitOptions, sync JunosSyncMode) (Reply, error) {
	if db.closed {
		return Reply{}, &BadStateError{Operation: "commit-configuration", State: "database closed"}
	}
	if sync == JunosSyncForceSynchronize && opts.Confirmed {
		// force-synchronize implies a full resync across routing-engines;
		// Junos does not support combining it with a confirmed commit.
		return Reply{}, &UnsupportedParameterValueError{Operation: "commit-configuration", Parameter: "confirmed+force-synchronize", Value: "true"}
	}

	attrs := fmt.Sprintf(`database="ephemeral" ephemeral-instance-name="%s"`, db.name)
	switch sync {
	case JunosSyncSynchronize:
		attrs += ` synchronize="synchronize"`
	case JunosSyncForceSynchronize:
		attrs += ` force-synchronize="force-synchronize"`
	}

	inner := ""
	if opts.Confirmed {
		inner = `<confirmed/>`
		if opts.ConfirmTimeout > 0 {
			inner += fmt.Sprintf(`<confirm-timeout>%d</confirm-timeout>`, opts.ConfirmTimeout)
		}
	}

	body := fmt.Sprintf(`<commit-configuration %s xmlns="%s">%s</commit-configuration>`, attrs, NSJunos, inner)
	return db.session.rpc(ctx, []byte(body))
}

// JunosSyncMode selects between plain, synchronize, and force-synchronize
// commit behaviour on a routing-engine pair (spec.md §9 Open Question).
type JunosSyncMode int

const (
	JunosSyncNone JunosSyncMode = iota
	JunosSyncSynchronize
	JunosSyncForceSynchronize
)
