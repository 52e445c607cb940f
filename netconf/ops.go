package netconf

import (
	"context"
	"fmt"
)

// Datastore identifies a NETCONF configuration datastore target/source.
type Datastore string

const (
	Running   Datastore = "running"
	Candidate Datastore = "candidate"
	Startup   Datastore = "startup"
)

// GetConfig issues <get-config> against source, optionally restricted by a
// subtree filter (raw XML, or "" for no filter).
func (s *Session) GetConfig(ctx context.Context, source Datastore, filter string) (Reply, error) {
	body := fmt.Sprintf(`<get-config><source><%s/></source>%s</get-config>`, source, wrapFilter(filter))
	return s.rpc(ctx, []byte(body))
}

// Get issues a bare <get>, optionally restricted by a subtree filter.
func (s *Session) Get(ctx context.Context, filter string) (Reply, error) {
	body := fmt.Sprintf(`<get>%s</get>`, wrapFilter(filter))
	return s.rpc(ctx, []byte(body))
}

func wrapFilter(filter string) string {
	if filter == "" {
		return ""
	}
	return fmt.Sprintf(`<filter type="subtree">%s</filter>`, filter)
}

// EditOperation is the "operation" attribute on an <edit-config> target.
type EditOperation string

const (
	EditMerge   EditOperation = "merge"
	EditReplace EditOperation = "replace"
	EditCreate  EditOperation = "create"
	EditDelete  EditOperation = "delete"
)

// EditConfig issues <edit-config> against target with the given
// already-serialised <config> content.
func (s *Session) EditConfig(ctx context.Context, target Datastore, configXML string) (Reply, error) {
	body := fmt.Sprintf(`<edit-config><target><%s/></target><config>%s</config></edit-config>`, target, configXML)
	return s.rpc(ctx, []byte(body))
}

// CopyConfig issues <copy-config> from source to target (both datastore
// names; either argument may instead be raw inline <config> content prefixed
// by the caller — this helper only covers datastore-to-datastore copies).
func (s *Session) CopyConfig(ctx context.Context, target, source Datastore) (Reply, error) {
	body := fmt.Sprintf(`<copy-config><target><%s/></target><source><%s/></source></copy-config>`, target, source)
	return s.rpc(ctx, []byte(body))
}

// DeleteConfig issues <delete-config> against target. Per spec.md §4.4,
// target=running is rejected client-side without touching the wire.
func (s *Session) DeleteConfig(ctx context.Context, target Datastore) (Reply, error) {
	if target == Running {
		return Reply{}, &UnsupportedParameterValueError{Operation: "delete-config", Parameter: "target", Value: string(target)}
	}
	body := fmt.Sprintf(`<delete-config><target><%s/></target></delete-config>`, target)
	return s.rpc(ctx, []byte(body))
}

// Lock issues <lock> against target.
func (s *Session) Lock(ctx context.Context, target Datastore) (Reply, error) {
	body := fmt.Sprintf(`<lock><target><%s/></target></lock>`, target)
	return s.rpc(ctx, []byte(body))
}

// Unlock issues <unlock> against target.
func (s *Session) Unlock(ctx context.Context, target Datastore) (Reply, error) {
	body := fmt.Sprintf(`<unlock><target><%s/></target></unlock>`, target)
	return s.rpc(ctx, []byte(body))
}

// KillSession issues <kill-session> for the given server session id.
func (s *Session) KillSession(ctx context.Context, sessionID int) (Reply, error) {
	body := fmt.Sprintf(`<kill-session><session-id>%d</session-id></kill-session>`, sessionID)
	return s.rpc(ctx, []byte(body))
}

// ValidateTarget validates target, if the server advertises :validate:1.0 or
// :1.1; otherwise UnsupportedOperationError is returned without sending.
func (s *Session) ValidateTarget(ctx context.Context, target Datastore) (Reply, error) {
	if !s.ServerCaps.HasAny(CapValidate10, CapValidate11) {
		return Reply{}, &UnsupportedOperationError{Name: "validate", RequiredCaps: []string{CapValidate10, CapValidate11}}
	}
	body := fmt.Sprintf(`<validate><source><%s/></source></validate>`, target)
	return s.rpc(ctx, []byte(body))
}

// CommitOptions configures a <commit> RPC.
type CommitOptions struct {
	Confirmed        bool
	ConfirmTimeout   int // seconds; 0 means the server default
}

// Commit issues <commit>, optionally confirmed. Confirmed commits require
// :confirmed-commit:1.0 or :1.1 and are rejected client-side otherwise.
func (s *Session) Commit(ctx context.Context, opts CommitOptions) (Reply, error) {
	if opts.Confirmed && !s.ServerCaps.HasAny(CapConfirmedCommit10, CapConfirmedCommit11) {
		return Reply{}, &UnsupportedOperationError{Name: "commit(confirmed)", RequiredCaps: []string{CapConfirmedCommit10, CapConfirmedCommit11}}
	}
	if !opts.Confirmed {
		return s.rpc(ctx, []byte(`<commit/>`))
	}
	timeout := ""
	if opts.ConfirmTimeout > 0 {
		timeout = fmt.Sprintf(`<confirm-timeout>%d</confirm-timeout>`, opts.ConfirmTimeout)
	}
	body := fmt.Sprintf(`<commit><confirmed/>%s</commit>`, timeout)
	return s.rpc(ctx, []byte(body))
}

// DiscardChanges issues <discard-changes>.
func (s *Session) DiscardChanges(ctx context.Context) (Reply, error) {
	return s.rpc(ctx, []byte(`<discard-changes/>`))
}

// CloseSession issues <close-session>, the graceful counterpart to Close.
func (s *Session) CloseSession(ctx context.Context) (Reply, error) {
	reply, err := s.rpc(ctx, []byte(`<close-session/>`))
	s.Close()
	return reply, err
}
