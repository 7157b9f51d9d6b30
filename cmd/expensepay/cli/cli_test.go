package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	appshared "github.com/odyssey-erp/expensepay/internal/shared"
	"github.com/odyssey-erp/expensepay/jobs"
)

func newJobsCLI(t *testing.T) (*miniredis.Miniredis, *JobsCLI) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewJobsCLI(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestJobsCommandTriggersCostCenterUpdate(t *testing.T) {
	mr, c := newJobsCLI(t)
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	code := c.JobsCommand(context.Background(), JobsOptions{
		Action:     "trigger",
		Trigger:    TriggerParams{Job: jobs.TaskCostCenterUpdate, Run: "CCU-1"},
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Zero(t, code)
	require.Empty(t, stderr.String())

	var handle appshared.JobHandle
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &handle))
	require.Equal(t, jobs.QueueLong, handle.Queue)

	pending, err := mr.List("asynq:{long}:pending")
	require.NoError(t, err)
	require.Equal(t, []string{handle.JobID}, pending)
}

func TestJobsCommandRequiresRunForCorrections(t *testing.T) {
	_, c := newJobsCLI(t)
	cases := []TriggerParams{
		{Job: jobs.TaskCostCenterUpdate},
		{Job: jobs.TaskCostCenterUpdateSingle, Run: "CCU-1"},
		{Job: "expensepay:unknown"},
	}
	for _, p := range cases {
		stderr := new(bytes.Buffer)
		code := c.JobsCommand(context.Background(), JobsOptions{Action: "trigger", Trigger: p, Stdout: new(bytes.Buffer), Stderr: stderr})
		require.Equal(t, 1, code, p.Job)
		require.Contains(t, stderr.String(), "jobs trigger:")
	}
}

func TestJobsCommandRejectsUnknownAction(t *testing.T) {
	_, c := newJobsCLI(t)
	stderr := new(bytes.Buffer)
	code := c.JobsCommand(context.Background(), JobsOptions{Action: "purge", Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "unknown action")
}

func TestJobsCommandPrintsHandle(t *testing.T) {
	mr, c := newJobsCLI(t)
	stdout := new(bytes.Buffer)
	code := c.JobsCommand(context.Background(), JobsOptions{
		Action:  "trigger",
		Trigger: TriggerParams{Job: jobs.TaskGLIntegrity},
		Stdout:  stdout,
		Stderr:  new(bytes.Buffer),
	})
	require.Zero(t, code)
	require.True(t, strings.HasPrefix(stdout.String(), "enqueued expensepay:gl_integrity as "))
	require.Contains(t, stdout.String(), "on queue default")

	pending, err := mr.List("asynq:{default}:pending")
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

type stubIssuer struct {
	subject string
	roles   []string
}

func (s *stubIssuer) IssueToken(subject string, roles []string) (string, error) {
	if subject == "" {
		return "", errors.New("subject required")
	}
	s.subject, s.roles = subject, roles
	return "signed." + subject, nil
}

func TestTokenCommandIssuesToken(t *testing.T) {
	issuer := &stubIssuer{}
	stdout := new(bytes.Buffer)
	code := TokenCommand(issuer, TokenOptions{
		Action:  "issue",
		Subject: "u-1",
		Roles:   SplitList("Accounts Manager, ,System Manager"),
		Stdout:  stdout,
		Stderr:  new(bytes.Buffer),
	})
	require.Zero(t, code)
	require.Equal(t, "signed.u-1\n", stdout.String())
	require.Equal(t, []string{"Accounts Manager", "System Manager"}, issuer.roles)

	stderr := new(bytes.Buffer)
	require.Equal(t, 1, TokenCommand(issuer, TokenOptions{Action: "issue", Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "subject required")
}

func TestTokenCommandHashesAPIKey(t *testing.T) {
	stdout := new(bytes.Buffer)
	code := TokenCommand(nil, TokenOptions{Action: "hash", APIKey: "0123456789abcdef-svc", Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, code)
	hash := strings.TrimSpace(stdout.String())
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("0123456789abcdef-svc")))

	stderr := new(bytes.Buffer)
	require.Equal(t, 1, TokenCommand(nil, TokenOptions{Action: "hash", APIKey: "short", Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "at least 16")
}

type stubMigrator struct {
	ups, downs int
	version    uint
	dirty      bool
	err        error
}

func (m *stubMigrator) Up() error {
	m.ups++
	m.version = 5
	return m.err
}

func (m *stubMigrator) Down(steps int) error {
	m.downs += steps
	m.version -= uint(steps)
	return m.err
}

func (m *stubMigrator) Version() (uint, bool, error) { return m.version, m.dirty, nil }

func TestMigrateCommand(t *testing.T) {
	m := &stubMigrator{}
	stdout := new(bytes.Buffer)
	require.Zero(t, MigrateCommand(m, MigrateOptions{Stdout: stdout, Stderr: new(bytes.Buffer)}))
	require.Equal(t, "schema version 5\n", stdout.String())

	stdout.Reset()
	require.Zero(t, MigrateCommand(m, MigrateOptions{Direction: "down", Steps: 2, Stdout: stdout, Stderr: new(bytes.Buffer)}))
	require.Equal(t, "schema version 3\n", stdout.String())

	stderr := new(bytes.Buffer)
	require.Equal(t, 1, MigrateCommand(m, MigrateOptions{Direction: "down", Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "--steps")

	m.dirty = true
	require.Equal(t, 3, MigrateCommand(m, MigrateOptions{Direction: "version", Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)}))

	failing := &stubMigrator{err: errors.New("relation exists")}
	stderr.Reset()
	require.Equal(t, 1, MigrateCommand(failing, MigrateOptions{Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "relation exists")
}
