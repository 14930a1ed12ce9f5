package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	upErr, downErr, statusErr, versionErr, dropErr, closeErr error
}

func (m *mockRunner) Up() error      { return m.upErr }
func (m *mockRunner) Down() error    { return m.downErr }
func (m *mockRunner) Status() error  { return m.statusErr }
func (m *mockRunner) Version() error { return m.versionErr }
func (m *mockRunner) Drop() error    { return m.dropErr }
func (m *mockRunner) Close() error   { return m.closeErr }

var _ MigrationRunner = (*mockRunner)(nil)

func TestExecuteCommand_DispatchesToMatchingMethod(t *testing.T) {
	sentinel := errors.New("boom")

	tests := []struct {
		command string
		mock    *mockRunner
		wantErr error
	}{
		{"up", &mockRunner{upErr: sentinel}, sentinel},
		{"down", &mockRunner{downErr: sentinel}, sentinel},
		{"status", &mockRunner{statusErr: sentinel}, sentinel},
		{"version", &mockRunner{versionErr: sentinel}, sentinel},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			err := executeCommand(tt.command, tt.mock, false)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestExecuteCommand_DropWithoutForceIsRejected(t *testing.T) {
	err := executeCommand("drop", &mockRunner{}, false)
	require.ErrorIs(t, err, ErrDropRequiresForce)
}

func TestExecuteCommand_DropWithForceRuns(t *testing.T) {
	sentinel := errors.New("drop failed")

	err := executeCommand("drop", &mockRunner{dropErr: sentinel}, true)
	require.ErrorIs(t, err, sentinel)
}

func TestExecuteCommand_UnknownCommandIsRejected(t *testing.T) {
	err := executeCommand("bogus", &mockRunner{}, false)
	require.ErrorIs(t, err, ErrUnknownCommand)
}
