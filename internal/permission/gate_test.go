package permission

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"example.com/vitals/internal/domain"
)

type stubSource struct {
	initCalls  int
	initErr    error
	granted    []domain.PermissionGrant
	requested  [][]domain.PermissionGrant
	requestErr error
}

func (s *stubSource) Initialize(context.Context) error {
	s.initCalls++
	return s.initErr
}

func (s *stubSource) RequestPermission(_ context.Context, req []domain.PermissionGrant) ([]domain.PermissionGrant, error) {
	s.requested = append(s.requested, req)
	return s.granted, s.requestErr
}

func (s *stubSource) OpenSettings(context.Context) error { return nil }

func newTestGate(src *stubSource) *Gate {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewGate(src, WithLogger(logger))
}

func TestGateInitializeIsIdempotent(t *testing.T) {
	src := &stubSource{}
	gate := newTestGate(src)

	require.NoError(t, gate.Initialize(context.Background()))
	require.NoError(t, gate.Initialize(context.Background()))
	require.Equal(t, 1, src.initCalls)
}

func TestGateInitializeSurfacesUnavailable(t *testing.T) {
	src := &stubSource{initErr: domain.ErrSourceUnavailable}
	gate := newTestGate(src)

	err := gate.Initialize(context.Background())
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)

	src.initErr = nil
	require.NoError(t, gate.Initialize(context.Background()))
	require.Equal(t, 2, src.initCalls)
}

func TestGateRequestPermissionsReplacesGrantSet(t *testing.T) {
	src := &stubSource{granted: []domain.PermissionGrant{
		{AccessType: domain.AccessRead, RecordType: domain.RecordSteps},
		{AccessType: domain.AccessRead, RecordType: domain.RecordHeartRate},
	}}
	gate := newTestGate(src)

	granted, err := gate.RequestPermissions(context.Background(), domain.FetchOrder)
	require.NoError(t, err)
	require.Len(t, granted, 2)
	require.Len(t, src.requested, 1)
	require.Len(t, src.requested[0], len(domain.FetchOrder))
	require.True(t, gate.HasPermission(domain.RecordSteps))
	require.True(t, gate.HasPermission(domain.RecordHeartRate))
	require.False(t, gate.HasPermission(domain.RecordSleepSession))

	src.granted = []domain.PermissionGrant{{AccessType: domain.AccessRead, RecordType: domain.RecordSleepSession}}
	_, err = gate.RequestPermissions(context.Background(), domain.FetchOrder)
	require.NoError(t, err)
	require.False(t, gate.HasPermission(domain.RecordSteps))
	require.True(t, gate.HasPermission(domain.RecordSleepSession))
	require.Equal(t, []domain.PermissionGrant{{AccessType: domain.AccessRead, RecordType: domain.RecordSleepSession}}, gate.Granted())
}

func TestGateRequestPermissionsKeepsGrantsOnError(t *testing.T) {
	src := &stubSource{granted: []domain.PermissionGrant{{AccessType: domain.AccessRead, RecordType: domain.RecordSteps}}}
	gate := newTestGate(src)
	_, err := gate.RequestPermissions(context.Background(), domain.FetchOrder)
	require.NoError(t, err)

	src.requestErr = errors.New("bridge offline")
	_, err = gate.RequestPermissions(context.Background(), domain.FetchOrder)
	require.Error(t, err)
	require.True(t, gate.HasPermission(domain.RecordSteps))
}

func TestGateEmptyGrantSet(t *testing.T) {
	gate := newTestGate(&stubSource{})

	granted, err := gate.RequestPermissions(context.Background(), domain.FetchOrder)
	require.NoError(t, err)
	require.Empty(t, granted)
	require.Empty(t, gate.Granted())
}
