package source_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yourusername/dashdiff/internal/aws"
	"github.com/yourusername/dashdiff/internal/aws/testutils"
	"github.com/yourusername/dashdiff/internal/dashboard"
	"github.com/yourusername/dashdiff/internal/source"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) GetSnapshot(ctx context.Context, loc aws.Location) ([]byte, error) {
	args := m.Called(ctx, loc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func factory(f source.Fetcher, calls *int) source.StoreFactory {
	return func(context.Context) (source.Fetcher, error) {
		*calls++
		return f, nil
	}
}

func TestLoader_File(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "cpu.json")
	yamlPath := filepath.Join(dir, "cpu.yaml")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"uid":"cpu","version":2}`), 0o600))
	require.NoError(t, os.WriteFile(yamlPath, []byte("uid: cpu\nversion: 2\n"), 0o600))

	loader := source.NewLoader(nil)

	for _, path := range []string{jsonPath, yamlPath} {
		d, err := loader.Dashboard(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, "cpu", d.UID())
		assert.Equal(t, json.Number("2"), d.Version.Raw())
	}

	_, err := loader.Dashboard(context.Background(), filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestLoader_Stdin(t *testing.T) {
	loader := source.NewLoader(nil, source.WithStdin(strings.NewReader(`{"id":3,"type":"stat"}`)))

	p, err := loader.Panel(context.Background(), source.Stdin)
	require.NoError(t, err)
	assert.Equal(t, "stat", p["type"])
}

func TestLoader_Remote(t *testing.T) {
	fetcher := &mockFetcher{}
	loc := aws.Location{Bucket: "dashboards", Key: "prod/cpu.json"}
	fetcher.On("GetSnapshot", mock.Anything, loc).Return([]byte(`{"uid":"cpu"}`), nil)

	calls := 0
	loader := source.NewLoader(factory(fetcher, &calls))

	for i := 0; i < 2; i++ {
		d, err := loader.Dashboard(context.Background(), "s3://dashboards/prod/cpu.json")
		require.NoError(t, err)
		assert.Equal(t, "cpu", d.UID())
	}

	assert.Equal(t, 1, calls, "store is created once")
	fetcher.AssertNumberOfCalls(t, "GetSnapshot", 2)
}

func TestLoader_Errors(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("GetSnapshot", mock.Anything, mock.Anything).Return(nil, aws.ErrSnapshotNotFound)
	calls := 0

	tests := []struct {
		name    string
		loader  *source.Loader
		ref     string
		wantErr error
	}{
		{name: "empty reference", loader: source.NewLoader(nil), ref: ""},
		{name: "no store", loader: source.NewLoader(nil), ref: "s3://b/k.json", wantErr: source.ErrNoStore},
		{name: "bad location", loader: source.NewLoader(factory(fetcher, &calls)), ref: "s3://bucket", wantErr: aws.ErrInvalidLocation},
		{name: "fetch error", loader: source.NewLoader(factory(fetcher, &calls)), ref: "s3://b/k.json", wantErr: aws.ErrSnapshotNotFound},
		{
			name: "factory error",
			loader: source.NewLoader(func(context.Context) (source.Fetcher, error) {
				return nil, errors.New("no credentials")
			}),
			ref: "s3://b/k.json",
		},
		{name: "not an object", loader: source.NewLoader(nil, source.WithStdin(strings.NewReader(`[]`))), ref: "-", wantErr: dashboard.ErrNotObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.loader.Dashboard(context.Background(), tt.ref)
			require.Error(t, err)
			assert.Nil(t, d)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoader_DashboardsBatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	mockS3 := &testutils.MockS3API{}
	mockS3.ServeObject("prod/cpu.json", `{"uid":"cpu","version":3}`)
	mockS3.ServeObject("prod/mem.yaml", "uid: mem\nversion: 7\n")
	store := aws.NewSnapshotStoreWithClient(mockS3, nil)

	calls := 0
	loader := source.NewLoader(factory(store, &calls))

	refs := []string{
		"s3://dashboards/prod/mem.yaml",
		"s3://dashboards/prod/cpu.json",
		"s3://dashboards/prod/mem.yaml",
	}
	got, err := loader.Dashboards(context.Background(), refs)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "mem", got[0].UID())
	assert.Equal(t, "cpu", got[1].UID())
	assert.Equal(t, "mem", got[2].UID())
	assert.NotSame(t, got[0], got[2], "each position gets its own dashboard")
	assert.Equal(t, json.Number("3"), got[1].Version.Raw())

	assert.Equal(t, 1, calls)
	mockS3.AssertNumberOfCalls(t, "GetObject", 2)
	mockS3.AssertExpectations(t)
}

func TestLoader_DashboardsBatchError(t *testing.T) {
	defer goleak.VerifyNone(t)

	mockS3 := &testutils.MockS3API{}
	mockS3.ServeObject("prod/cpu.json", `{"uid":"cpu"}`)
	mockS3.On("GetObject", mock.Anything, mock.Anything).
		Return(nil, &testutils.APIError{Code: "NoSuchKey", Message: "missing"})
	store := aws.NewSnapshotStoreWithClient(mockS3, nil)

	loader := source.NewLoader(factory(store, new(int)))

	got, err := loader.Dashboards(context.Background(), []string{
		"s3://dashboards/prod/cpu.json",
		"s3://dashboards/prod/gone.json",
	})
	assert.ErrorIs(t, err, aws.ErrSnapshotNotFound)
	assert.Nil(t, got)
}

func TestLoader_DashboardsMixed(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "cpu.json")
	require.NoError(t, os.WriteFile(local, []byte(`{"uid":"cpu"}`), 0o600))

	fetcher := &mockFetcher{}
	fetcher.On("GetSnapshot", mock.Anything, aws.Location{Bucket: "b", Key: "mem.json"}).
		Return([]byte(`{"uid":"mem"}`), nil)

	loader := source.NewLoader(factory(fetcher, new(int)), source.WithConcurrency(2))

	got, err := loader.Dashboards(context.Background(), []string{local, "s3://b/mem.json", local})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "cpu", got[0].UID())
	assert.Equal(t, "mem", got[1].UID())
	assert.Equal(t, "cpu", got[2].UID())
	fetcher.AssertNumberOfCalls(t, "GetSnapshot", 1)
}

func TestLoader_DashboardsErrors(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "cpu.json")
	bad := filepath.Join(dir, "list.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"uid":"cpu"}`), 0o600))
	require.NoError(t, os.WriteFile(bad, []byte(`[]`), 0o600))

	tests := []struct {
		name    string
		loader  *source.Loader
		refs    []string
		wantErr error
	}{
		{name: "decode error", loader: source.NewLoader(nil), refs: []string{good, bad}, wantErr: dashboard.ErrNotObject},
		{name: "missing file", loader: source.NewLoader(nil), refs: []string{good, filepath.Join(dir, "gone.json")}, wantErr: os.ErrNotExist},
		{name: "no store", loader: source.NewLoader(nil), refs: []string{"s3://b/a.json", "s3://b/c.json"}, wantErr: source.ErrNoStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.loader.Dashboards(context.Background(), tt.refs)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, got)
		})
	}
}

func TestIsRemote(t *testing.T) {
	assert.True(t, source.IsRemote("s3://bucket/key"))
	assert.False(t, source.IsRemote("bucket/key.json"))
	assert.False(t, source.IsRemote(source.Stdin))
}
