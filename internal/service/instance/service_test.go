package instance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whatleads/campaignd/internal/storage"
	"github.com/whatleads/campaignd/internal/storage/model"
)

type fakeInstanceRepo struct {
	instances map[string]model.Instance
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{instances: make(map[string]model.Instance)}
}

func (f *fakeInstanceRepo) Create(_ context.Context, i model.Instance) (model.Instance, error) {
	f.instances[i.ID] = i
	return i, nil
}

func (f *fakeInstanceRepo) GetByID(_ context.Context, id string) (model.Instance, error) {
	i, ok := f.instances[id]
	if !ok {
		return model.Instance{}, storage.ErrNotFound
	}
	return i, nil
}

func (f *fakeInstanceRepo) GetByTokenHash(_ context.Context, hash string) (model.Instance, error) {
	for _, i := range f.instances {
		if i.TokenHash == hash {
			return i, nil
		}
	}
	return model.Instance{}, storage.ErrNotFound
}

func (f *fakeInstanceRepo) List(_ context.Context) ([]model.Instance, error) {
	var out []model.Instance
	for _, i := range f.instances {
		out = append(out, i)
	}
	return out, nil
}

func (f *fakeInstanceRepo) ListByOwner(_ context.Context, ownerUserID string) ([]model.Instance, error) {
	var out []model.Instance
	for _, i := range f.instances {
		if i.OwnerUserID == ownerUserID {
			out = append(out, i)
		}
	}
	return out, nil
}

func (f *fakeInstanceRepo) Update(_ context.Context, i model.Instance) (model.Instance, error) {
	if _, ok := f.instances[i.ID]; !ok {
		return model.Instance{}, storage.ErrNotFound
	}
	f.instances[i.ID] = i
	return i, nil
}

func (f *fakeInstanceRepo) Delete(_ context.Context, id string) error {
	delete(f.instances, id)
	return nil
}

func TestCreateInstanceIssuesToken(t *testing.T) {
	repo := newFakeInstanceRepo()
	svc := NewService(repo)

	created, plain, err := svc.Create(context.Background(), CreateInput{
		Name:        "  comercial-01  ",
		OwnerUserID: "user-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "comercial-01", created.Name)
	assert.Equal(t, model.InstanceStatusDisconnected, created.Status)
	require.NotEmpty(t, plain)

	// só o hash do token fica persistido
	sum := sha256.Sum256([]byte(plain))
	assert.Equal(t, hex.EncodeToString(sum[:]), created.TokenHash)
	assert.NotContains(t, created.TokenHash, plain)

	_, _, err = svc.Create(context.Background(), CreateInput{Name: "   "})
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestRotateTokenInvalidatesPrevious(t *testing.T) {
	repo := newFakeInstanceRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, plain, err := svc.Create(ctx, CreateInput{Name: "comercial-01", OwnerUserID: "user-1"})
	require.NoError(t, err)

	novo, err := svc.RotateToken(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, plain, novo)

	oldSum := sha256.Sum256([]byte(plain))
	_, err = repo.GetByTokenHash(ctx, hex.EncodeToString(oldSum[:]))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	newSum := sha256.Sum256([]byte(novo))
	found, err := repo.GetByTokenHash(ctx, hex.EncodeToString(newSum[:]))
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestUpdateStatusKeepsFirstConnectedAt(t *testing.T) {
	repo := newFakeInstanceRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, _, err := svc.Create(ctx, CreateInput{Name: "comercial-01", OwnerUserID: "user-1"})
	require.NoError(t, err)

	inst, err := svc.UpdateStatus(ctx, created.ID, model.InstanceStatusConnected)
	require.NoError(t, err)
	require.NotNil(t, inst.ConnectedAt)
	first := *inst.ConnectedAt

	_, err = svc.UpdateStatus(ctx, created.ID, model.InstanceStatusDisconnected)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	inst, err = svc.UpdateStatus(ctx, created.ID, model.InstanceStatusConnected)
	require.NoError(t, err)
	require.NotNil(t, inst.ConnectedAt)
	assert.Equal(t, first, *inst.ConnectedAt, "reconexão não zera o aquecimento")
}

func TestGetByUserScopesByOwner(t *testing.T) {
	repo := newFakeInstanceRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, _, err := svc.Create(ctx, CreateInput{Name: "comercial-01", OwnerUserID: "user-1"})
	require.NoError(t, err)

	_, err = svc.GetByUser(ctx, created.ID, "user-1", "user")
	assert.NoError(t, err)

	_, err = svc.GetByUser(ctx, created.ID, "user-2", "user")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	info, err := svc.GetByUser(ctx, created.ID, "user-2", "admin")
	require.NoError(t, err)
	assert.False(t, info.ConnectedNow)
}

func TestListByUser(t *testing.T) {
	repo := newFakeInstanceRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, _, err := svc.Create(ctx, CreateInput{Name: "a", OwnerUserID: "user-1"})
	require.NoError(t, err)
	_, _, err = svc.Create(ctx, CreateInput{Name: "b", OwnerUserID: "user-2"})
	require.NoError(t, err)

	own, err := svc.ListByUser(ctx, "user-1", "user")
	require.NoError(t, err)
	assert.Len(t, own, 1)

	all, err := svc.ListByUser(ctx, "user-1", "admin")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
