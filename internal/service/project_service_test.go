package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-reaper/internal/model"
	"project-reaper/internal/repository"
)

type fakeProjectWriter struct {
	nextID  int64
	created []model.Project
	members []model.Member
	links   []model.ForkLink
	linkErr error
}

func (f *fakeProjectWriter) CreateProject(_ context.Context, fn func(w repository.ProjectWriter) error) error {
	snapshot := *f
	if err := fn(f); err != nil {
		*f = snapshot
		return err
	}
	return nil
}

func (f *fakeProjectWriter) Create(_ context.Context, p model.Project) (model.Project, error) {
	f.nextID++
	p.ID = f.nextID
	p.State = model.ProjectActive
	f.created = append(f.created, p)
	return p, nil
}

func (f *fakeProjectWriter) AddMember(_ context.Context, m model.Member) error {
	f.members = append(f.members, m)
	return nil
}

func (f *fakeProjectWriter) LinkFork(_ context.Context, link model.ForkLink) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.links = append(f.links, link)
	return nil
}

func TestProjectServiceCreate(t *testing.T) {
	t.Parallel()

	owner := model.User{ID: "u-1", Username: "alice"}

	t.Run("owner becomes member", func(t *testing.T) {
		t.Parallel()

		store := &fakeProjectWriter{}
		p, err := NewProjectService(store).Create(context.Background(), " /group/app/ ", owner, 0)
		require.NoError(t, err)

		assert.Equal(t, "group/app", p.Path)
		assert.Equal(t, "app", p.Name)
		assert.Equal(t, "u-1", p.CreatorID)
		require.Len(t, store.members, 1)
		assert.Equal(t, model.AccessOwner, store.members[0].AccessLevel)
		assert.Empty(t, store.links)
	})

	t.Run("fork is linked", func(t *testing.T) {
		t.Parallel()

		store := &fakeProjectWriter{nextID: 10}
		p, err := NewProjectService(store).Create(context.Background(), "alice/app", owner, 3)
		require.NoError(t, err)

		assert.Equal(t, int64(3), p.ForkedFromID)
		require.Len(t, store.links, 1)
		assert.Equal(t, model.ForkLink{ForkedToID: 11, ForkedFromID: 3}, store.links[0])
	})

	t.Run("missing fork parent rolls back", func(t *testing.T) {
		t.Parallel()

		store := &fakeProjectWriter{linkErr: model.ErrProjectNotFound}
		_, err := NewProjectService(store).Create(context.Background(), "alice/app", owner, 99)
		require.True(t, errors.Is(err, model.ErrProjectNotFound))
		assert.Empty(t, store.created)
		assert.Empty(t, store.members)
	})

	t.Run("invalid path", func(t *testing.T) {
		t.Parallel()

		store := &fakeProjectWriter{}
		_, err := NewProjectService(store).Create(context.Background(), "group/app+1+deleted", owner, 0)
		require.Error(t, err)
		assert.Empty(t, store.created)
	})
}
