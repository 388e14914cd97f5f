package main

import (
	"context"

	"github.com/kestrel-run/agentcore/internal/storagepg"
	"github.com/kestrel-run/agentcore/pkg/models"
)

// sessionStoreAdapter renames storagepg.Store's session methods to the
// shorter verbs internal/sessionmgr.Store expects (Create/Get/Update/
// Delete/ListByUser/ListAll instead of the *Session-suffixed names the
// storage adapter uses to stay unambiguous alongside its step/todo/fork
// methods on the same receiver).
type sessionStoreAdapter struct {
	store *storagepg.Store
}

func (a sessionStoreAdapter) Create(ctx context.Context, session *models.Session) error {
	return a.store.CreateSession(ctx, session)
}

func (a sessionStoreAdapter) Update(ctx context.Context, session *models.Session) error {
	return a.store.UpdateSession(ctx, session)
}

func (a sessionStoreAdapter) Get(ctx context.Context, id string) (*models.Session, error) {
	return a.store.GetSession(ctx, id)
}

func (a sessionStoreAdapter) Delete(ctx context.Context, id string) error {
	return a.store.DeleteSession(ctx, id)
}

func (a sessionStoreAdapter) ListByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	return a.store.ListSessionsByUser(ctx, userID)
}

func (a sessionStoreAdapter) ListAll(ctx context.Context) ([]*models.Session, error) {
	return a.store.ListAllSessions(ctx)
}

// stepStoreAdapter renames storagepg.Store's step methods to the
// internal/step.Store surface: ListSteps's includeDiscarded parameter is
// fixed at false to back ListNonDiscarded.
type stepStoreAdapter struct {
	store *storagepg.Store
}

func (a stepStoreAdapter) Create(ctx context.Context, st *models.Step) error {
	return a.store.CreateStep(ctx, st)
}

func (a stepStoreAdapter) Update(ctx context.Context, st *models.Step) error {
	return a.store.UpdateStep(ctx, st)
}

func (a stepStoreAdapter) ListNonDiscarded(ctx context.Context, sessionID string) ([]*models.Step, error) {
	return a.store.ListSteps(ctx, sessionID, false)
}

func (a stepStoreAdapter) MarkDiscarded(ctx context.Context, sessionID string, stepIDs []string) error {
	return a.store.MarkDiscarded(ctx, sessionID, stepIDs)
}

// forkStoreAdapter renames storagepg.Store's fork-task methods to the
// internal/fork.Store surface.
type forkStoreAdapter struct {
	store *storagepg.Store
}

func (a forkStoreAdapter) Create(ctx context.Context, task *models.ForkAgentTask) error {
	return a.store.CreateForkTask(ctx, task)
}

func (a forkStoreAdapter) Update(ctx context.Context, task *models.ForkAgentTask) error {
	return a.store.UpdateForkTask(ctx, task)
}

func (a forkStoreAdapter) Get(ctx context.Context, id string) (*models.ForkAgentTask, error) {
	return a.store.GetForkTask(ctx, id)
}

func (a forkStoreAdapter) ListBySession(ctx context.Context, parentSessionID string) ([]*models.ForkAgentTask, error) {
	return a.store.ListForkTasksBySession(ctx, parentSessionID)
}
