package data

import (
	"context"

	"github.com/kayteedberserker/feedsync/internal/models"
)

// Action describes an optimistic, side-effecting action on one entity.
type Action interface {
	// Token identifies the action in the ledger.
	Token() Token

	// ApplyLocally returns the entity as it should look once the action
	// has taken effect. It must not modify its argument.
	ApplyLocally(e models.Entity) models.Entity

	// ApplyRemotely performs the server-side operation.
	ApplyRemotely(ctx context.Context) error

	// IsReflectedIn returns true when server data already contains this
	// action's effect, so the local overlay can be dropped.
	IsReflectedIn(remote models.Entity) bool
}

// SendFunc performs an action's request against the server.
type SendFunc func(ctx context.Context, id string) error

// Like marks an entity liked and bumps its like count.
type Like struct {
	ID   string
	Send SendFunc

	baseline counter // likes seen when the action was created
}

// NewLike creates a Like for e.
func NewLike(e models.Entity, send SendFunc) *Like {
	return &Like{ID: e.ID(), Send: send, baseline: counterOf(e, models.FieldLikes)}
}

func (a *Like) Token() Token { return Token{EntityID: a.ID, Kind: ActionLiked} }

func (a *Like) ApplyLocally(e models.Entity) models.Entity {
	if e.Bool(models.FieldLiked) {
		return e
	}
	return e.With(models.FieldLiked, true).With(models.FieldLikes, e.Int(models.FieldLikes)+1)
}

func (a *Like) ApplyRemotely(ctx context.Context) error {
	if a.Send == nil {
		return nil
	}
	return a.Send(ctx, a.ID)
}

// IsReflectedIn trusts an explicit liked flag from the server. The like
// count is only consulted when the server omits the flag, since other
// users' likes move it too.
func (a *Like) IsReflectedIn(remote models.Entity) bool {
	if liked, ok := remote[models.FieldLiked].(bool); ok {
		return liked
	}
	return a.baseline.passedBy(remote, models.FieldLikes)
}

// View records that an entity was opened and bumps its view count.
type View struct {
	ID   string
	Send SendFunc

	baseline counter
}

// NewView creates a View for e.
func NewView(e models.Entity, send SendFunc) *View {
	return &View{ID: e.ID(), Send: send, baseline: counterOf(e, models.FieldViews)}
}

func (a *View) Token() Token { return Token{EntityID: a.ID, Kind: ActionViewed} }

func (a *View) ApplyLocally(e models.Entity) models.Entity {
	return e.With(models.FieldViews, e.Int(models.FieldViews)+1)
}

func (a *View) ApplyRemotely(ctx context.Context) error {
	if a.Send == nil {
		return nil
	}
	return a.Send(ctx, a.ID)
}

func (a *View) IsReflectedIn(remote models.Entity) bool {
	return a.baseline.passedBy(remote, models.FieldViews)
}

// counter is a count observed before an action was applied. An action
// created for an entity that was not loaded has no baseline yet; the
// first server value seen becomes the baseline.
type counter struct {
	n     int
	known bool
}

func counterOf(e models.Entity, field string) counter {
	_, ok := e[field]
	return counter{n: e.Int(field), known: ok}
}

func (c *counter) passedBy(remote models.Entity, field string) bool {
	if _, ok := remote[field]; !ok {
		return false
	}
	if !c.known {
		*c = counter{n: remote.Int(field), known: true}
		return false
	}
	return remote.Int(field) > c.n
}

type pendingAction struct {
	id     uint64
	action Action
}

// overlay holds actions applied locally but not yet visible in server data.
type overlay struct {
	seq     uint64
	pending []pendingAction
}

func (o *overlay) add(a Action) {
	o.seq++
	o.pending = append(o.pending, pendingAction{id: o.seq, action: a})
}

// prune drops actions whose effect the server data already shows.
// Actions whose entity is not in the collection are kept.
func (o *overlay) prune(remote Collection) {
	remaining := o.pending[:0]
	for _, pa := range o.pending {
		e, ok := remote.Find(pa.action.Token().EntityID)
		if ok && pa.action.IsReflectedIn(e) {
			continue
		}
		remaining = append(remaining, pa)
	}
	o.pending = remaining
}

// apply returns a copy of remote with every pending action re-applied.
func (o *overlay) apply(remote Collection) Collection {
	if remote == nil {
		return nil
	}
	out := make(Collection, len(remote))
	copy(out, remote)
	for _, pa := range o.pending {
		id := pa.action.Token().EntityID
		for i, e := range out {
			if e.ID() == id {
				out[i] = pa.action.ApplyLocally(e)
			}
		}
	}
	return out
}

func (o *overlay) len() int { return len(o.pending) }
