package world

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

type position struct{ X, Y float32 }
type tag struct{}

type recordingSystem struct {
	aspect    Aspect
	events    []string
	processed int
	err       error
	world     *World
	onInsert  func(EntityID)
}

func (s *recordingSystem) Aspect() Aspect { return s.aspect }

func (s *recordingSystem) Process(dt float32) error {
	s.processed++
	return s.err
}

func (s *recordingSystem) Inserted(id EntityID) {
	s.events = append(s.events, "inserted:"+s.label(id))
	if s.onInsert != nil {
		s.onInsert(id)
	}
}

func (s *recordingSystem) Removed(id EntityID) {
	if _, ok := s.world.Identities().Identity(id); !ok {
		s.events = append(s.events, "removed-without-identity")
		return
	}
	s.events = append(s.events, "removed:"+s.label(id))
}

func (s *recordingSystem) Refreshed(id EntityID) {
	s.events = append(s.events, "refreshed:"+s.label(id))
}

func (s *recordingSystem) label(id EntityID) string {
	u, _ := s.world.Identities().Identity(id)
	return u.String()[:8]
}

func newFixture(t *testing.T) (*World, *Store[position], *Store[tag], *recordingSystem) {
	t.Helper()
	w := NewWorld()
	pos := NewStore[position](w)
	tags := NewStore[tag](w)
	sys := &recordingSystem{aspect: AllOf(pos.Type(), tags.Type()), world: w}
	w.AddSystem(sys)
	return w, pos, tags, sys
}

func TestEntityPoolGenerations(t *testing.T) {
	p := NewEntityPool()
	a := p.Create()
	if a.IsZero() {
		t.Fatal("first entity must not be the zero id")
	}
	p.Destroy(a)
	if p.Alive(a) {
		t.Fatal("destroyed entity still alive")
	}
	b := p.Create()
	if b.Index() != a.Index() {
		t.Fatalf("index not reused: %d vs %d", b.Index(), a.Index())
	}
	if b.Generation() == a.Generation() {
		t.Fatal("generation not bumped on reuse")
	}
	p.Destroy(a)
	if !p.Alive(b) {
		t.Fatal("stale destroy killed the new entity")
	}
	if p.Len() != 1 {
		t.Fatalf("Len = %d, want 1", p.Len())
	}
}

func TestIdentityAssignedOnCreate(t *testing.T) {
	w := NewWorld()
	id := w.CreateEntity()
	u, ok := w.Identities().Identity(id)
	if !ok || u == uuid.Nil {
		t.Fatalf("identity = %v, %v", u, ok)
	}
	back, ok := w.Identities().Entity(u)
	if !ok || back != id {
		t.Fatalf("reverse lookup = %v, %v", back, ok)
	}
}

func TestCreateEntityWithIdentity(t *testing.T) {
	w := NewWorld()
	u := uuid.New()
	if _, err := w.CreateEntityWithIdentity(u); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := w.CreateEntityWithIdentity(u); !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("duplicate create err = %v", err)
	}
	if _, err := w.CreateEntityWithIdentity(uuid.Nil); !errors.Is(err, ErrNilIdentity) {
		t.Fatalf("nil create err = %v", err)
	}
	if w.Len() != 1 {
		t.Fatalf("Len = %d, want 1", w.Len())
	}
}

func TestAspectMembershipEvents(t *testing.T) {
	w, pos, tags, sys := newFixture(t)
	id := w.CreateEntity()
	pos.Set(id, &position{})
	w.Flush()
	if len(sys.events) != 0 {
		t.Fatalf("partial aspect produced events: %v", sys.events)
	}

	tags.Set(id, &tag{})
	w.Flush()
	label := sys.label(id)
	if len(sys.events) != 1 || sys.events[0] != "inserted:"+label {
		t.Fatalf("events = %v", sys.events)
	}

	tags.Remove(id)
	tags.Remove(id)
	w.Flush()
	if len(sys.events) != 2 || sys.events[1] != "removed:"+label {
		t.Fatalf("events = %v", sys.events)
	}

	w.Flush()
	if len(sys.events) != 2 {
		t.Fatalf("idle flush produced events: %v", sys.events)
	}
}

func TestComponentReplaceRefreshes(t *testing.T) {
	w, pos, tags, sys := newFixture(t)
	id := w.CreateEntity()
	pos.Set(id, &position{})
	tags.Set(id, &tag{})
	w.Flush()

	pos.Set(id, &position{X: 1})
	w.Flush()
	want := []string{"inserted:" + sys.label(id), "refreshed:" + sys.label(id)}
	if len(sys.events) != 2 || sys.events[1] != want[1] {
		t.Fatalf("events = %v, want %v", sys.events, want)
	}
}

func TestRemoveAndSetSameTickRefreshes(t *testing.T) {
	tests := []struct {
		name  string
		store func(pos *Store[position], tags *Store[tag], id EntityID)
	}{
		{name: "position", store: func(pos *Store[position], _ *Store[tag], id EntityID) {
			pos.Remove(id)
			pos.Set(id, &position{X: 2})
		}},
		{name: "tag", store: func(_ *Store[position], tags *Store[tag], id EntityID) {
			tags.Remove(id)
			tags.Set(id, &tag{})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, pos, tags, sys := newFixture(t)
			id := w.CreateEntity()
			pos.Set(id, &position{})
			tags.Set(id, &tag{})
			w.Flush()

			tt.store(pos, tags, id)
			w.Flush()
			want := []string{"inserted:" + sys.label(id), "refreshed:" + sys.label(id)}
			if len(sys.events) != 2 || sys.events[1] != want[1] {
				t.Fatalf("events = %v, want %v", sys.events, want)
			}
		})
	}
}

func TestDestroyDispatchesRemovedWithIdentity(t *testing.T) {
	w, pos, tags, sys := newFixture(t)
	id := w.CreateEntity()
	pos.Set(id, &position{})
	tags.Set(id, &tag{})
	w.Flush()
	label := sys.label(id)

	if err := w.DestroyEntity(id); err != nil {
		t.Fatalf("DestroyEntity: %v", err)
	}
	if !w.Alive(id) {
		t.Fatal("destroy must be deferred until Flush")
	}
	w.Flush()

	if got := sys.events[len(sys.events)-1]; got != "removed:"+label {
		t.Fatalf("last event = %q", got)
	}
	if w.Alive(id) {
		t.Fatal("entity alive after flush")
	}
	if pos.Has(id) || tags.Has(id) {
		t.Fatal("components not dropped")
	}
	if w.Identities().Len() != 0 {
		t.Fatal("identity not released")
	}
	if err := w.DestroyEntity(id); !errors.Is(err, ErrEntityNotAlive) {
		t.Fatalf("second destroy err = %v", err)
	}
}

func TestCreateAndDestroySameTickIsSilent(t *testing.T) {
	w, pos, tags, sys := newFixture(t)
	id := w.CreateEntity()
	pos.Set(id, &position{})
	tags.Set(id, &tag{})
	_ = w.DestroyEntity(id)
	w.Flush()
	if len(sys.events) != 0 {
		t.Fatalf("events = %v", sys.events)
	}
}

func TestChangesDuringDispatchAreDeferred(t *testing.T) {
	w, pos, tags, sys := newFixture(t)
	other := w.CreateEntity()
	pos.Set(other, &position{})
	sys.onInsert = func(EntityID) {
		tags.Set(other, &tag{})
	}

	id := w.CreateEntity()
	pos.Set(id, &position{})
	tags.Set(id, &tag{})
	w.Flush()
	if len(sys.events) != 1 {
		t.Fatalf("first flush events = %v", sys.events)
	}
	sys.onInsert = nil
	w.Flush()
	if len(sys.events) != 2 || sys.events[1] != "inserted:"+sys.label(other) {
		t.Fatalf("second flush events = %v", sys.events)
	}
}

func TestEventsFollowMarkOrder(t *testing.T) {
	w, pos, tags, sys := newFixture(t)
	a := w.CreateEntity()
	b := w.CreateEntity()
	pos.Set(a, &position{})
	tags.Set(a, &tag{})
	pos.Set(b, &position{})
	tags.Set(b, &tag{})
	w.Flush()

	tags.Remove(b)
	tags.Remove(a)
	w.Flush()
	want := []string{"removed:" + sys.label(b), "removed:" + sys.label(a)}
	got := sys.events[2:]
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestAddSystemSeesExistingEntities(t *testing.T) {
	w := NewWorld()
	pos := NewStore[position](w)
	id := w.CreateEntity()
	pos.Set(id, &position{})
	w.Flush()

	late := &recordingSystem{aspect: AllOf(pos.Type()), world: w}
	w.AddSystem(late)
	w.Flush()
	if len(late.events) != 1 {
		t.Fatalf("late system events = %v", late.events)
	}
	if got := w.Members(late); len(got) != 1 || got[0] != id {
		t.Fatalf("Members = %v", got)
	}
}

func TestProcessRunsAllSystemsAndJoinsErrors(t *testing.T) {
	w := NewWorld()
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	a := &recordingSystem{world: w, err: errA}
	b := &recordingSystem{world: w, err: errB}
	c := &recordingSystem{world: w}
	w.AddSystem(a)
	w.AddSystem(b)
	w.AddSystem(c)

	err := w.Process(0.016)
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("err = %v, want both system errors", err)
	}
	if a.processed != 1 || b.processed != 1 || c.processed != 1 {
		t.Fatalf("processed = %d %d %d", a.processed, b.processed, c.processed)
	}
}

func TestSetOnDeadEntityIgnored(t *testing.T) {
	w := NewWorld()
	pos := NewStore[position](w)
	pos.Set(NewEntityID(7, 1), &position{})
	if pos.Len() != 0 {
		t.Fatal("component stored for dead entity")
	}
}
